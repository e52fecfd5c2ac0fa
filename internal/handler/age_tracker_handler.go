package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/petwelfare/service-agetracker/internal/application"
	"github.com/petwelfare/service-agetracker/internal/platform/auth"
	"github.com/petwelfare/service-agetracker/internal/platform/domain"
	"github.com/petwelfare/service-agetracker/internal/platform/middleware"
	"github.com/petwelfare/service-agetracker/internal/platform/response"
)

// AgeTrackerHandler handles HTTP requests for pet age tracking.
type AgeTrackerHandler struct {
	service *application.AgeTrackingService
}

// NewAgeTrackerHandler creates a new AgeTrackerHandler.
func NewAgeTrackerHandler(service *application.AgeTrackingService) *AgeTrackerHandler {
	return &AgeTrackerHandler{service: service}
}

// RegisterRoutes registers all age tracker routes.
func (h *AgeTrackerHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	staffRole := middleware.RequireRole(auth.RoleAdmin, auth.RoleManager)

	trackers := r.Group("/api/v1/age-trackers")
	trackers.Use(authMW)
	{
		trackers.POST("", h.CreateAgeTracker)
		trackers.GET("/statistics", h.GetAgeStatistics)
		trackers.GET("/range", h.GetPetsByAgeRange)
		trackers.POST("/update-all", staffRole, h.UpdateAllAges)
		trackers.GET("/:petCode/current", h.GetCurrentAge)
		trackers.PUT("/:petCode", h.UpdateAgeTracker)
		trackers.DELETE("/:petCode", h.DeleteAgeTracker)
	}
}

// CreateAgeTracker handles POST /api/v1/age-trackers.
func (h *AgeTrackerHandler) CreateAgeTracker(c *gin.Context) {
	var req application.CreateAgeTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "petCode, initialAgeValue and initialAgeUnit are required: "+err.Error())
		return
	}

	result, err := h.service.CreateAgeTracker(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetCurrentAge handles GET /api/v1/age-trackers/:petCode/current.
func (h *AgeTrackerHandler) GetCurrentAge(c *gin.Context) {
	result, err := h.service.GetCurrentAge(c.Request.Context(), c.Param("petCode"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateAgeTracker handles PUT /api/v1/age-trackers/:petCode.
func (h *AgeTrackerHandler) UpdateAgeTracker(c *gin.Context) {
	var req application.UpdateAgeTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdateAgeTracker(c.Request.Context(), c.Param("petCode"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DeleteAgeTracker handles DELETE /api/v1/age-trackers/:petCode.
func (h *AgeTrackerHandler) DeleteAgeTracker(c *gin.Context) {
	petCode := c.Param("petCode")

	deleted, err := h.service.DeleteAgeTracker(c.Request.Context(), petCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !deleted {
		response.Error(c, domain.NewNotFoundError("age tracker", petCode))
		return
	}

	response.Success(c, gin.H{"petCode": petCode, "deleted": true})
}

// GetPetsByAgeRange handles GET /api/v1/age-trackers/range?minAge&maxAge&unit.
func (h *AgeTrackerHandler) GetPetsByAgeRange(c *gin.Context) {
	minAge, err := strconv.ParseFloat(c.Query("minAge"), 64)
	if err != nil {
		response.BadRequest(c, "minAge must be a number")
		return
	}
	maxAge, err := strconv.ParseFloat(c.Query("maxAge"), 64)
	if err != nil {
		response.BadRequest(c, "maxAge must be a number")
		return
	}
	unit := c.Query("unit")
	if unit == "" {
		response.BadRequest(c, "unit is required")
		return
	}

	result, err := h.service.GetPetsByAgeRange(c.Request.Context(), minAge, maxAge, unit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.List(c, result, len(result))
}

// GetAgeStatistics handles GET /api/v1/age-trackers/statistics.
func (h *AgeTrackerHandler) GetAgeStatistics(c *gin.Context) {
	stats, err := h.service.GetAgeStatistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// UpdateAllAges handles POST /api/v1/age-trackers/update-all.
// Per-record failures are logged by the service; the counts are still returned.
// The pass runs to completion even if the client disconnects.
func (h *AgeTrackerHandler) UpdateAllAges(c *gin.Context) {
	result, err := h.service.UpdateAllAges(context.WithoutCancel(c.Request.Context()))
	if result == nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"updatedCount": result.UpdatedCount,
		"failedCount":  result.FailedCount,
	})
}
