package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/petwelfare/service-agetracker/internal/platform/domain"
)

// Success writes a 200 envelope with the given payload.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Created writes a 201 envelope with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// List writes a 200 envelope with the payload and its element count.
func List(c *gin.Context, data interface{}, count int) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": count})
}

// BadRequest writes a 400 failure envelope.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// Fail writes a failure envelope with an explicit status.
func Fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// Error maps err to an HTTP status. Unclassified errors become a generic 500 so
// store internals never reach the client.
func Error(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		Fail(c, status, "internal server error")
		return
	}
	Fail(c, status, err.Error())
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound, domain.CodePetNotFound:
		return http.StatusNotFound
	case domain.CodeConflict, domain.CodeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
