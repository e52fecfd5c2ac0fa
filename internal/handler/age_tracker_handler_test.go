package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/petwelfare/service-agetracker/internal/application"
	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
	"github.com/petwelfare/service-agetracker/internal/platform/auth"
	"github.com/petwelfare/service-agetracker/internal/repository"
)

var now = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
}

type testServer struct {
	router *gin.Engine
	jwt    *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pets := repository.NewMemoryPetRepository()
	for _, code := range []string{"P1", "P2", "P3"} {
		p, err := petDomain.NewPet(code, "Pet "+code, "cat", "siamese", now)
		require.NoError(t, err)
		require.NoError(t, pets.Upsert(context.Background(), p))
	}

	svc := application.NewAgeTrackingService(
		repository.NewMemoryAgeTrackerRepository(),
		pets,
		nil,
		func() time.Time { return now },
		zaptest.NewLogger(t),
	)

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	router := gin.New()
	NewAgeTrackerHandler(svc).RegisterRoutes(router.Group(""), jwtManager)

	return &testServer{router: router, jwt: jwtManager}
}

func (s *testServer) do(t *testing.T, role auth.Role, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := s.jwt.GenerateAccessToken(uuid.New(), "staff@example.com", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestCreateAgeTracker_Endpoint(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P1", "initialAgeValue": 6, "initialAgeUnit": "months",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var dto application.AgeTrackerDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "manual", dto.CalculationMethod)
	assert.Equal(t, "6 months", dto.CurrentAge.Display)

	w, env = s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P1", "initialAgeValue": 1, "initialAgeUnit": "years",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)
}

func TestCreateAgeTracker_ZeroInitialAgeAccepted(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P1", "initialAgeValue": 0, "initialAgeUnit": "days",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateAgeTracker_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing value", map[string]interface{}{"petCode": "P1", "initialAgeUnit": "months"}, http.StatusBadRequest},
		{"missing unit", map[string]interface{}{"petCode": "P1", "initialAgeValue": 2}, http.StatusBadRequest},
		{"missing pet code", map[string]interface{}{"initialAgeValue": 2, "initialAgeUnit": "months"}, http.StatusBadRequest},
		{"negative value", map[string]interface{}{"petCode": "P1", "initialAgeValue": -2, "initialAgeUnit": "months"}, http.StatusBadRequest},
		{"unknown unit", map[string]interface{}{"petCode": "P1", "initialAgeValue": 2, "initialAgeUnit": "lustrums"}, http.StatusBadRequest},
		{"bad birth date", map[string]interface{}{"petCode": "P1", "initialAgeValue": 2, "initialAgeUnit": "months", "birthDate": "soon"}, http.StatusBadRequest},
		{"malformed json", "{", http.StatusBadRequest},
		{"unknown pet", map[string]interface{}{"petCode": "P9", "initialAgeValue": 2, "initialAgeUnit": "months"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestAgeTrackerRoutes_RequireAuth(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, "", http.MethodGet, "/api/v1/age-trackers/statistics", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
}

func TestUpdateAll_RoleGated(t *testing.T) {
	s := newTestServer(t)

	_, _ = s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P1", "initialAgeValue": 6, "initialAgeUnit": "months",
	})

	w, _ := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers/update-all", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleManager} {
		w, env := s.do(t, role, http.MethodPost, "/api/v1/age-trackers/update-all", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var data struct {
			UpdatedCount int `json:"updatedCount"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, 1, data.UpdatedCount)
	}
}

func TestUpdateAll_CompletesWhenClientGoesAway(t *testing.T) {
	s := newTestServer(t)
	for _, code := range []string{"P1", "P2", "P3"} {
		w, _ := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
			"petCode": code, "initialAgeValue": 6, "initialAgeUnit": "months",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	token, err := s.jwt.GenerateAccessToken(uuid.New(), "ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/age-trackers/update-all", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var data struct {
		UpdatedCount int `json:"updatedCount"`
		FailedCount  int `json:"failedCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 3, data.UpdatedCount)
	assert.Zero(t, data.FailedCount)
}

func TestGetCurrentAge_Endpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/P1/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, _ = s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P1", "initialAgeValue": 1, "initialAgeUnit": "months", "birthDate": "2025-08-17",
	})

	w, env := s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/P1/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dto application.CurrentAgeDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "birthdate", dto.CalculationMethod)
	assert.Equal(t, application.AgeDTO{Value: 13, Unit: "months", Display: "13 months"}, dto.CurrentAge)
}

func TestUpdateAgeTracker_Endpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, auth.RoleUser, http.MethodPut, "/api/v1/age-trackers/P2", map[string]interface{}{"initialAgeValue": 2, "initialAgeUnit": "years"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, _ = s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P2", "initialAgeValue": 3, "initialAgeUnit": "weeks",
	})

	w, env := s.do(t, auth.RoleUser, http.MethodPut, "/api/v1/age-trackers/P2", map[string]interface{}{"initialAgeValue": 2, "initialAgeUnit": "years"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var dto application.AgeTrackerDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "2 years", dto.CurrentAge.Display)
	assert.Equal(t, int64(2), dto.Version)
}

func TestDeleteAgeTracker_Endpoint(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, auth.RoleUser, http.MethodDelete, "/api/v1/age-trackers/P3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)

	_, _ = s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
		"petCode": "P3", "initialAgeValue": 1, "initialAgeUnit": "years",
	})

	w, env = s.do(t, auth.RoleUser, http.MethodDelete, "/api/v1/age-trackers/P3", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestRangeAndStatistics_Endpoints(t *testing.T) {
	s := newTestServer(t)

	for code, v := range map[string]float64{"P1": 6, "P2": 8, "P3": 10} {
		w, _ := s.do(t, auth.RoleUser, http.MethodPost, "/api/v1/age-trackers", map[string]interface{}{
			"petCode": code, "initialAgeValue": v, "initialAgeUnit": "months",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, env := s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/range?minAge=7&maxAge=10&unit=months", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Count)
	assert.Equal(t, 2, *env.Count)

	var rows []application.PetAgeDTO
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Equal(t, "P2", rows[0].PetCode)
	assert.Equal(t, "Pet P2", rows[0].PetName)

	w, _ = s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/range?minAge=x&maxAge=10&unit=months", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/range?minAge=1&maxAge=10", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, auth.RoleUser, http.MethodGet, "/api/v1/age-trackers/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats []struct {
		Unit       string  `json:"unit"`
		Count      int64   `json:"count"`
		AverageAge float64 `json:"averageAge"`
		MinAge     float64 `json:"minAge"`
		MaxAge     float64 `json:"maxAge"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "months", stats[0].Unit)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, 8.0, stats[0].AverageAge)
}
