package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peakprep/peakprep-backend/internal/middleware"
	"github.com/peakprep/peakprep-backend/internal/response"
	"github.com/peakprep/peakprep-backend/internal/service"
)

// AnalyticsHandler handles per-user performance analytics endpoints.
type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsService *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// GetAnalytics godoc
// GET /api/v1/student/analytics
// Returns the user's aggregates: one rollup row per test type plus one row
// per subject.
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	stats, err := h.analyticsService.GetUserAnalytics(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"analytics": stats})
}
