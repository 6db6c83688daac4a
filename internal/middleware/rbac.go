package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/repository"
	"github.com/peakprep/peakprep-backend/internal/response"
)

// RequireRole checks the stored profile row for the required role. The token
// already encodes a role, but profile rows are authoritative for sensitive
// paths such as question administration.
func RequireRole(profiles *repository.ProfileRepository, role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		ok, err := profiles.HasRole(c.Request.Context(), claims.UserID, role)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		if !ok {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		c.Next()
	}
}
