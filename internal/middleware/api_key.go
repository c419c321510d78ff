package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
)

// APIKeyAuth guards service-to-service endpoints (purchase intake) with
// a static key. Checks the X-API-Key header.
func APIKeyAuth(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedKey == "" {
			common.ErrorResponse(c, http.StatusForbidden, "Endpoint disabled", nil)
			c.Abort()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			common.ErrorResponse(c, http.StatusUnauthorized, "Invalid API key", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
