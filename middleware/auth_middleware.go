package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpipe/utils"
)

// StatsAuth guards GET /stats. A matching X-API-KEY passes; otherwise a
// Bearer JWT whose site_ids include the requested site_id is required. With
// neither apiKey nor jwtSecret configured the route stays open.
func StatsAuth(apiKey string, jwtSecret []byte, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" && len(jwtSecret) == 0 {
			c.Next()
			return
		}

		if key := c.GetHeader("X-API-KEY"); apiKey != "" && key != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			c.Next()
			return
		}

		if len(jwtSecret) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			log.Debug("stats auth: no token provided", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := utils.ValidateJWT(jwtSecret, tokenString)
		if err != nil {
			log.Info("stats auth: invalid token", zap.Error(err), zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		siteID := c.Query("site_id")
		if siteID != "" && !claims.AllowsSite(siteID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set("token_subject", claims.Subject)
		c.Next()
	}
}
