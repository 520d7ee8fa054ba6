package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured browser origins. A "*" entry allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			break
		}
	}
	if !corsCfg.AllowAllOrigins {
		corsCfg.AllowOrigins = allowedOrigins
		corsCfg.AllowCredentials = true
	}
	return cors.New(corsCfg)
}
