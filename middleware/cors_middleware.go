package middleware

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// defaultOrigins are the local dev servers allowed when nothing is configured
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
}

// GlobalCORS allows the configured origins to call the API with credentials,
// which the session cookie on the WebSocket handshake needs
func GlobalCORS(allowedOrigins []string) echo.MiddlewareFunc {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	return echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "HEAD", "PUT", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		MaxAge:           86400, // 24 hours
	})
}
