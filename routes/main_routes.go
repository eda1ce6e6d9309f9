package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifications/controllers"
	"github.com/HSouheill/barrim_notifications/middleware"
	"github.com/HSouheill/barrim_notifications/websocket"
)

// SetupRoutes configures all API routes by calling individual route registration functions
func SetupRoutes(e *echo.Echo, jwtSecret string, notificationController *controllers.NotificationController, wsHandler *websocket.Handler) {
	e.Match([]string{"GET", "HEAD"}, "/health", notificationController.Health)

	api := e.Group("/api")
	api.Use(middleware.JWTMiddleware(jwtSecret))
	api.Use(middleware.RequireJSON())

	// Push channel; identity comes from the session token only
	api.GET("/ws", wsHandler.HandleWebSocket)

	RegisterNotificationRoutes(api, notificationController)
}
