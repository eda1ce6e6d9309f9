package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifications/controllers"
	"github.com/HSouheill/barrim_notifications/middleware"
)

// RegisterNotificationRoutes registers all notification-related routes on an
// authenticated /api group
func RegisterNotificationRoutes(api *echo.Group, notificationController *controllers.NotificationController) {
	notificationGroup := api.Group("/notifications")
	notificationGroup.GET("", notificationController.GetNotifications)
	notificationGroup.GET("/unread-count", notificationController.GetUnreadCount)
	notificationGroup.PUT("/read-all", notificationController.MarkAllAsRead)
	notificationGroup.PUT("/:id/read", notificationController.MarkAsRead)
	notificationGroup.GET("/preferences", notificationController.GetPreferences)
	notificationGroup.PUT("/preferences", notificationController.UpdatePreferences)
	notificationGroup.POST("/device-token", notificationController.RegisterDeviceToken)

	// Domain events from other services
	internal := api.Group("/internal")
	internal.Use(middleware.RequireUserType("admin", "system"))
	internal.POST("/notifications", notificationController.CreateNotification)
}
