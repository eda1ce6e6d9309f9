package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifications/middleware"
	"github.com/HSouheill/barrim_notifications/models"
	"github.com/HSouheill/barrim_notifications/repositories"
	"github.com/HSouheill/barrim_notifications/services"
	"github.com/HSouheill/barrim_notifications/utils"
	"github.com/HSouheill/barrim_notifications/websocket"
)

// NotificationController serves the REST side of notification delivery: the
// durable source of truth that the push channel only accelerates.
type NotificationController struct {
	dispatcher    *services.Dispatcher
	notifications services.NotificationLog
	prefs         services.PreferenceStore
	hub           *websocket.Hub
}

func NewNotificationController(dispatcher *services.Dispatcher, notifications services.NotificationLog, prefs services.PreferenceStore, hub *websocket.Hub) *NotificationController {
	return &NotificationController{
		dispatcher:    dispatcher,
		notifications: notifications,
		prefs:         prefs,
		hub:           hub,
	}
}

// GetNotifications returns a page of the user's notifications, newest first
func (nc *NotificationController) GetNotifications(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "limit must be an integer",
		})
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "offset must be an integer",
		})
	}
	limit, offset = repositories.ClampPage(limit, offset)

	notifications, err := nc.notifications.List(c.Request().Context(), userID, limit, offset)
	if err != nil {
		c.Logger().Errorf("Failed to list notifications for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch notifications",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notifications retrieved successfully",
		Data:    notifications,
	})
}

// GetUnreadCount returns the authoritative unread count
func (nc *NotificationController) GetUnreadCount(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	count, err := nc.notifications.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("Failed to count unread notifications for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch unread count",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Unread count retrieved successfully",
		Data:    models.CountPayload{UnreadCount: count},
	})
}

// MarkAsRead marks one notification read. Repeating the call succeeds.
func (nc *NotificationController) MarkAsRead(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	id := c.Param("id")
	if !utils.IsValidObjectID(id) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid notification ID",
		})
	}

	if err := nc.dispatcher.MarkRead(c.Request().Context(), userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Notification not found",
			})
		}
		c.Logger().Errorf("Failed to mark notification %s read: %v", id, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to mark notification as read",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notification marked as read",
	})
}

// MarkAllAsRead marks every unread notification of the user read
func (nc *NotificationController) MarkAllAsRead(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	updated, err := nc.dispatcher.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("Failed to mark all notifications read for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to mark notifications as read",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "All notifications marked as read",
		Data:    map[string]int64{"updated": updated},
	})
}

// GetPreferences returns the user's delivery preferences, creating defaults
// on first access
func (nc *NotificationController) GetPreferences(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	prefs, err := nc.prefs.Get(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("Failed to load preferences for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch preferences",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Preferences retrieved successfully",
		Data:    prefs,
	})
}

// UpdatePreferences replaces the user-editable preference fields
func (nc *NotificationController) UpdatePreferences(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	var req models.UpdatePreferencesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	prefs := models.DeliveryPreferences{
		UserID:                  userID,
		InApp:                   req.InApp,
		NativeAlert:             req.NativeAlert,
		NativePermissionGranted: req.NativePermissionGranted,
		NativePermissionAsked:   req.NativePermissionAsked || req.NativePermissionGranted,
	}
	if err := nc.prefs.Update(ctx, prefs); err != nil {
		c.Logger().Errorf("Failed to save preferences for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to save preferences",
		})
	}

	saved, err := nc.prefs.Get(ctx, userID)
	if err != nil {
		saved = prefs
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Preferences updated successfully",
		Data:    saved,
	})
}

// RegisterDeviceToken stores an FCM token for native pushes while offline
func (nc *NotificationController) RegisterDeviceToken(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return unauthorized(c)
	}

	var req models.DeviceTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil || !utils.IsValidDeviceToken(req.Token) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "A valid device token is required",
		})
	}

	if err := nc.prefs.AddDeviceToken(c.Request().Context(), userID, req.Token); err != nil {
		c.Logger().Errorf("Failed to store device token for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to register device token",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Device token registered successfully",
	})
}

// CreateNotification is the internal entry point for domain events produced
// by other services. The notification is durably stored before it is pushed.
func (nc *NotificationController) CreateNotification(c echo.Context) error {
	var req models.CreateNotificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Validation failed: " + err.Error(),
		})
	}

	n := &models.Notification{
		UserID:     req.UserID,
		Type:       req.Type,
		Title:      utils.SanitizeInput(req.Title),
		Message:    utils.SanitizeInput(req.Message),
		EntityID:   utils.SanitizeInput(req.EntityID),
		EntityType: utils.SanitizeInput(req.EntityType),
	}

	if err := nc.dispatcher.Dispatch(c.Request().Context(), n); err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		}
		c.Logger().Errorf("Failed to dispatch notification for user %s: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to store notification",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Notification created successfully",
		Data:    n,
	})
}

// Health reports liveness and the number of open push connections
func (nc *NotificationController) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": nc.hub.Count(),
	})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.Response{
		Status:  http.StatusUnauthorized,
		Message: "User not authenticated",
	})
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
