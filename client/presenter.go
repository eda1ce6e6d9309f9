package client

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/HSouheill/barrim_notifications/models"
)

// NativeAlertTimeout is how long an alert stays up unless its category
// requires interaction
const NativeAlertTimeout = 10 * time.Second

// Presenter is the UI side of the agent. Calls are made outside the agent's
// lock, so implementations may call back into the Agent.
type Presenter interface {
	ConnectionChanged(state ConnState)
	// NotificationReceived is the in-app toast for a new notification
	NotificationReceived(n models.Notification)
	ShowNativeAlert(alert NativeAlert)
	Warn(message string)
	Navigate(destination string)
}

// PermissionRequester asks the OS for native alert permission. It is only
// invoked from an explicit user gesture.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (granted bool, err error)
}

// NativeAlert is a native alert to display. AutoDismiss is zero when the
// alert must stay until the user acts on it.
type NativeAlert struct {
	Notification       models.Notification
	Title              string
	Body               string
	RequireInteraction bool
	AutoDismiss        time.Duration

	onClick func()
}

// Click marks the notification read and navigates to its destination
func (a NativeAlert) Click() {
	if a.onClick != nil {
		a.onClick()
	}
}

func newNativeAlert(n models.Notification, onClick func()) NativeAlert {
	alert := NativeAlert{
		Notification:       n,
		Title:              n.Title,
		Body:               n.Message,
		RequireInteraction: n.Type.RequiresInteraction(),
		onClick:            onClick,
	}
	if !alert.RequireInteraction {
		alert.AutoDismiss = NativeAlertTimeout
	}
	return alert
}

// Destination maps a notification to the page it should open
func Destination(n models.Notification) string {
	entity := url.PathEscape(n.EntityID)
	switch n.Type {
	case models.CategoryRequestSubmitted:
		if n.EntityID != "" {
			return "/approvals/" + entity
		}
		return "/approvals"
	case models.CategoryConflictDetected:
		if n.EntityID != "" {
			return "/approvals/" + entity + "?conflicts=1"
		}
		return "/approvals"
	case models.CategoryRequestApproved, models.CategoryRequestRejected:
		if n.EntityID != "" {
			return "/requests/" + entity
		}
		return "/requests"
	case models.CategoryUserApproved:
		return "/dashboard"
	}
	return "/notifications"
}

// LogPresenter writes every UI event to a logger. Native alerts are logged
// and never clicked.
type LogPresenter struct {
	Logger *log.Logger
}

func (p LogPresenter) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func (p LogPresenter) ConnectionChanged(state ConnState) {
	p.logger().Printf("connection %s", state)
}

func (p LogPresenter) NotificationReceived(n models.Notification) {
	p.logger().Printf("[%s] %s: %s", n.Type, n.Title, n.Message)
}

func (p LogPresenter) ShowNativeAlert(alert NativeAlert) {
	p.logger().Printf("native alert %q (dismiss after %s, interaction required: %v)",
		alert.Title, alert.AutoDismiss, alert.RequireInteraction)
}

func (p LogPresenter) Warn(message string) {
	p.logger().Printf("warning: %s", message)
}

func (p LogPresenter) Navigate(destination string) {
	p.logger().Printf("navigate to %s", destination)
}
