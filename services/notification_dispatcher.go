package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/HSouheill/barrim_notifications/models"
	"github.com/HSouheill/barrim_notifications/websocket"
)

// SnapshotSize is how many recent notifications a sync snapshot carries
const SnapshotSize = 50

// NotificationLog is the durable, append-only notification store
type NotificationLog interface {
	Append(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// PreferenceStore holds per-user delivery preferences
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (models.DeliveryPreferences, error)
	Update(ctx context.Context, prefs models.DeliveryPreferences) error
	AddDeviceToken(ctx context.Context, userID, token string) error
}

// Fanout delivers messages to a user's live connections
type Fanout interface {
	Deliver(ctx context.Context, userID string, msgs ...models.Message) int
}

// Presence tells whether a user currently has any live connection
type Presence interface {
	Online(ctx context.Context, userID string) (bool, error)
}

// NativePusher sends native mobile alerts to offline users
type NativePusher interface {
	Push(ctx context.Context, prefs models.DeliveryPreferences, n models.Notification) error
}

// Dispatcher writes notifications to the log and pushes them to the owner's
// open connections. Work for one user is serialized so pushes are observed
// in append order; different users never wait on each other.
type Dispatcher struct {
	log      NotificationLog
	prefs    PreferenceStore
	fanout   Fanout
	presence Presence
	native   NativePusher
	locks    *userLocks
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. native may be nil.
func NewDispatcher(notifications NotificationLog, prefs PreferenceStore, fanout Fanout, presence Presence, native NativePusher) *Dispatcher {
	return &Dispatcher{
		log:      notifications,
		prefs:    prefs,
		fanout:   fanout,
		presence: presence,
		native:   native,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// Dispatch durably appends n, then pushes it and the fresh unread count to
// every live connection of the owner. A failed append returns an error
// wrapping models.ErrDurableWrite and nothing is pushed. Push failures and
// offline users are not errors: clients resync from the log.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	if err := d.prepare(n); err != nil {
		return err
	}

	unlock := d.locks.lock(n.UserID)
	defer unlock()

	// stamped under the user lock so createdAt order equals append order
	n.CreatedAt = d.now()
	if err := d.log.Append(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", models.ErrDurableWrite, err)
	}

	prefs, err := d.prefs.Get(ctx, n.UserID)
	if err != nil {
		log.Printf("Loading preferences for user %s failed, using defaults: %v", n.UserID, err)
		prefs = models.DefaultPreferences(n.UserID)
	}

	var msgs []models.Message
	if prefs.InApp {
		msg, err := models.NewNotificationMessage(*n)
		if err != nil {
			log.Printf("Encoding notification %s failed: %v", n.ID.Hex(), err)
		} else {
			msgs = append(msgs, msg)
		}
	}

	count, err := d.log.UnreadCount(ctx, n.UserID)
	if err != nil {
		log.Printf("Counting unread notifications for user %s failed: %v", n.UserID, err)
	} else if msg, err := models.NewCountMessage(count); err == nil {
		msgs = append(msgs, msg)
	}

	if len(msgs) > 0 {
		d.fanout.Deliver(ctx, n.UserID, msgs...)
	}

	d.pushNative(ctx, prefs, *n)
	return nil
}

// MarkRead marks one notification read and pushes the new unread count
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	unlock := d.locks.lock(userID)
	defer unlock()

	if err := d.log.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	d.pushCount(ctx, userID)
	return nil
}

// MarkAllRead marks every notification of the user read and pushes the count
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	updated, err := d.log.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	d.pushCount(ctx, userID)
	return updated, nil
}

// Sync sends the unread count, preceded by a snapshot of the latest
// notifications when snapshot is set, to a single connection. It runs under
// the user's lock so it cannot interleave with a dispatch for that user.
func (d *Dispatcher) Sync(ctx context.Context, conn *websocket.Connection, snapshot bool) error {
	unlock := d.locks.lock(conn.UserID)
	defer unlock()

	if snapshot {
		recent, err := d.log.List(ctx, conn.UserID, SnapshotSize, 0)
		if err != nil {
			return d.sendError(conn, fmt.Errorf("list notifications: %w", err))
		}
		msg, err := models.NewSnapshotMessage(recent)
		if err != nil {
			return err
		}
		if err := conn.Send(msg); err != nil {
			return fmt.Errorf("send snapshot: %w", err)
		}
	}

	count, err := d.log.UnreadCount(ctx, conn.UserID)
	if err != nil {
		return d.sendError(conn, fmt.Errorf("count unread notifications: %w", err))
	}
	msg, err := models.NewCountMessage(count)
	if err != nil {
		return err
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("send count: %w", err)
	}
	return nil
}

func (d *Dispatcher) prepare(n *models.Notification) error {
	n.UserID = strings.TrimSpace(n.UserID)
	if n.UserID == "" {
		return fmt.Errorf("%w: notification has no owner", models.ErrInvalidInput)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: notification has no title", models.ErrInvalidInput)
	}
	if !n.Type.Valid() {
		n.Type = models.CategoryOther
	}
	n.Status = models.StatusUnread
	n.ReadAt = nil
	return nil
}

func (d *Dispatcher) pushCount(ctx context.Context, userID string) {
	count, err := d.log.UnreadCount(ctx, userID)
	if err != nil {
		log.Printf("Counting unread notifications for user %s failed: %v", userID, err)
		return
	}
	msg, err := models.NewCountMessage(count)
	if err != nil {
		return
	}
	d.fanout.Deliver(ctx, userID, msg)
}

// pushNative sends a mobile push when the user allows native alerts and has
// no live connection; connected clients raise their own native alerts.
func (d *Dispatcher) pushNative(ctx context.Context, prefs models.DeliveryPreferences, n models.Notification) {
	if d.native == nil || !prefs.NativeAlertAllowed() || len(prefs.DeviceTokens) == 0 {
		return
	}
	if d.presence != nil {
		online, err := d.presence.Online(ctx, n.UserID)
		if err != nil {
			log.Printf("Presence lookup for user %s failed: %v", n.UserID, err)
			return
		}
		if online {
			return
		}
	}
	if err := d.native.Push(ctx, prefs, n); err != nil {
		log.Printf("Native push for notification %s failed: %v", n.ID.Hex(), err)
	}
}

func (d *Dispatcher) sendError(conn *websocket.Connection, cause error) error {
	if msg, err := models.NewErrorMessage("Failed to load notifications"); err == nil {
		if sendErr := conn.Send(msg); sendErr != nil {
			return errors.Join(cause, sendErr)
		}
	}
	return cause
}
