package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/barrim_notifications/models"
)

// memoryLog is an in-memory NotificationLog
type memoryLog struct {
	mu        sync.Mutex
	items     []models.Notification
	appendErr error
	appended  []primitive.ObjectID
}

func (m *memoryLog) Append(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	m.items = append(m.items, *n)
	m.appended = append(m.appended, n.ID)
	return nil
}

func (m *memoryLog) List(_ context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	if offset >= len(out) {
		return []models.Notification{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryLog) UnreadCount(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.items {
		if item.UserID == userID && item.Status == models.StatusUnread {
			n++
		}
	}
	return n, nil
}

func (m *memoryLog) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID.Hex() == id && m.items[i].UserID == userID {
			m.items[i].Status = models.StatusRead
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memoryLog) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && m.items[i].Status == models.StatusUnread {
			m.items[i].Status = models.StatusRead
			n++
		}
	}
	return n, nil
}

func (m *memoryLog) appendOrder() []primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]primitive.ObjectID(nil), m.appended...)
}

// memoryPrefs is an in-memory PreferenceStore
type memoryPrefs struct {
	mu     sync.Mutex
	byUser map[string]models.DeliveryPreferences
	getErr error
}

func newMemoryPrefs() *memoryPrefs {
	return &memoryPrefs{byUser: make(map[string]models.DeliveryPreferences)}
}

func (m *memoryPrefs) Get(_ context.Context, userID string) (models.DeliveryPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.DeliveryPreferences{}, m.getErr
	}
	p, ok := m.byUser[userID]
	if !ok {
		p = models.DefaultPreferences(userID)
		m.byUser[userID] = p
	}
	return p, nil
}

func (m *memoryPrefs) Update(_ context.Context, prefs models.DeliveryPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.byUser[prefs.UserID].DeviceTokens
	prefs.DeviceTokens = tokens
	m.byUser[prefs.UserID] = prefs
	return nil
}

func (m *memoryPrefs) AddDeviceToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byUser[userID]
	if !ok {
		p = models.DefaultPreferences(userID)
	}
	p.DeviceTokens = append(p.DeviceTokens, token)
	m.byUser[userID] = p
	return nil
}

// recordingTransport captures every frame written to a connection
type recordingTransport struct {
	mu       sync.Mutex
	frames   []models.Message
	writeErr error
	closed   bool
}

func (r *recordingTransport) SetWriteDeadline(time.Time) error { return nil }

func (r *recordingTransport) WriteJSON(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.frames = append(r.frames, v.(models.Message))
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.frames...)
}

// notificationIDs returns the ids of incremental notification pushes in order
func notificationIDs(msgs []models.Message) []string {
	var ids []string
	for _, m := range msgs {
		if m.Type != models.MessageNotification {
			continue
		}
		var n models.Notification
		if err := json.Unmarshal(m.Data, &n); err == nil {
			ids = append(ids, n.ID.Hex())
		}
	}
	return ids
}

func lastCount(msgs []models.Message) (int64, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == models.MessageNotificationCount {
			var p models.CountPayload
			if err := json.Unmarshal(msgs[i].Data, &p); err == nil {
				return p.UnreadCount, true
			}
		}
	}
	return 0, false
}

// fakePusher records native pushes
type fakePusher struct {
	mu     sync.Mutex
	pushed []string
}

func (f *fakePusher) Push(_ context.Context, _ models.DeliveryPreferences, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, n.ID.Hex())
	return nil
}

func (f *fakePusher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

var errDisk = errors.New("disk full")
