package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/barrim_notifications/models"
)

// MemoryNotificationRepository is a process-local notification log for
// development and tests. Contents are lost on restart.
type MemoryNotificationRepository struct {
	mu    sync.RWMutex
	items []models.Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

func (r *MemoryNotificationRepository) Append(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	r.items = append(r.items, *n)
	return nil
}

func (r *MemoryNotificationRepository) List(_ context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	limit, offset = ClampPage(limit, offset)

	r.mu.RLock()
	owned := []models.Notification{}
	for _, n := range r.items {
		if n.UserID == userID {
			owned = append(owned, n)
		}
	}
	r.mu.RUnlock()

	// same ordering as the Mongo index: createdAt desc, then id desc
	sort.SliceStable(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID.Hex() > owned[j].ID.Hex()
	})

	if offset >= len(owned) {
		return []models.Notification{}, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}
	return owned, nil
}

func (r *MemoryNotificationRepository) UnreadCount(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, n := range r.items {
		if n.UserID == userID && n.Status == models.StatusUnread {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		n := &r.items[i]
		if n.ID.Hex() != id || n.UserID != userID {
			continue
		}
		if n.Status == models.StatusUnread {
			now := time.Now()
			n.Status = models.StatusRead
			n.ReadAt = &now
		}
		return nil
	}
	return models.ErrNotFound
}

func (r *MemoryNotificationRepository) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var updated int64
	for i := range r.items {
		n := &r.items[i]
		if n.UserID == userID && n.Status == models.StatusUnread {
			n.Status = models.StatusRead
			n.ReadAt = &now
			updated++
		}
	}
	return updated, nil
}

// MemoryPreferenceRepository keeps delivery preferences in process memory
type MemoryPreferenceRepository struct {
	mu     sync.Mutex
	byUser map[string]models.DeliveryPreferences
}

func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{byUser: make(map[string]models.DeliveryPreferences)}
}

func (r *MemoryPreferenceRepository) Get(_ context.Context, userID string) (models.DeliveryPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(userID), nil
}

func (r *MemoryPreferenceRepository) Update(_ context.Context, prefs models.DeliveryPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.getLocked(prefs.UserID)
	current.InApp = prefs.InApp
	current.NativeAlert = prefs.NativeAlert
	current.NativePermissionGranted = prefs.NativePermissionGranted
	current.NativePermissionAsked = prefs.NativePermissionAsked
	current.UpdatedAt = time.Now()
	r.byUser[prefs.UserID] = current
	return nil
}

func (r *MemoryPreferenceRepository) AddDeviceToken(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.getLocked(userID)
	for _, t := range p.DeviceTokens {
		if t == token {
			return nil
		}
	}
	p.DeviceTokens = append(append([]string(nil), p.DeviceTokens...), token)
	r.byUser[userID] = p
	return nil
}

func (r *MemoryPreferenceRepository) RemoveDeviceToken(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.getLocked(userID)
	kept := make([]string, 0, len(p.DeviceTokens))
	for _, t := range p.DeviceTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	p.DeviceTokens = kept
	r.byUser[userID] = p
	return nil
}

func (r *MemoryPreferenceRepository) getLocked(userID string) models.DeliveryPreferences {
	p, ok := r.byUser[userID]
	if !ok {
		p = models.DefaultPreferences(userID)
		r.byUser[userID] = p
	}
	return p
}
