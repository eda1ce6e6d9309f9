package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category identifies which domain event produced a notification
type Category string

const (
	CategoryRequestSubmitted Category = "request_submitted"
	CategoryRequestApproved  Category = "request_approved"
	CategoryRequestRejected  Category = "request_rejected"
	CategoryConflictDetected Category = "conflict_detected"
	CategoryUserApproved     Category = "user_approved"
	CategoryOther            Category = "other"
)

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryRequestSubmitted, CategoryRequestApproved, CategoryRequestRejected,
		CategoryConflictDetected, CategoryUserApproved, CategoryOther:
		return true
	}
	return false
}

// RequiresInteraction reports whether a native alert for this category must
// stay on screen until the user acts on it.
func (c Category) RequiresInteraction() bool {
	return c == CategoryRequestSubmitted || c == CategoryConflictDetected
}

// Notification status values. Status only ever moves from unread to read.
const (
	StatusUnread = "unread"
	StatusRead   = "read"
)

// Notification model
type Notification struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID     string             `json:"userId" bson:"userId"`                             // Owner of the notification
	Type       Category           `json:"type" bson:"type"`                                 // Immutable after creation
	Title      string             `json:"title" bson:"title"`                               // Notification title
	Message    string             `json:"message" bson:"message"`                           // Notification body
	EntityID   string             `json:"entityId,omitempty" bson:"entityId,omitempty"`     // Related entity, e.g. a vacation request id
	EntityType string             `json:"entityType,omitempty" bson:"entityType,omitempty"` // e.g. "vacation_request"
	Status     string             `json:"status" bson:"status"`                             // "unread" or "read"
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`                       // Timestamp of notification creation
	ReadAt     *time.Time         `json:"readAt,omitempty" bson:"readAt,omitempty"`         // Set once, when first marked read
}

// IsRead reports whether the notification has been read
func (n *Notification) IsRead() bool {
	return n.Status == StatusRead
}

// CreateNotificationRequest is the body of the internal dispatch endpoint
type CreateNotificationRequest struct {
	UserID     string   `json:"userId" validate:"required"`
	Type       Category `json:"type" validate:"required"`
	Title      string   `json:"title" validate:"required,max=200"`
	Message    string   `json:"message" validate:"required,max=2000"`
	EntityID   string   `json:"entityId,omitempty" validate:"omitempty,max=100"`
	EntityType string   `json:"entityType,omitempty" validate:"omitempty,max=50"`
}

// DeviceTokenRequest registers a device for native mobile push
type DeviceTokenRequest struct {
	Token string `json:"token" validate:"required"`
}
