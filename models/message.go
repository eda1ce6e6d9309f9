package models

import (
	"encoding/json"
	"fmt"
)

// Push message kinds sent from server to client over the WebSocket channel
const (
	MessageNotification      = "notification"
	MessageNotificationCount = "notification_count"
	MessageError             = "error"

	// MessageSync is sent by the client to request a fresh snapshot
	MessageSync = "sync"
)

// Message is the envelope for every frame on the push channel
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SnapshotPayload replaces the client's notification list
type SnapshotPayload struct {
	Notifications []Notification `json:"notifications"`
}

// CountPayload carries the server-authoritative unread count
type CountPayload struct {
	UnreadCount int64 `json:"unreadCount"`
}

// ErrorPayload carries a server-reported error
type ErrorPayload struct {
	Error string `json:"error"`
}

func newMessage(kind string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Message{Type: kind, Data: data}, nil
}

// NewNotificationMessage builds an incremental push for a single notification
func NewNotificationMessage(n Notification) (Message, error) {
	return newMessage(MessageNotification, n)
}

// NewSnapshotMessage builds a bulk push that replaces client state
func NewSnapshotMessage(notifications []Notification) (Message, error) {
	if notifications == nil {
		notifications = []Notification{}
	}
	return newMessage(MessageNotification, SnapshotPayload{Notifications: notifications})
}

// NewCountMessage builds a notification_count push
func NewCountMessage(count int64) (Message, error) {
	if count < 0 {
		count = 0
	}
	return newMessage(MessageNotificationCount, CountPayload{UnreadCount: count})
}

// NewErrorMessage builds an error push
func NewErrorMessage(text string) (Message, error) {
	return newMessage(MessageError, ErrorPayload{Error: text})
}

// DecodeNotificationPayload tells a snapshot apart from a single record by
// the presence of a "notifications" array.
func DecodeNotificationPayload(data json.RawMessage) (snapshot []Notification, single *Notification, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("decode notification payload: %w", err)
	}
	if raw, ok := probe["notifications"]; ok {
		var list []Notification
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, nil, fmt.Errorf("decode notification snapshot: %w", err)
		}
		if list == nil {
			list = []Notification{}
		}
		return list, nil, nil
	}
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, nil, fmt.Errorf("decode notification: %w", err)
	}
	return nil, &n, nil
}
