package client

import "github.com/HSouheill/barrim_notifications/models"

// MaxLocalNotifications caps the locally held notification list
const MaxLocalNotifications = 50

// ConnState is the connection state of an Agent
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateReconnecting means a backoff timer is pending
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// State is a copy of the agent's local notification state
type State struct {
	Notifications []models.Notification
	UnreadCount   int64
	Connected     bool
	Loading       bool
	Preferences   *models.DeliveryPreferences

	readIDs map[string]struct{}
}

func (s State) clone() State {
	out := s
	out.readIDs = nil
	out.Notifications = append([]models.Notification(nil), s.Notifications...)
	if s.Preferences != nil {
		p := *s.Preferences
		out.Preferences = &p
	}
	return out
}

func (s *State) replace(list []models.Notification) {
	if len(list) > MaxLocalNotifications {
		list = list[:MaxLocalNotifications]
	}
	s.Notifications = append([]models.Notification(nil), list...)
}

// prepend adds n in front, dropping an older copy of the same id, and
// truncates to MaxLocalNotifications. It reports whether n was new.
func (s *State) prepend(n models.Notification) bool {
	list := make([]models.Notification, 0, len(s.Notifications)+1)
	list = append(list, n)
	isNew := true
	for _, existing := range s.Notifications {
		if existing.ID == n.ID {
			isNew = false
			continue
		}
		list = append(list, existing)
	}
	if len(list) > MaxLocalNotifications {
		list = list[:MaxLocalNotifications]
	}
	s.Notifications = list
	return isNew
}

// markRead applies a server-confirmed read of id. The counter drops by one
// the first time an id is confirmed this session, whether or not it is in
// the local list, and never goes below zero.
func (s *State) markRead(id string) {
	for i := range s.Notifications {
		n := &s.Notifications[i]
		if n.ID.Hex() != id {
			continue
		}
		if n.Status == models.StatusRead {
			s.rememberRead(id)
			return
		}
		n.Status = models.StatusRead
		break
	}
	if !s.rememberRead(id) {
		return
	}
	if s.UnreadCount > 0 {
		s.UnreadCount--
	}
}

// rememberRead records id and reports whether it was not yet recorded
func (s *State) rememberRead(id string) bool {
	if _, seen := s.readIDs[id]; seen {
		return false
	}
	if s.readIDs == nil {
		s.readIDs = make(map[string]struct{})
	}
	s.readIDs[id] = struct{}{}
	return true
}

func (s *State) markAllRead() {
	for i := range s.Notifications {
		s.Notifications[i].Status = models.StatusRead
	}
	s.UnreadCount = 0
}
