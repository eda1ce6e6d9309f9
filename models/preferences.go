package models

import "time"

// DeliveryPreferences holds the per-user channel toggles
type DeliveryPreferences struct {
	UserID                  string    `json:"userId" bson:"userId"`
	InApp                   bool      `json:"inApp" bson:"inApp"`                                     // In-app toast and live push
	NativeAlert             bool      `json:"nativeAlert" bson:"nativeAlert"`                         // Native desktop/browser/mobile alert
	NativePermissionGranted bool      `json:"nativePermissionGranted" bson:"nativePermissionGranted"` // OS permission result
	NativePermissionAsked   bool      `json:"nativePermissionAsked" bson:"nativePermissionAsked"`     // True once the OS prompt has been shown
	DeviceTokens            []string  `json:"-" bson:"deviceTokens,omitempty"`                        // FCM registration tokens, never exposed
	UpdatedAt               time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DefaultPreferences returns the preferences a user starts with: in-app on,
// native alerts off until permission is explicitly granted.
func DefaultPreferences(userID string) DeliveryPreferences {
	return DeliveryPreferences{
		UserID:    userID,
		InApp:     true,
		UpdatedAt: time.Now(),
	}
}

// NativeAlertAllowed reports whether a native alert may be shown
func (p *DeliveryPreferences) NativeAlertAllowed() bool {
	return p != nil && p.NativeAlert && p.NativePermissionGranted
}

// UpdatePreferencesRequest is a whole-object replace of the user-editable fields
type UpdatePreferencesRequest struct {
	InApp                   bool `json:"inApp"`
	NativeAlert             bool `json:"nativeAlert"`
	NativePermissionGranted bool `json:"nativePermissionGranted"`
	NativePermissionAsked   bool `json:"nativePermissionAsked"`
}
