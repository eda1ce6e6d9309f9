package services

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/HSouheill/barrim_notifications/models"
)

// TokenRemover forgets device tokens that FCM no longer accepts
type TokenRemover interface {
	RemoveDeviceToken(ctx context.Context, userID, token string) error
}

// FCMPusher sends native alerts through Firebase Cloud Messaging
type FCMPusher struct {
	client *messaging.Client
	tokens TokenRemover
}

// NewFCMPusher creates a pusher from an initialized Firebase app
func NewFCMPusher(ctx context.Context, app *firebase.App, tokens TokenRemover) (*FCMPusher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize messaging client: %w", err)
	}
	return &FCMPusher{client: client, tokens: tokens}, nil
}

// Push sends n to every registered device of the user
func (p *FCMPusher) Push(ctx context.Context, prefs models.DeliveryPreferences, n models.Notification) error {
	if len(prefs.DeviceTokens) == 0 {
		return nil
	}

	resp, err := p.client.SendEachForMulticast(ctx, BuildFCMMessage(prefs.DeviceTokens, n))
	if err != nil {
		return fmt.Errorf("send FCM notification: %w", err)
	}

	for i, r := range resp.Responses {
		if r.Success || !messaging.IsUnregistered(r.Error) {
			continue
		}
		if err := p.tokens.RemoveDeviceToken(ctx, prefs.UserID, prefs.DeviceTokens[i]); err != nil {
			log.Printf("Error removing stale FCM token for user %s: %v", prefs.UserID, err)
		}
	}

	log.Printf("FCM notification %s sent to user %s: %d ok, %d failed",
		n.ID.Hex(), prefs.UserID, resp.SuccessCount, resp.FailureCount)
	return nil
}

// BuildFCMMessage maps a notification onto an FCM multicast message.
// Categories that require interaction are sent with high priority and a
// dedicated APNS category so the device keeps them visible.
func BuildFCMMessage(tokens []string, n models.Notification) *messaging.MulticastMessage {
	priority := "normal"
	apnsCategory := "NOTIFICATION"
	if n.Type.RequiresInteraction() {
		priority = "high"
		apnsCategory = "NOTIFICATION_ACTION_REQUIRED"
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"notificationId": n.ID.Hex(),
			"type":           string(n.Type),
			"entityId":       n.EntityID,
			"entityType":     n.EntityType,
			"timestamp":      n.CreatedAt.Format(time.RFC3339),
		},
		Android: &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "notifications",
				Tag:       n.ID.Hex(),
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: n.Title,
						Body:  n.Message,
					},
					Sound:    "default",
					Category: apnsCategory,
				},
			},
		},
	}
}
