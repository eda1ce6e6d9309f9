package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/barrim_notifications/config"
	"github.com/HSouheill/barrim_notifications/models"
)

// PreferenceRepository stores one DeliveryPreferences document per user
type PreferenceRepository struct {
	collection *mongo.Collection
}

func NewPreferenceRepository(db *mongo.Database) *PreferenceRepository {
	return &PreferenceRepository{
		collection: db.Collection(config.PreferencesCollection),
	}
}

// Get returns the user's preferences, creating the defaults on first access
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (models.DeliveryPreferences, error) {
	defaults := models.DefaultPreferences(userID)

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var prefs models.DeliveryPreferences
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"userId": userID},
		bson.M{"$setOnInsert": bson.M{
			"inApp":                   defaults.InApp,
			"nativeAlert":             defaults.NativeAlert,
			"nativePermissionGranted": defaults.NativePermissionGranted,
			"nativePermissionAsked":   defaults.NativePermissionAsked,
			"updatedAt":               defaults.UpdatedAt,
		}},
		opts,
	).Decode(&prefs)
	if err != nil {
		return models.DeliveryPreferences{}, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, nil
}

// Update replaces the user-editable fields. Device tokens are kept.
func (r *PreferenceRepository) Update(ctx context.Context, prefs models.DeliveryPreferences) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"userId": prefs.UserID},
		bson.M{"$set": bson.M{
			"inApp":                   prefs.InApp,
			"nativeAlert":             prefs.NativeAlert,
			"nativePermissionGranted": prefs.NativePermissionGranted,
			"nativePermissionAsked":   prefs.NativePermissionAsked,
			"updatedAt":               time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}

// AddDeviceToken registers an FCM token for the user
func (r *PreferenceRepository) AddDeviceToken(ctx context.Context, userID, token string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$addToSet":    bson.M{"deviceTokens": token},
			"$setOnInsert": bson.M{"inApp": true, "updatedAt": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("add device token: %w", err)
	}
	return nil
}

// RemoveDeviceToken drops a token that FCM reported as unregistered
func (r *PreferenceRepository) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$pull": bson.M{"deviceTokens": token}},
	)
	if err != nil {
		return fmt.Errorf("remove device token: %w", err)
	}
	return nil
}
