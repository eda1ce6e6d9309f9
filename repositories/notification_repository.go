package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/barrim_notifications/config"
	"github.com/HSouheill/barrim_notifications/models"
)

// MaxPageSize bounds a single page of notifications
const MaxPageSize = 100

// NotificationRepository is the durable notification log backed by MongoDB
type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection(config.NotificationsCollection),
	}
}

// Append durably stores a new notification. The id is assigned here when
// the caller left it empty.
func (r *NotificationRepository) Append(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a page of the user's notifications, newest first
func (r *NotificationRepository) List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	limit, offset = ClampPage(limit, offset)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts the user's unread notifications
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"userId": userID, "status": models.StatusUnread})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. Marking an already read notification
// succeeds without changing readAt. ErrNotFound is returned when the id does
// not exist or belongs to another user.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrNotFound
	}

	now := time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "userId": userID, "status": models.StatusUnread},
		bson.M{"$set": bson.M{"status": models.StatusRead, "readAt": now}},
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing unread matched: either already read or not ours
	err = r.collection.FindOne(ctx, bson.M{"_id": objID, "userId": userID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find notification: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"userId": userID, "status": models.StatusUnread},
		bson.M{"$set": bson.M{"status": models.StatusRead, "readAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

// ClampPage applies the default and maximum page size
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
