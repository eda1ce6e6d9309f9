package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/HSouheill/barrim_notifications/models"
)

const (
	relayChannel      = "notifications:deliveries"
	presenceKeyPrefix = "notifications:presence:"
	presenceTimeout   = 2 * time.Second

	// presence counters outlive a crashed instance by at most presenceTTL
	presenceTTL     = 90 * time.Second
	presenceRefresh = 30 * time.Second
)

// relayEnvelope is what travels over Redis between instances
type relayEnvelope struct {
	UserID   string           `json:"userId"`
	Messages []models.Message `json:"messages"`
}

// Relay fans pushes out across server instances through Redis pub/sub.
// Every instance runs Run, which hands received envelopes to its local hub.
// It also keeps a per-user connection counter in Redis so presence is
// known cluster-wide. Counters expire unless Run keeps refreshing them.
type Relay struct {
	client   *redis.Client
	hub      *Hub
	presence presenceStore
}

// NewRelay wires a relay to the local hub
func NewRelay(client *redis.Client, hub *Hub) *Relay {
	r := &Relay{client: client, hub: hub, presence: redisPresence{client: client}}
	hub.OnPresenceChange(r.trackPresence)
	return r
}

// Deliver publishes msgs for the user. If Redis is unavailable the messages
// are delivered to local connections only.
func (r *Relay) Deliver(ctx context.Context, userID string, msgs ...models.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	payload, err := json.Marshal(relayEnvelope{UserID: userID, Messages: msgs})
	if err != nil {
		log.Printf("Relay encode failed for user %s: %v", userID, err)
		return r.hub.Deliver(ctx, userID, msgs...)
	}

	receivers, err := r.client.Publish(ctx, relayChannel, payload).Result()
	if err != nil {
		log.Printf("Relay publish failed for user %s, delivering locally: %v", userID, err)
		return r.hub.Deliver(ctx, userID, msgs...)
	}
	return int(receivers)
}

// Run subscribes to the relay channel and refreshes the presence counters
// of local users until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, relayChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", relayChannel, err)
	}

	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshPresence(ctx)
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("Dropping malformed relay envelope: %v", err)
		return
	}
	if env.UserID == "" {
		return
	}
	r.hub.Deliver(ctx, env.UserID, env.Messages...)
}

// Online reports whether the user has a connection on any instance
func (r *Relay) Online(ctx context.Context, userID string) (bool, error) {
	n, err := r.presence.Get(ctx, presenceKeyPrefix+userID)
	if err != nil {
		return false, fmt.Errorf("read presence: %w", err)
	}
	return n > 0, nil
}

func (r *Relay) trackPresence(userID string, delta int) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	key := presenceKeyPrefix + userID
	n, err := r.presence.Add(ctx, key, int64(delta), presenceTTL)
	if err != nil {
		log.Printf("Presence update failed for user %s: %v", userID, err)
		return
	}
	if n <= 0 {
		if err := r.presence.Delete(ctx, key); err != nil {
			log.Printf("Presence cleanup failed for user %s: %v", userID, err)
		}
	}
}

// refreshPresence extends the counters of users connected to this instance
func (r *Relay) refreshPresence(ctx context.Context) {
	for userID, conns := range r.hub.ConnectedUsers() {
		tctx, cancel := context.WithTimeout(ctx, presenceTimeout)
		err := r.presence.Touch(tctx, presenceKeyPrefix+userID, int64(conns), presenceTTL)
		cancel()
		if err != nil {
			log.Printf("Presence refresh failed for user %s: %v", userID, err)
		}
	}
}
