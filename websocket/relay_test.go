package websocket

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memoryPresence is a presenceStore whose keys only expire when told to
type memoryPresence struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newMemoryPresence() *memoryPresence {
	return &memoryPresence{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memoryPresence) Add(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key] += delta
	m.ttls[key] = ttl
	return m.counts[key], nil
}

func (m *memoryPresence) Touch(_ context.Context, key string, seed int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counts[key]; !ok {
		m.counts[key] = seed
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryPresence) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key], nil
}

func (m *memoryPresence) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key)
	delete(m.ttls, key)
	return nil
}

func (m *memoryPresence) expire(key string) {
	m.Delete(context.Background(), key)
}

func (m *memoryPresence) ttl(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

func newTestRelay() (*Relay, *Hub, *memoryPresence) {
	hub := NewHub()
	store := newMemoryPresence()
	r := &Relay{hub: hub, presence: store}
	hub.OnPresenceChange(r.trackPresence)
	return r, hub, store
}

func TestRelayPresenceExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, hub, store := newTestRelay()
	key := presenceKeyPrefix + "user-1"

	tab1 := NewConnection("user-1", &fakeTransport{}, time.Second)
	tab2 := NewConnection("user-1", &fakeTransport{}, time.Second)
	hub.Register("user-1", tab1)
	hub.Register("user-1", tab2)

	if online, _ := r.Online(ctx, "user-1"); !online {
		t.Fatal("user should be online after register")
	}
	if got := store.ttl(key); got != presenceTTL {
		t.Errorf("presence ttl = %v, want %v", got, presenceTTL)
	}

	// counter lost, e.g. expired while this instance was still serving
	store.expire(key)
	if online, _ := r.Online(ctx, "user-1"); online {
		t.Fatal("expired counter should read as offline")
	}
	r.refreshPresence(ctx)
	if n, _ := store.Get(ctx, key); n != 2 {
		t.Errorf("refreshed counter = %d, want 2", n)
	}

	hub.Unregister("user-1", tab1)
	hub.Unregister("user-1", tab2)
	if online, _ := r.Online(ctx, "user-1"); online {
		t.Error("user should be offline after the last unregister")
	}

	// nothing local to refresh: a counter left by a crashed instance is not extended
	store.Add(ctx, presenceKeyPrefix+"user-2", 1, time.Millisecond)
	r.refreshPresence(ctx)
	if got := store.ttl(presenceKeyPrefix + "user-2"); got != time.Millisecond {
		t.Errorf("foreign counter ttl = %v, want it left alone", got)
	}
}
