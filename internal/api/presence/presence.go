// Package presence maps user identities to online/offline state. The
// durable record lives in Redis so the conversation list can overlay
// isOnline at read time; transition fan-out to connected counterparts
// is the server's job, the tracker only reports transitions.
package presence

import (
	"context"
	"sync"
	"time"
)

// Store is the durable half of the tracker.
type Store interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	Online(ctx context.Context, userIDs ...string) (map[string]bool, error)
}

type Tracker struct {
	store Store

	mu     sync.Mutex
	online map[string]struct{}
}

func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:  store,
		online: make(map[string]struct{}),
	}
}

// MarkOnline records the user as online. It reports whether this was a
// transition, so callers broadcast only on actual state changes.
func (t *Tracker) MarkOnline(ctx context.Context, userID string) (bool, error) {
	t.mu.Lock()
	_, already := t.online[userID]
	t.online[userID] = struct{}{}
	t.mu.Unlock()
	if err := t.store.SetOnline(ctx, userID); err != nil {
		return false, err
	}
	return !already, nil
}

func (t *Tracker) MarkOffline(ctx context.Context, userID string) (bool, error) {
	t.mu.Lock()
	_, was := t.online[userID]
	delete(t.online, userID)
	t.mu.Unlock()
	if err := t.store.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		return false, err
	}
	return was, nil
}

// Online resolves the given users' current state from the store.
func (t *Tracker) Online(ctx context.Context, userIDs ...string) (map[string]bool, error) {
	if len(userIDs) == 0 {
		return map[string]bool{}, nil
	}
	return t.store.Online(ctx, userIDs...)
}
