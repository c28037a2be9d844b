package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Counter is the storage seam for the sliding-window limiter. The in-memory
// implementation below is per-node; a multi-node deployment substitutes
// RedisCounter so quota cannot be bypassed by spreading requests across nodes.
type Counter interface {
	Record(ctx context.Context, userID string, t time.Time) error
	CountSince(ctx context.Context, userID string, cutoff time.Time) (int, error)
	OldestSince(ctx context.Context, userID string, cutoff time.Time) (time.Time, bool, error)
}

// sweepInterval is how often stale usage entries are pruned.
const sweepInterval = 5 * time.Minute

type userWindow struct {
	mu sync.Mutex
	// removed is set under mu when Prune unlinks the window from the map,
	// so a Record holding a stale pointer knows to start over.
	removed bool
	times   []time.Time
}

// MemoryCounter tracks per-user execution timestamps in process memory.
// Non-authoritative single-node usage tracking: state does not survive a
// restart and is not shared between nodes.
type MemoryCounter struct {
	users  *xsync.MapOf[string, *userWindow]
	logger zerolog.Logger
}

// NewMemoryCounter constructs an in-memory counter.
func NewMemoryCounter(logger zerolog.Logger) *MemoryCounter {
	return &MemoryCounter{
		users:  xsync.NewMapOf[string, *userWindow](),
		logger: logger.With().Str("component", "ratelimit_counter").Logger(),
	}
}

func (c *MemoryCounter) Record(_ context.Context, userID string, t time.Time) error {
	for {
		w, _ := c.users.LoadOrStore(userID, &userWindow{})
		w.mu.Lock()
		if w.removed {
			// Lost a race with Prune; the window is no longer in the map.
			w.mu.Unlock()
			continue
		}
		w.times = append(w.times, t)
		w.mu.Unlock()
		return nil
	}
}

func (c *MemoryCounter) CountSince(_ context.Context, userID string, cutoff time.Time) (int, error) {
	w, ok := c.users.Load(userID)
	if !ok {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	count := 0
	for _, t := range w.times {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (c *MemoryCounter) OldestSince(_ context.Context, userID string, cutoff time.Time) (time.Time, bool, error) {
	w, ok := c.users.Load(userID)
	if !ok {
		return time.Time{}, false, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var oldest time.Time
	found := false
	for _, t := range w.times {
		if t.Before(cutoff) {
			continue
		}
		if !found || t.Before(oldest) {
			oldest = t
			found = true
		}
	}
	return oldest, found, nil
}

// Prune drops entries older than the cutoff from every user's window and
// removes empty windows entirely.
func (c *MemoryCounter) Prune(cutoff time.Time) {
	c.users.Range(func(userID string, w *userWindow) bool {
		w.mu.Lock()
		kept := w.times[:0]
		for _, t := range w.times {
			if !t.Before(cutoff) {
				kept = append(kept, t)
			}
		}
		w.times = kept
		if len(kept) == 0 {
			// Unlink while still holding the lock so no Record can append
			// to a window that is about to leave the map.
			w.removed = true
			c.users.Delete(userID)
		}
		w.mu.Unlock()
		return true
	})
}

// StartSweeping prunes stale entries every five minutes until ctx is done.
func (c *MemoryCounter) StartSweeping(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.Prune(now.Add(-dayWindow))
				c.logger.Debug().Msg("pruned rate limit windows")
			}
		}
	}()
}
