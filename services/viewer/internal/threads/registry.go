// Package threads tracks open comment thread views. Each view holds one
// commenttree.Store behind an opaque session token; closing the view (or
// idling past the TTL) invalidates the token and the store with it.
package threads

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/movie-platform/services/viewer/internal/commenttree"
)

// ErrUnknownToken means the token was never issued or its view has been
// closed. Callers treat it like a stale browser tab: re-open the thread.
var ErrUnknownToken = errors.New("threads: unknown or closed session token")

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 1 * time.Minute
)

type entry struct {
	store    *commenttree.Store
	lastSeen time.Time
}

// Registry issues and resolves thread session tokens. It is safe for
// concurrent use.
type Registry struct {
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewRegistry(ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Open registers a loaded store and returns its session token.
func (r *Registry) Open(store *commenttree.Store) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.entries[token] = &entry{store: store, lastSeen: r.now()}
	r.mu.Unlock()
	return token
}

// Get resolves a token to its store and refreshes the idle clock.
func (r *Registry) Get(token string) (*commenttree.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	e.lastSeen = r.now()
	return e.store, nil
}

// Close invalidates a token and its store. Closing an unknown token returns
// ErrUnknownToken; closing twice is therefore an error the second time.
func (r *Registry) Close(token string) error {
	r.mu.Lock()
	e, ok := r.entries[token]
	if ok {
		delete(r.entries, token)
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownToken
	}
	e.store.Close()
	return nil
}

// Len reports the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sweep closes every view idle longer than the TTL and reports how many it
// evicted.
func (r *Registry) sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*entry
	for token, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e)
			delete(r.entries, token)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.store.Close()
	}
	return len(expired)
}

// StartSweeper evicts idle views on the given interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.sweep(); n > 0 {
					r.logger.Info("evicted idle thread views", zap.Int("count", n))
				}
			}
		}
	}()
}
