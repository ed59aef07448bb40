package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// sessionRegistry tracks the newest run per session. Beginning a run cancels
// the session's previous one and rotates its token, so an answer that was
// outrun by a newer question is never presented as current.
type sessionRegistry struct {
	cache *ttlcache.Cache[string, *sessionSlot]
}

type sessionSlot struct {
	token  string
	cancel context.CancelFunc
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	cache := ttlcache.New[string, *sessionSlot](
		ttlcache.WithTTL[string, *sessionSlot](ttl),
	)
	// An expired or deleted entry releases its run's context.
	cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *sessionSlot]) {
		item.Value().cancel()
	})
	go cache.Start()
	return &sessionRegistry{cache: cache}
}

// begin registers a fresh run as the session's newest, cancelling whichever
// run held the session before. The returned context is cancelled when a
// later run begins on the same session.
func (s *sessionRegistry) begin(ctx context.Context, sessionID string) (context.Context, string) {
	if prev := s.cache.Get(sessionID); prev != nil {
		prev.Value().cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	token := uuid.NewString()
	s.cache.Set(sessionID, &sessionSlot{token: token, cancel: cancel}, ttlcache.DefaultTTL)
	return ctx, token
}

// current reports whether token still names the session's newest run.
func (s *sessionRegistry) current(sessionID, token string) bool {
	item := s.cache.Get(sessionID)
	return item != nil && item.Value().token == token
}

func (s *sessionRegistry) stop() {
	s.cache.DeleteAll()
	s.cache.Stop()
}
