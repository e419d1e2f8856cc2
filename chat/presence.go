package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type presenceKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

type typingState struct {
	isTyping  bool
	updatedAt time.Time
}

// PresenceTracker holds the ephemeral per-conversation typing state. It is
// process-local and has no history: records disappear on an explicit stop,
// on disconnect, or when the TTL sweep finds them stale.
type PresenceTracker struct {
	mu      sync.RWMutex
	entries map[presenceKey]typingState
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		entries: make(map[presenceKey]typingState),
	}
}

// SetTyping upserts the typing record for (conversation, user).
func (p *PresenceTracker) SetTyping(conversationID, userID uuid.UUID, isTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[presenceKey{conversationID, userID}] = typingState{
		isTyping:  isTyping,
		updatedAt: time.Now(),
	}
}

// IsTyping reports whether the user currently has an active typing record.
func (p *PresenceTracker) IsTyping(conversationID, userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.entries[presenceKey{conversationID, userID}]
	return ok && state.isTyping
}

// ClearUser drops the user's record immediately. The gateway calls this on
// disconnect so a dropped connection cannot leave a stale indicator behind
// until the sweep catches it.
func (p *PresenceTracker) ClearUser(conversationID, userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, presenceKey{conversationID, userID})
}

// ClearStale removes every record older than ttl and returns how many were
// dropped.
func (p *PresenceTracker) ClearStale(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for key, state := range p.entries {
		if state.updatedAt.Before(cutoff) {
			delete(p.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps stale records on its own ticker until the context is
// cancelled. This is independent of any single connection's lifecycle and
// is the only periodic background task in the gateway.
func (p *PresenceTracker) Run(ctx context.Context, sweepInterval, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := p.ClearStale(ttl); removed > 0 {
				log.Printf("presence sweep removed %d stale typing records", removed)
			}
		}
	}
}
