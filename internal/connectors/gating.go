package connectors

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// SendLimiter wraps golang.org/x/time/rate to throttle outbound API
// calls per connector instance, replacing the teacher's hand-rolled
// token bucket (_examples/haasonsaas-nexus/internal/channels/
// ratelimit.go) with the ecosystem-standard limiter.
type SendLimiter struct {
	limiter *rate.Limiter
}

// NewSendLimiter builds a limiter allowing ratePerSecond sustained
// sends with a burst capacity.
func NewSendLimiter(ratePerSecond float64, burst int) *SendLimiter {
	return &SendLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a send slot is available or ctx is cancelled.
func (s *SendLimiter) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// groupHistoryCap bounds the in-memory ring of recent group messages
// kept per chat for mention-context, per spec.md's connector shared
// behavior.
const groupHistoryCap = 20

// GroupHistory is a small fixed-size ring of recent messages per chat,
// used to give the agent short-term context in ungated group chats.
type GroupHistory struct {
	mu    sync.Mutex
	byKey map[string][]string
}

// NewGroupHistory constructs an empty history ring set.
func NewGroupHistory() *GroupHistory {
	return &GroupHistory{byKey: make(map[string][]string)}
}

// Record appends a message to the ring for chatKey, trimming to cap.
func (g *GroupHistory) Record(chatKey, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := append(g.byKey[chatKey], message)
	if len(entries) > groupHistoryCap {
		entries = entries[len(entries)-groupHistoryCap:]
	}
	g.byKey[chatKey] = entries
}

// Snapshot returns a copy of the current ring for chatKey.
func (g *GroupHistory) Snapshot(chatKey string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := g.byKey[chatKey]
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// ShouldRespond applies mention-mode gating: in ModeAllMessages every
// message is answered; in ModeMentionOnly only messages referencing
// mentionPrefix (the bot's @handle or configured trigger word) are.
// Direct messages (isGroup false) always pass, matching spec.md's rule
// that mention gating only applies to group/channel contexts.
func ShouldRespond(mode ResponseMode, isGroup bool, mentionPrefix, text string) bool {
	if !isGroup {
		return true
	}
	if mode == ModeAllMessages {
		return true
	}
	if mentionPrefix == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(mentionPrefix))
}
