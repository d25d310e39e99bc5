// Package permission implements C4: the per-turn tool approval broker.
// Grounded on _examples/haasonsaas-nexus/internal/tools/policy/approval.go
// (the {sessionID: *Broker} registry and request-id rendezvous; Ask
// waits on a channel with a bounded timeout instead of polling)
// re-targeted at the spec's two-trust-level model
// (spec.md §4.3) instead of the teacher's fine-grained policy engine.
package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/companion/pkg/models"
)

// Decision is the broker's verdict on one tool call.
type Decision struct {
	Allowed bool
	Reason  string
}

// hostImpactingTools are denied outright for sandboxed sessions: they
// would let a sandboxed agent reach past its container boundary.
var hostImpactingTools = map[string]bool{
	"Bash":      true,
	"Write":     true,
	"Edit":      true,
	"NotebookEdit": true,
}

// Decide applies the two-trust-level rule of spec.md §4.3: direct
// sessions auto-approve every tool; sandboxed sessions approve
// MCP/web/container-local tools and deny host-impacting ones.
func Decide(trust models.TrustLevel, toolName string) Decision {
	if trust == models.TrustDirect {
		return Decision{Allowed: true}
	}
	if hostImpactingTools[toolName] {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s is not permitted for sandboxed sessions", toolName)}
	}
	return Decision{Allowed: true}
}

// pendingQuestion is an outstanding AskUserQuestion awaiting an answer
// from the caller-facing HTTP surface.
type pendingQuestion struct {
	answer chan string
}

// Broker mediates one turn's AskUserQuestion rendezvous. A fresh Broker
// is created per turn and discarded at turn end, per spec.md §4.3.
type Broker struct {
	sessionID string

	mu      sync.Mutex
	pending map[string]*pendingQuestion // requestID -> waiter
}

// NewBroker constructs a broker scoped to one session's current turn.
func NewBroker(sessionID string) *Broker {
	return &Broker{sessionID: sessionID, pending: make(map[string]*pendingQuestion)}
}

// RequestID derives the rendezvous key for a tool_use_id, per spec.md
// §4.3: "{session_id}-q-{tool_use_id}".
func (b *Broker) RequestID(toolUseID string) string {
	return fmt.Sprintf("%s-q-%s", b.sessionID, toolUseID)
}

// Ask registers a pending question and blocks until Answer is called
// with the same request id, the context is cancelled, or timeout
// elapses, whichever comes first.
func (b *Broker) Ask(ctx context.Context, requestID string, timeout time.Duration) (string, error) {
	waiter := &pendingQuestion{answer: make(chan string, 1)}

	b.mu.Lock()
	b.pending[requestID] = waiter
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case answer := <-waiter.answer:
		return answer, nil
	case <-timer.C:
		return "", fmt.Errorf("timed out waiting for an answer to %s", requestID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer delivers an answer to a pending Ask call. It returns false if
// no question with that request id is outstanding (already answered,
// timed out, or never asked).
func (b *Broker) Answer(requestID, answer string) bool {
	b.mu.Lock()
	waiter, ok := b.pending[requestID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case waiter.answer <- answer:
		return true
	default:
		return false
	}
}

// Registry tracks the one live Broker per session's in-flight turn.
type Registry struct {
	mu      sync.Mutex
	brokers map[string]*Broker
}

// NewRegistry constructs an empty broker registry.
func NewRegistry() *Registry {
	return &Registry{brokers: make(map[string]*Broker)}
}

// Start installs a fresh broker for the given session's turn,
// replacing and discarding any prior one.
func (r *Registry) Start(sessionID string) *Broker {
	b := NewBroker(sessionID)
	r.mu.Lock()
	r.brokers[sessionID] = b
	r.mu.Unlock()
	return b
}

// Get returns the active broker for a session, if any.
func (r *Registry) Get(sessionID string) (*Broker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[sessionID]
	return b, ok
}

// End removes the broker for a session at turn end.
func (r *Registry) End(sessionID string) {
	r.mu.Lock()
	delete(r.brokers, sessionID)
	r.mu.Unlock()
}
