package connectors

import (
	"context"

	"github.com/haasonsaas/companion/pkg/models"
)

// TurnRunner is the subset of orchestrator.Orchestrator a connector
// needs: run one turn for a bound module/session and stream back
// normalized events. Declared here rather than imported directly so
// connectors never depend on orchestrator internals beyond this
// contract.
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID, module, trust, userMessage string) (<-chan models.Event, error)
}

// InboundMessage is a platform-agnostic chat message handed from an
// adapter to the gateway.
type InboundMessage struct {
	Platform   string
	ChatID     string
	UserID     string
	Text       string
	IsGroup    bool
	MentionHit bool
}

// Gateway binds connector adapters to the orchestrator and to the
// pairing/session-identity rules shared across platforms (spec.md's
// connector shared behavior section).
type Gateway struct {
	runner  TurnRunner
	pairing *PairingStore
	history *GroupHistory
	// sessionByChat maps "platform:chatID" to a bound session id, giving
	// one session per chat the way the teacher keys bot sessions
	// (internal/sessions memory.go's byBot map).
	sessionByChat map[string]string
}

// NewGateway wires a TurnRunner to the shared pairing/history state.
func NewGateway(runner TurnRunner, pairing *PairingStore) *Gateway {
	return &Gateway{
		runner:        runner,
		pairing:       pairing,
		history:       NewGroupHistory(),
		sessionByChat: make(map[string]string),
	}
}

// Handle processes one inbound message end to end: pairing gate,
// mention gating, turn execution, and reply text assembly. It returns
// the text to send back, or ("", nil) if nothing should be sent (e.g.
// gated out, or a pairing prompt was already handled inline).
func (g *Gateway) Handle(ctx context.Context, cfg Config, msg InboundMessage) (string, error) {
	chatKey := msg.Platform + ":" + msg.ChatID

	if !ShouldRespond(cfg.ResponseMode, msg.IsGroup, cfg.MentionPrefix, msg.Text) {
		g.history.Record(chatKey, msg.Text)
		return "", nil
	}

	moduleSlug, paired := g.pairing.IsPaired(msg.Platform, msg.UserID)
	if !paired {
		if !allowListed(cfg.AllowList, msg.UserID) {
			code, err := g.pairing.RequestCode(msg.Platform, msg.UserID)
			if err != nil {
				return "", err
			}
			return "This chat isn't linked to a module yet. Enter this code in the companion app to pair: " + code, nil
		}
		moduleSlug = cfg.DefaultTrust // allow-listed users fall back to the connector's default module/trust
	}

	sessionID := g.sessionByChat[chatKey]
	events, err := g.runner.RunTurn(ctx, sessionID, moduleSlug, cfg.DefaultTrust, msg.Text)
	if err != nil {
		return "", err
	}

	var reply string
	for ev := range events {
		switch ev.Type {
		case models.EventSession:
			if ev.Session != nil {
				g.sessionByChat[chatKey] = ev.Session.SessionID
			}
		case models.EventDone:
			if ev.Done != nil {
				reply = ev.Done.Response
			}
		}
	}
	return reply, nil
}

func allowListed(allowList []string, id string) bool {
	for _, a := range allowList {
		if a == id {
			return true
		}
	}
	return false
}
