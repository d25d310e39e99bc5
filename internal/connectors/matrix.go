package connectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixAdapter implements Adapter for Matrix, grounded on
// _examples/haasonsaas-nexus/internal/channels/matrix/adapter.go's
// mautrix sync-loop-plus-auto-join shape, adapted to route inbound
// room messages through a Gateway instead of a raw message channel.
// cfg.Token doubles as the Matrix access token and cfg.Homeserver/
// cfg.UserID carry the remaining client identity.
type MatrixAdapter struct {
	cfg     Config
	gateway *Gateway
	limiter *SendLimiter
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	client *mautrix.Client
	cancel context.CancelFunc
}

// NewMatrixAdapter constructs a Matrix connector. The client is created
// lazily in Start so construction never touches the network.
func NewMatrixAdapter(cfg Config, gateway *Gateway, logger *slog.Logger) *MatrixAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixAdapter{
		cfg:     cfg,
		gateway: gateway,
		limiter: NewSendLimiter(5, 10),
		logger:  logger.With("connector", "matrix"),
		state:   StateStopped,
	}
}

func (a *MatrixAdapter) Platform() string { return "matrix" }

func (a *MatrixAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *MatrixAdapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start logs into the homeserver and begins syncing in the background.
// A dropped sync connection retries with interruptible backoff rather
// than tearing down the adapter.
func (a *MatrixAdapter) Start(ctx context.Context) error {
	a.setState(StateStarting)

	client, err := mautrix.NewClient(a.cfg.Homeserver, id.UserID(a.cfg.UserID), a.cfg.Token)
	if err != nil {
		a.setState(StateStopped)
		return err
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		a.handleMessage(ctx, evt)
	})
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		a.handleInvite(ctx, client, evt)
	})

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.client = client
	a.cancel = cancel
	a.mu.Unlock()

	go a.syncLoop(runCtx, client)

	a.setState(StateRunning)
	a.logger.Info("matrix adapter started", "homeserver", a.cfg.Homeserver, "user_id", a.cfg.UserID)
	return nil
}

func (a *MatrixAdapter) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	client, cancel := a.client, a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.StopSync()
	}
	a.setState(StateStopped)
	return nil
}

func (a *MatrixAdapter) syncLoop(ctx context.Context, client *mautrix.Client) {
	attempt := 0
	stop := ctx.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := client.SyncWithContext(ctx); err != nil {
			a.logger.Warn("matrix sync error", "error", err)
			if !Backoff(ctx, stop, attempt, time.Second, 30*time.Second) {
				return
			}
			attempt++
			continue
		}
		return
	}
}

func (a *MatrixAdapter) handleMessage(ctx context.Context, evt *event.Event) {
	if string(evt.Sender) == a.cfg.UserID {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || (content.MsgType != event.MsgText && content.MsgType != event.MsgNotice) {
		return
	}

	reply, err := a.gateway.Handle(ctx, a.cfg, InboundMessage{
		Platform: a.Platform(),
		ChatID:   string(evt.RoomID),
		UserID:   string(evt.Sender),
		Text:     content.Body,
		IsGroup:  true,
	})
	if err != nil {
		a.logger.Warn("matrix turn failed", "error", err, "room_id", evt.RoomID)
		return
	}
	if reply == "" {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}

	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return
	}
	out := &event.MessageEventContent{MsgType: event.MsgText, Body: reply}
	if _, err := client.SendMessageEvent(ctx, evt.RoomID, event.EventMessage, out); err != nil {
		a.logger.Warn("matrix send failed", "error", err, "room_id", evt.RoomID)
	}
}

// handleInvite auto-joins any room invite addressed to this bot's own
// user id, matching the teacher's JoinOnInvite behavior unconditionally
// since this module has no separate opt-out flag for it.
func (a *MatrixAdapter) handleInvite(ctx context.Context, client *mautrix.Client, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || content.Membership != event.MembershipInvite || evt.GetStateKey() != a.cfg.UserID {
		return
	}
	if _, err := client.JoinRoom(ctx, string(evt.RoomID), nil); err != nil {
		a.logger.Warn("matrix failed to join invited room", "room_id", evt.RoomID, "error", err)
		return
	}
	a.logger.Info("matrix joined invited room", "room_id", evt.RoomID)
}
