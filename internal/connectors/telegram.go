package connectors

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramAdapter implements Adapter for Telegram, grounded on
// _examples/haasonsaas-nexus/internal/channels/telegram/adapter.go's
// use of go-telegram/bot with long polling, adapted to route inbound
// updates through a Gateway instead of a raw message channel.
type TelegramAdapter struct {
	cfg     Config
	gateway *Gateway
	limiter *SendLimiter
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	bot    *tgbot.Bot
	cancel context.CancelFunc
}

// NewTelegramAdapter constructs a Telegram connector. The bot client is
// created lazily in Start so construction never touches the network.
func NewTelegramAdapter(cfg Config, gateway *Gateway, logger *slog.Logger) *TelegramAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramAdapter{
		cfg:     cfg,
		gateway: gateway,
		limiter: NewSendLimiter(28, 20), // Telegram's soft limit is ~30 msg/s
		logger:  logger.With("connector", "telegram"),
		state:   StateStopped,
	}
}

func (a *TelegramAdapter) Platform() string { return "telegram" }

func (a *TelegramAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *TelegramAdapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start creates the bot client and begins long-polling for updates.
// Client creation is attempted once: an error from tgbot.New is
// returned to the caller without a retry, and the shared Backoff
// helper is not used here.
func (a *TelegramAdapter) Start(ctx context.Context) error {
	a.setState(StateStarting)
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	b, err := tgbot.New(a.cfg.Token, tgbot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		a.setState(StateStopped)
		cancel()
		return err
	}
	a.mu.Lock()
	a.bot = b
	a.mu.Unlock()

	a.setState(StateRunning)
	go func() {
		b.Start(runCtx)
		a.setState(StateStopped)
	}()
	return nil
}

func (a *TelegramAdapter) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.setState(StateStopped)
	return nil
}

func (a *TelegramAdapter) handleUpdate(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	userID := strconv.FormatInt(msg.From.ID, 10)
	isGroup := msg.Chat.Type != "private"

	reply, err := a.gateway.Handle(ctx, a.cfg, InboundMessage{
		Platform: a.Platform(),
		ChatID:   chatID,
		UserID:   userID,
		Text:     msg.Text,
		IsGroup:  isGroup,
	})
	if err != nil {
		a.logger.Warn("telegram turn failed", "error", err, "chat_id", chatID)
		return
	}
	if reply == "" {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: msg.Chat.ID, Text: reply}); err != nil {
		a.logger.Warn("telegram send failed", "error", err, "chat_id", chatID)
	}
}
