package connectors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordAdapter implements Adapter for Discord, grounded on
// _examples/haasonsaas-nexus/internal/channels/discord/adapter.go's
// bwmarrin/discordgo session + handler wiring, adapted to route
// inbound messages through a Gateway.
type DiscordAdapter struct {
	cfg     Config
	gateway *Gateway
	limiter *SendLimiter
	logger  *slog.Logger
	botID   string

	mu      sync.Mutex
	state   State
	session *discordgo.Session
}

// NewDiscordAdapter constructs a Discord connector.
func NewDiscordAdapter(cfg Config, gateway *Gateway, logger *slog.Logger) *DiscordAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordAdapter{
		cfg:     cfg,
		gateway: gateway,
		limiter: NewSendLimiter(5, 10), // Discord's per-channel limit is tighter than Telegram's
		logger:  logger.With("connector", "discord"),
		state:   StateStopped,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *DiscordAdapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *DiscordAdapter) Start(ctx context.Context) error {
	a.setState(StateStarting)
	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		a.setState(StateStopped)
		return err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(ctx, s, m)
	})
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botID = r.User.ID
		a.mu.Unlock()
	})

	if err := session.Open(); err != nil {
		a.setState(StateStopped)
		return err
	}
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	a.setState(StateRunning)
	return nil
}

func (a *DiscordAdapter) Stop(ctx context.Context) error {
	a.setState(StateStopping)
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
	a.setState(StateStopped)
	return nil
}

func (a *DiscordAdapter) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	a.mu.Lock()
	botID := a.botID
	a.mu.Unlock()
	if m.Author == nil || m.Author.ID == botID {
		return
	}
	isGroup := m.GuildID != ""

	reply, err := a.gateway.Handle(ctx, a.cfg, InboundMessage{
		Platform: a.Platform(),
		ChatID:   m.ChannelID,
		UserID:   m.Author.ID,
		Text:     m.Content,
		IsGroup:  isGroup,
	})
	if err != nil {
		a.logger.Warn("discord turn failed", "error", err, "channel_id", m.ChannelID)
		return
	}
	if reply == "" {
		return
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		a.logger.Warn("discord send failed", "error", err, "channel_id", m.ChannelID)
	}
}
