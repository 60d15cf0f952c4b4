package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordNotifier posts alerts to one Discord channel through the REST API.
type DiscordNotifier struct {
	token   string
	channel string
	session *discordgo.Session
	logger  *zap.Logger
}

// NewDiscordNotifier creates a Discord notifier.
func NewDiscordNotifier(token, channel string, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		token:   token,
		channel: channel,
		logger:  logger,
	}
}

func (n *DiscordNotifier) Platform() string { return "discord" }

// Connect creates the session and checks the target channel is reachable.
// No gateway websocket is opened; alerts only need REST calls.
func (n *DiscordNotifier) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + n.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	ch, err := session.Channel(n.channel, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord channel %s: %w", n.channel, err)
	}
	n.session = session
	n.logger.Info("discord notifier ready", zap.String("channel", ch.Name))
	return nil
}

// Notify sends the alert as a bot message.
func (n *DiscordNotifier) Notify(ctx context.Context, alert *Alert) error {
	if n.session == nil {
		return fmt.Errorf("discord notifier not connected")
	}
	content := fmt.Sprintf("**%s**\n%s", alert.Title, alert.Content)
	if _, err := n.session.ChannelMessageSend(n.channel, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close drops the session.
func (n *DiscordNotifier) Close() error {
	if n.session != nil {
		return n.session.Close()
	}
	return nil
}
