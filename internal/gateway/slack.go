package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackNotifier posts alerts to one Slack channel with a bot token.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackNotifier creates a Slack notifier. botToken is the Bot User OAuth Token (xoxb-...).
func NewSlackNotifier(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken, opts...),
		channel: channel,
		logger:  logger,
	}
}

func (n *SlackNotifier) Platform() string { return "slack" }

// Connect verifies the token.
func (n *SlackNotifier) Connect(ctx context.Context) error {
	resp, err := n.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	n.logger.Info("slack notifier authenticated",
		zap.String("team", resp.Team),
		zap.String("bot", resp.User))
	return nil
}

// Notify posts the alert text to the configured channel.
func (n *SlackNotifier) Notify(ctx context.Context, alert *Alert) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(alert.Text(), false),
	)
	if err != nil {
		n.logger.Error("slack send failed",
			zap.String("channel", n.channel), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

func (n *SlackNotifier) Close() error { return nil }
