// Package notify posts publish summaries to Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/airblackbox/runtime-aibom-emitter/internal/publisher"
)

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	BotToken string
	Channel  string
	APIBase  string // default https://slack.com/api
}

// SlackNotifier implements publisher.Notifier.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier, or returns an error when the token or
// channel is missing.
func NewSlackNotifier(cfg SlackConfig) (*SlackNotifier, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("missing slack bot token")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errors.New("missing slack channel")
	}
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	base = strings.TrimRight(base, "/") + "/"
	return &SlackNotifier{
		api:     slack.New(token, slack.OptionAPIURL(base)),
		channel: channel,
	}, nil
}

// NotifyPublished implements publisher.Notifier. Failures are logged only.
func (n *SlackNotifier) NotifyPublished(ctx context.Context, r publisher.Result) {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(Message(r), false))
	if err != nil {
		slog.Warn("Notify: slack post failed", "channel", n.channel, "error", err)
	}
}

// Message renders the notification text for a publish result.
func Message(r publisher.Result) string {
	msg := fmt.Sprintf("Published %d components to AIBOM %s", r.Count, r.TargetID)
	if len(r.Failures) > 0 {
		msg += fmt.Sprintf(" (%d failed)", len(r.Failures))
	}
	return msg
}
