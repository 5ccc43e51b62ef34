// Package slack posts notifications to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

// ErrMisconfigured is returned when the token or channel is missing.
var ErrMisconfigured = errors.New("slack token and channel are required")

// Config holds the bot token and target channel.
type Config struct {
	Token   string
	Channel string
	// APIURL overrides the Slack API base URL. Optional.
	APIURL string
}

// Notifier implements notifier.Notifier with chat.postMessage.
type Notifier struct {
	client  *slack.Client
	channel string
}

// New validates cfg and builds a client.
func New(cfg Config) (*Notifier, error) {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil, ErrMisconfigured
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Notifier{client: slack.New(cfg.Token, opts...), channel: cfg.Channel}, nil
}

// Post sends text as mrkdwn.
func (n *Notifier) Post(ctx context.Context, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("post slack message to %s: %w", n.channel, err)
	}
	return nil
}
