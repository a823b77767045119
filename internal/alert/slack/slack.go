// Package slack implements the alert Adapter for Slack via the Web API.
package slack

import (
	"context"
	"fmt"

	"github.com/quaymarket/parley/internal/alert"
	slackapi "github.com/slack-go/slack"
)

// apiClient abstracts the Slack API methods we use, enabling test mocks.
type apiClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts alerts to a Slack channel.
type Adapter struct {
	client  apiClient
	channel string
}

// Opts holds parameters for creating a Slack Adapter.
type Opts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client apiClient
}

// New creates a Slack Adapter.
func New(opts Opts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Adapter{client: client, channel: opts.Channel}, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "slack" }

// Post delivers the alert as an attachment-formatted message.
func (a *Adapter) Post(ctx context.Context, al alert.Alert) error {
	attachment := slackapi.Attachment{
		Title: al.Title,
		Text:  al.Body,
		Color: "#e01e5a",
	}
	if al.RoomID != "" {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: "Room", Value: al.RoomID, Short: true,
		})
	}
	if al.OrgID != "" {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: "Org", Value: al.OrgID, Short: true,
		})
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channel, slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
