// Package discord implements the alert Adapter for Discord via the REST API.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/quaymarket/parley/internal/alert"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter posts alerts to a Discord channel. Post-only REST calls; no
// gateway connection is opened.
type Adapter struct {
	sess      session
	channelID string
}

// Opts holds parameters for creating a Discord Adapter.
type Opts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts Opts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = dg
	}
	return &Adapter{sess: sess, channelID: opts.ChannelID}, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "discord" }

// Post delivers the alert as an embed.
func (a *Adapter) Post(ctx context.Context, al alert.Alert) error {
	embed := &discordgo.MessageEmbed{
		Title:       al.Title,
		Description: al.Body,
		Color:       0xe01e5a,
	}
	if al.RoomID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Room", Value: al.RoomID, Inline: true,
		})
	}
	if al.OrgID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Org", Value: al.OrgID, Inline: true,
		})
	}
	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post embed: %w", err)
	}
	return nil
}
