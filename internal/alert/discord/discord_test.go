package discord

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/quaymarket/parley/internal/alert"
)

type mockSession struct {
	channelID string
	embed     *discordgo.MessageEmbed
	calls     int
	err       error
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.calls++
	m.channelID = channelID
	m.embed = embed
	if m.err != nil {
		return nil, m.err
	}
	return &discordgo.Message{ID: "1"}, nil
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "123"}); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := New(Opts{BotToken: "token"}); err == nil {
		t.Error("missing channel id accepted")
	}
	if _, err := New(Opts{BotToken: "token", ChannelID: "123"}); err != nil {
		t.Errorf("valid opts rejected: %v", err)
	}
}

func TestPostSendsEmbed(t *testing.T) {
	mock := &mockSession{}
	a, err := New(Opts{ChannelID: "123", Session: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Post(context.Background(), alert.Alert{
		Title:  "Support ticket activity from org org-1",
		Body:   "we need help",
		RoomID: "ticket-1",
		OrgID:  "org-1",
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
	if mock.channelID != "123" {
		t.Errorf("channel id = %q", mock.channelID)
	}
	if mock.embed == nil || mock.embed.Title != "Support ticket activity from org org-1" {
		t.Errorf("embed = %+v", mock.embed)
	}
	if len(mock.embed.Fields) != 2 {
		t.Errorf("embed fields = %d, want 2", len(mock.embed.Fields))
	}
}

func TestPostWrapsAPIError(t *testing.T) {
	mock := &mockSession{err: fmt.Errorf("missing permissions")}
	a, err := New(Opts{ChannelID: "123", Session: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Post(context.Background(), alert.Alert{Title: "t"}); err == nil {
		t.Error("API error swallowed")
	}
}

func TestName(t *testing.T) {
	a, err := New(Opts{ChannelID: "123", Session: &mockSession{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Name() != "discord" {
		t.Errorf("name = %q", a.Name())
	}
}
