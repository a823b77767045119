package slack

import (
	"context"
	"fmt"
	"testing"

	"github.com/quaymarket/parley/internal/alert"
	slackapi "github.com/slack-go/slack"
)

type mockClient struct {
	channel string
	options []slackapi.MsgOption
	calls   int
	err     error
}

func (m *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	m.options = options
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1234.5678", nil
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Opts{Channel: "#support"}); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := New(Opts{BotToken: "xoxb-123"}); err == nil {
		t.Error("missing channel accepted")
	}
	if _, err := New(Opts{BotToken: "xoxb-123", Channel: "#support"}); err != nil {
		t.Errorf("valid opts rejected: %v", err)
	}
}

func TestPostSendsToConfiguredChannel(t *testing.T) {
	mock := &mockClient{}
	a, err := New(Opts{Channel: "#support", Client: mock})
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
	if mock.channel != "#support" {
		t.Errorf("channel = %q, want #support", mock.channel)
	}
	if len(mock.options) == 0 {
		t.Error("no message options sent")
	}
}

func TestPostWrapsAPIError(t *testing.T) {
	mock := &mockClient{err: fmt.Errorf("channel_not_found")}
	a, err := New(Opts{Channel: "#support", Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Post(context.Background(), alert.Alert{Title: "t"}); err == nil {
		t.Error("API error swallowed")
	}
}

func TestName(t *testing.T) {
	a, err := New(Opts{Channel: "#support", Client: &mockClient{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Name() != "slack" {
		t.Errorf("name = %q", a.Name())
	}
}
