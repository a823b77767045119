// Package alert delivers support-ticket escalations to operator chat
// platforms (Slack, Discord). Delivery is best-effort and post-only: the
// messaging layer's own clients get their events from the change feed, and a
// failed alert never blocks a send.
package alert

import (
	"context"
	"log"
)

// Alert is a single operator notification.
type Alert struct {
	Title  string
	Body   string
	RoomID string
	OrgID  string
}

// Adapter posts alerts to one chat platform.
type Adapter interface {
	// Name identifies the platform, e.g. "slack".
	Name() string
	// Post delivers the alert.
	Post(ctx context.Context, a Alert) error
}

// Notifier fans an alert out to every configured adapter. Per-adapter
// failures are logged, not returned.
type Notifier struct {
	adapters []Adapter
}

// NewNotifier creates a Notifier over zero or more adapters.
func NewNotifier(adapters ...Adapter) *Notifier {
	return &Notifier{adapters: adapters}
}

// Enabled reports whether any adapter is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.adapters) > 0
}

// Post delivers the alert to all adapters.
func (n *Notifier) Post(ctx context.Context, a Alert) {
	if n == nil {
		return
	}
	for _, ad := range n.adapters {
		if err := ad.Post(ctx, a); err != nil {
			log.Printf("alert: %s: post %q: %v", ad.Name(), a.Title, err)
		}
	}
}
