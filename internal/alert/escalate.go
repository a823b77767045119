package alert

import (
	"context"
	"fmt"
	"log"

	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// Escalator watches the change feed for new messages in support ticket rooms
// and posts an operator alert for each one. It is a best-effort background
// task: feed loss or store errors degrade to logging.
type Escalator struct {
	db       *gorm.DB
	feed     *feed.Feed
	notifier *Notifier

	// SkipSender suppresses alerts for messages from the given sender,
	// typically the platform admins replying to their own queue. Optional.
	skipSender func(senderID string) bool
}

// EscalatorOpts holds parameters for creating an Escalator.
type EscalatorOpts struct {
	DB         *gorm.DB
	Feed       *feed.Feed
	Notifier   *Notifier
	SkipSender func(senderID string) bool
}

// NewEscalator creates an Escalator.
func NewEscalator(opts EscalatorOpts) (*Escalator, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("alert: escalator: db is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("alert: escalator: feed is required")
	}
	if opts.Notifier == nil || !opts.Notifier.Enabled() {
		return nil, fmt.Errorf("alert: escalator: at least one adapter is required")
	}
	return &Escalator{
		db:         opts.DB,
		feed:       opts.Feed,
		notifier:   opts.Notifier,
		skipSender: opts.SkipSender,
	}, nil
}

// Run consumes the feed until ctx is cancelled.
func (e *Escalator) Run(ctx context.Context) {
	sub := e.feed.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Op != feed.OpInsert {
				continue
			}
			if e.skipSender != nil && e.skipSender(ev.Record.SenderID) {
				continue
			}
			if a := e.buildAlert(ctx, ev); a != nil {
				e.notifier.Post(ctx, *a)
			}
		}
	}
}

// buildAlert returns an Alert for inserts into support ticket rooms, nil for
// everything else.
func (e *Escalator) buildAlert(ctx context.Context, ev feed.Event) *Alert {
	var room models.Room
	if err := e.db.WithContext(ctx).First(&room, "id = ?", ev.RoomID).Error; err != nil {
		log.Printf("alert: escalator: look up room %s: %v", ev.RoomID, err)
		return nil
	}
	if room.Kind != models.KindStoreToAdmin {
		return nil
	}
	return &Alert{
		Title:  fmt.Sprintf("Support ticket activity from org %s", room.OrgID),
		Body:   ev.Record.Content,
		RoomID: room.ID,
		OrgID:  room.OrgID,
	}
}
