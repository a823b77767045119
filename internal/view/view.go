// Package view maintains live, ordered message state for one open room.
// Each open room view is an independent task owning private state; views
// never share mutable containers with each other or with the notification
// aggregator.
package view

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/models"
)

// Reconnect backoff bounds for a lost feed subscription.
const (
	reconnectBase     = 500 * time.Millisecond
	reconnectMax      = 30 * time.Second
	reconnectAttempts = 5
)

// HistoryStore is the slice of the message store a view needs to seed and
// repair its state.
type HistoryStore interface {
	History(ctx context.Context, roomID string) ([]models.Message, error)
}

// Callbacks are invoked from the view's task goroutine as live state changes.
type Callbacks struct {
	// OnMessageAdded fires when a message enters the view's ordered state.
	OnMessageAdded func(models.Message)
	// OnMessageUpdated fires when an already-present message is replaced,
	// e.g. a read-state flip.
	OnMessageUpdated func(models.Message)
	// OnStale fires when feed recovery is exhausted and the view can no
	// longer promise freshness. The UI degrades to a refresh indicator.
	OnStale func(error)
}

// View is the realtime synchronizer for one open room. State stays sorted by
// created_at ascending (id as tiebreak); feed delivery order is not trusted,
// so inserts merge by sort position and duplicates are dropped by id.
type View struct {
	store HistoryStore
	feed  *feed.Feed
	cb    Callbacks

	mu       sync.Mutex
	roomID   string
	messages []models.Message
	seen     map[uint]int // message id -> index in messages
	sub      *feed.Subscription
	closed   bool
}

// Opts holds parameters for creating a View.
type Opts struct {
	Store     HistoryStore
	Feed      *feed.Feed
	Callbacks Callbacks
}

// New creates a View. Call Open to attach it to a room and Run to process
// live events.
func New(opts Opts) (*View, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("view: store is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("view: feed is required")
	}
	return &View{
		store: opts.Store,
		feed:  opts.Feed,
		cb:    opts.Callbacks,
		seen:  make(map[uint]int),
	}, nil
}

// Open attaches the view to a room: it subscribes to the change feed first,
// then seeds state from history. Subscribing first means events delivered
// during the fetch overlap rather than fall in a gap; the overlap is
// resolved by dedup-by-id during the merge.
func (v *View) Open(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("view: open: room id is required")
	}

	v.mu.Lock()
	if v.sub == nil {
		v.sub = v.feed.Subscribe()
	}
	v.roomID = roomID
	v.messages = nil
	v.seen = make(map[uint]int)
	v.mu.Unlock()

	return v.seed(ctx, roomID)
}

// Switch repoints the view at a different room without tearing down the
// subscription. Events are always resolved against the currently open room,
// so nothing is silently dropped across the switch.
func (v *View) Switch(ctx context.Context, roomID string) error {
	return v.Open(ctx, roomID)
}

// Run processes live events until ctx is cancelled. A closed event channel
// is treated as a feed disconnect: the view resubscribes and re-seeds from a
// fresh history fetch, which is the sole correctness backstop against missed
// events.
func (v *View) Run(ctx context.Context) {
	for {
		v.mu.Lock()
		sub := v.sub
		v.mu.Unlock()
		if sub == nil {
			return
		}

		select {
		case <-ctx.Done():
			v.Close()
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if !v.reconnect(ctx) {
					return
				}
				continue
			}
			v.Apply(ev)
		}
	}
}

// Apply folds one feed event into local state. Events for other tables or
// rooms are discarded; the room comparison uses the room that is open now,
// not the one open at subscribe time. A sender's own message can arrive both
// as the acknowledged write and via the feed; dedup-by-id collapses the two.
func (v *View) Apply(ev feed.Event) {
	if ev.Table != "message" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if ev.RoomID != v.roomID {
		return
	}

	switch ev.Op {
	case feed.OpInsert:
		if _, dup := v.seen[ev.Record.ID]; dup {
			return
		}
		v.insertLocked(ev.Record)
		if v.cb.OnMessageAdded != nil {
			v.cb.OnMessageAdded(ev.Record)
		}
	case feed.OpUpdate:
		idx, ok := v.seen[ev.Record.ID]
		if !ok {
			return
		}
		v.messages[idx] = ev.Record
		if v.cb.OnMessageUpdated != nil {
			v.cb.OnMessageUpdated(ev.Record)
		}
	}
}

// insertLocked merges a message into the sorted slice by (created_at, id).
// Blind append would trust feed delivery order, which is not guaranteed.
func (v *View) insertLocked(m models.Message) {
	pos := sort.Search(len(v.messages), func(i int) bool {
		mi := v.messages[i]
		if !mi.CreatedAt.Equal(m.CreatedAt) {
			return mi.CreatedAt.After(m.CreatedAt)
		}
		return mi.ID > m.ID
	})
	v.messages = append(v.messages, models.Message{})
	copy(v.messages[pos+1:], v.messages[pos:])
	v.messages[pos] = m

	v.seen[m.ID] = pos
	for i := pos + 1; i < len(v.messages); i++ {
		v.seen[v.messages[i].ID] = i
	}
}

// seed merges a fresh history fetch into state. Rows that already arrived
// via the feed are skipped by id, so overlap yields exactly one entry.
func (v *View) seed(ctx context.Context, roomID string) error {
	history, err := v.store.History(ctx, roomID)
	if err != nil {
		return fmt.Errorf("view: seed room %s: %w", roomID, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.roomID != roomID {
		// Room switched while the fetch was in flight; discard.
		return nil
	}
	for _, m := range history {
		if _, dup := v.seen[m.ID]; dup {
			continue
		}
		v.insertLocked(m)
	}
	return nil
}

// reconnect replaces a lost subscription and repairs state with a fresh
// history fetch. Returns false when the view is closed, recovery is
// exhausted, or ctx is done.
func (v *View) reconnect(ctx context.Context) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	roomID := v.roomID
	v.mu.Unlock()

	backoff := reconnectBase
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		sub := v.feed.Subscribe()
		if err := v.seed(ctx, roomID); err != nil {
			sub.Close()
			log.Printf("view: reconnect room %s (attempt %d/%d): %v", roomID, attempt, reconnectAttempts, err)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		v.mu.Lock()
		v.sub = sub
		v.mu.Unlock()
		return true
	}

	if v.cb.OnStale != nil {
		v.cb.OnStale(&feed.SubscriptionError{Err: fmt.Errorf("reconnect attempts exhausted")})
	}
	return false
}

// Close releases the feed subscription synchronously. Reopening a room
// allocates a fresh subscription, never a stale handle.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.sub != nil {
		v.sub.Close()
		v.sub = nil
	}
}

// Snapshot returns a copy of the current ordered state.
func (v *View) Snapshot() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := make([]models.Message, len(v.messages))
	copy(cp, v.messages)
	return cp
}

// RoomID returns the currently open room.
func (v *View) RoomID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomID
}
