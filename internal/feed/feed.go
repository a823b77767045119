// Package feed implements the message-table change feed: a push-based stream
// of row-mutation events derived from the durable store. The feed is
// table-scoped, never room-scoped — consumers filter by room themselves.
package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// DefaultPollInterval is how often the feed polls the store for changes.
const DefaultPollInterval = 2 * time.Second

// subBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind loses events; the history re-fetch on reconnect is the
// correctness backstop, not the buffer.
const subBuffer = 64

// Op identifies the kind of row mutation an event describes.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Event is the validated envelope emitted for each row mutation, parsed once
// at the subscription boundary so consumers never touch raw feed payloads.
type Event struct {
	Table  string
	Op     Op
	RoomID string
	Record models.Message
}

// SubscriptionError reports a lost feed connection after recovery attempts
// are exhausted. Consumers degrade to a stale indicator rather than failing.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("feed: subscription lost: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Subscription is one consumer's handle on the feed. Close releases it
// deterministically; the Events channel is closed afterwards.
type Subscription struct {
	id   int
	feed *Feed
	once sync.Once

	mu     sync.Mutex
	c      chan Event
	closed bool
}

// Events returns the subscriber's event channel. It is closed when the
// subscription is released or the feed shuts down.
func (s *Subscription) Events() <-chan Event { return s.c }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.feed.unsubscribe(s.id) })
}

// deliver hands one event to the subscriber without blocking. The send is
// guarded by the subscription's own lock so a concurrent Close cannot close
// the channel mid-send.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.c <- ev:
	default:
		log.Printf("feed: subscriber %d behind, dropping %s for room %s", s.id, ev.Op, ev.RoomID)
	}
}

// shut closes the event channel exactly once.
func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}

// Feed polls the message table and fans row-mutation events out to
// subscribers. Inserts are detected with an id watermark, updates (read-state
// flips) with an updated_at watermark. Delivery is at-least-once and order is
// not guaranteed to match creation order; consumers dedup by id and merge by
// created_at.
type Feed struct {
	db           *gorm.DB
	pollInterval time.Duration

	mu         sync.Mutex
	subs       map[int]*Subscription
	nextSubID  int
	lastSeenID uint
	watermark  time.Time
	seeded     bool
	closed     bool
}

// Opts holds parameters for creating a Feed.
type Opts struct {
	DB           *gorm.DB
	PollInterval time.Duration // defaults to DefaultPollInterval
}

// New creates a Feed.
func New(opts Opts) (*Feed, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("feed: db is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Feed{
		db:           opts.DB,
		pollInterval: poll,
		subs:         make(map[int]*Subscription),
	}, nil
}

// Subscribe registers a new consumer. Subscribing after the feed has shut
// down returns a handle whose channel is already closed.
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSubID++
	sub := &Subscription{
		id:   f.nextSubID,
		c:    make(chan Event, subBuffer),
		feed: f,
	}
	if f.closed {
		sub.shut()
		return sub
	}
	f.subs[sub.id] = sub
	return sub
}

func (f *Feed) unsubscribe(id int) {
	f.mu.Lock()
	sub, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	f.mu.Unlock()

	// Close outside f.mu; the channel close itself synchronizes with any
	// in-flight deliver through the subscription's lock.
	if ok {
		sub.shut()
	}
}

// Run starts the poll loop. It blocks until ctx is cancelled, then closes
// every subscriber channel.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	defer f.shutdown()

	// Establish the baseline before the first tick so startup does not
	// replay the whole table.
	if _, err := f.Poll(ctx); err != nil {
		log.Printf("feed: seed poll: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Pump(ctx); err != nil {
				log.Printf("feed: poll: %v", err)
			}
		}
	}
}

// Pump runs one poll cycle and broadcasts the detected events.
func (f *Feed) Pump(ctx context.Context) error {
	events, err := f.Poll(ctx)
	if err != nil {
		return err
	}
	f.broadcast(events)
	return nil
}

// Poll runs one detection cycle against the store and advances the
// watermarks. The first call seeds the watermarks without emitting events.
func (f *Feed) Poll(ctx context.Context) ([]Event, error) {
	f.mu.Lock()
	seeded := f.seeded
	lastID := f.lastSeenID
	watermark := f.watermark
	f.mu.Unlock()

	if !seeded {
		var latest models.Message
		err := f.db.WithContext(ctx).Order("id DESC").Limit(1).First(&latest).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("feed: seed watermark: %w", err)
		}
		f.mu.Lock()
		f.lastSeenID = latest.ID
		f.watermark = time.Now()
		f.seeded = true
		f.mu.Unlock()
		return nil, nil
	}

	var events []Event

	// New rows since the id watermark.
	var inserted []models.Message
	if err := f.db.WithContext(ctx).Where("id > ?", lastID).
		Order("id ASC").Find(&inserted).Error; err != nil {
		return nil, fmt.Errorf("feed: poll inserts: %w", err)
	}

	// Mutated rows at or below the id watermark: read-state flips.
	var updated []models.Message
	if err := f.db.WithContext(ctx).Where("updated_at > ? AND id <= ?", watermark, lastID).
		Order("updated_at ASC").Find(&updated).Error; err != nil {
		return nil, fmt.Errorf("feed: poll updates: %w", err)
	}

	newLastID := lastID
	newWatermark := watermark
	for _, m := range inserted {
		events = append(events, Event{Table: "message", Op: OpInsert, RoomID: m.RoomID, Record: m})
		if m.ID > newLastID {
			newLastID = m.ID
		}
		if m.UpdatedAt.After(newWatermark) {
			newWatermark = m.UpdatedAt
		}
	}
	for _, m := range updated {
		events = append(events, Event{Table: "message", Op: OpUpdate, RoomID: m.RoomID, Record: m})
		if m.UpdatedAt.After(newWatermark) {
			newWatermark = m.UpdatedAt
		}
	}

	f.mu.Lock()
	if newLastID > f.lastSeenID {
		f.lastSeenID = newLastID
	}
	if newWatermark.After(f.watermark) {
		f.watermark = newWatermark
	}
	f.mu.Unlock()

	return events, nil
}

// broadcast fans events out to every subscriber. Slow subscribers drop
// events rather than stalling the feed.
func (f *Feed) broadcast(events []Event) {
	if len(events) == 0 {
		return
	}
	f.mu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		for _, ev := range events {
			sub.deliver(ev)
		}
	}
}

// shutdown closes all subscriber channels.
func (f *Feed) shutdown() {
	f.mu.Lock()
	f.closed = true
	subs := make([]*Subscription, 0, len(f.subs))
	for id, sub := range f.subs {
		delete(f.subs, id)
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
