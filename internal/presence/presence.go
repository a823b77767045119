// Package presence tracks which viewers currently have a room focused,
// backed by redis. The websocket layer consults it to decide whether an
// inbound message should be marked read immediately. Presence is an
// optimization, never a correctness dependency: a nil Tracker disables it
// and read state simply waits for the next explicit focus event.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// focusTTL bounds how long a focus record survives without a refresh, so a
// crashed client does not look focused forever.
const focusTTL = 90 * time.Second

// Tracker records room focus per viewer in redis.
type Tracker struct {
	client *redis.Client
}

// Opts holds connection parameters for the presence store.
type Opts struct {
	Addr     string
	Password string
	DB       int
}

// New connects to redis and verifies the connection. An empty Addr returns
// (nil, nil): presence disabled.
func New(ctx context.Context, opts Opts) (*Tracker, error) {
	if opts.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		return nil, fmt.Errorf("presence: connect %s: %w", opts.Addr, err)
	}
	return &Tracker{client: client}, nil
}

func focusKey(roomID string) string {
	return "parley:focus:" + roomID
}

// Focus records that a viewer has the room focused. Refreshing an existing
// focus extends its TTL.
func (t *Tracker) Focus(ctx context.Context, roomID, userID string) error {
	if t == nil {
		return nil
	}
	key := focusKey(roomID)
	pipe := t.client.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, focusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: focus %s/%s: %w", roomID, userID, err)
	}
	return nil
}

// Blur removes a viewer's focus on the room.
func (t *Tracker) Blur(ctx context.Context, roomID, userID string) error {
	if t == nil {
		return nil
	}
	if err := t.client.SRem(ctx, focusKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("presence: blur %s/%s: %w", roomID, userID, err)
	}
	return nil
}

// IsFocused reports whether the viewer currently has the room focused.
// Errors fail closed (not focused) so read state is never marked on a guess.
func (t *Tracker) IsFocused(ctx context.Context, roomID, userID string) bool {
	if t == nil {
		return false
	}
	ok, err := t.client.SIsMember(ctx, focusKey(roomID), userID).Result()
	if err != nil {
		return false
	}
	return ok
}

// FocusedViewers returns the viewers currently focused on the room.
func (t *Tracker) FocusedViewers(ctx context.Context, roomID string) ([]string, error) {
	if t == nil {
		return nil, nil
	}
	members, err := t.client.SMembers(ctx, focusKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: focused viewers %s: %w", roomID, err)
	}
	return members, nil
}

// Close releases the redis connection.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.client.Close()
}
