// Package notify derives unread-message counts per viewer and keeps a
// long-running badge counter live off the change feed, independent of any
// open room.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// DefaultReconcileInterval is how often a badge recomputes even without feed
// events, as a safety net against drops.
const DefaultReconcileInterval = time.Minute

// scopeRoomIDs resolves the set of rooms visible to a viewer. Merchants see
// their org's rooms, platform admins see all support tickets, buyers see
// their own inquiry rooms.
func scopeRoomIDs(ctx context.Context, gdb *gorm.DB, viewer identity.Identity) ([]string, error) {
	q := gdb.WithContext(ctx).Model(&models.Room{})
	switch viewer.Role {
	case identity.RoleMerchant:
		if viewer.OrgID == "" {
			return nil, fmt.Errorf("notify: merchant scope requires an org id")
		}
		q = q.Where("org_id = ?", viewer.OrgID)
	case identity.RoleAdmin:
		q = q.Where("kind = ?", models.KindStoreToAdmin)
	case identity.RoleBuyer:
		q = q.Where("customer_id = ? AND kind = ?", viewer.UserID, models.KindBuyerToStore)
	default:
		return nil, fmt.Errorf("notify: unknown role %q", viewer.Role)
	}

	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("notify: scope rooms: %w", err)
	}
	return ids, nil
}

// UnreadCount returns the number of unread messages across the viewer's
// visible rooms, excluding messages the viewer authored. An empty scope
// short-circuits to zero without touching the message table.
func UnreadCount(ctx context.Context, gdb *gorm.DB, viewer identity.Identity) (int64, error) {
	ids, err := scopeRoomIDs(ctx, gdb, viewer)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var count int64
	err = gdb.WithContext(ctx).Model(&models.Message{}).
		Where("room_id IN ? AND is_read = ? AND sender_id <> ?", ids, false, viewer.UserID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notify: unread count: %w", err)
	}
	return count, nil
}

// Badge is the per-session unread counter task. It subscribes to the
// unfiltered change feed and recomputes the full count on every event —
// deliberately not an incremental delta, so a missed event costs freshness
// until the next event or reconcile tick, never correctness.
type Badge struct {
	db        *gorm.DB
	feed      *feed.Feed
	viewer    identity.Identity
	onCount   func(int64)
	reconcile time.Duration

	sub *feed.Subscription
}

// BadgeOpts holds parameters for creating a Badge.
type BadgeOpts struct {
	DB                *gorm.DB
	Feed              *feed.Feed
	Viewer            identity.Identity
	OnCount           func(int64)   // invoked from the badge goroutine
	ReconcileInterval time.Duration // defaults to DefaultReconcileInterval
}

// NewBadge creates a Badge.
func NewBadge(opts BadgeOpts) (*Badge, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: badge: db is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("notify: badge: feed is required")
	}
	if opts.OnCount == nil {
		return nil, fmt.Errorf("notify: badge: OnCount is required")
	}
	if opts.Viewer.UserID == "" {
		return nil, fmt.Errorf("notify: badge: viewer is required")
	}
	reconcile := opts.ReconcileInterval
	if reconcile <= 0 {
		reconcile = DefaultReconcileInterval
	}
	return &Badge{
		db:        opts.DB,
		feed:      opts.Feed,
		viewer:    opts.Viewer,
		onCount:   opts.OnCount,
		reconcile: reconcile,
	}, nil
}

// Run subscribes and recomputes until ctx is cancelled (the session's
// lifetime — logout tears the subscription down). Count failures fail open
// to zero rather than blocking navigation.
func (b *Badge) Run(ctx context.Context) {
	b.sub = b.feed.Subscribe()
	defer b.sub.Close()

	ticker := time.NewTicker(b.reconcile)
	defer ticker.Stop()

	b.emit(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.emit(ctx)
		case _, ok := <-b.sub.Events():
			if !ok {
				return
			}
			b.emit(ctx)
		}
	}
}

// emit recomputes the full unread count and delivers it.
func (b *Badge) emit(ctx context.Context) {
	count, err := UnreadCount(ctx, b.db, b.viewer)
	if err != nil {
		log.Printf("notify: badge for %s: %v (failing open to 0)", b.viewer.UserID, err)
		count = 0
	}
	b.onCount(count)
}
