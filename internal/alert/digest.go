package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// TicketDigest holds computed metrics for the open support-ticket queue.
type TicketDigest struct {
	GeneratedAt    time.Time
	OpenTickets    int
	UnreadMessages int64
	Orgs           []string // orgs with unread support traffic, stalest first
}

// BuildDigest summarizes open support tickets with unread messages. Returns
// nil when the queue is clean, so scheduled runs stay quiet.
func BuildDigest(ctx context.Context, gdb *gorm.DB) (*Alert, error) {
	var rooms []models.Room
	err := gdb.WithContext(ctx).
		Where("kind = ? AND status = ?", models.KindStoreToAdmin, models.RoomStatusOpen).
		Order("updated_at ASC").Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("alert: digest: open tickets: %w", err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rooms))
	byID := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}

	type roomCount struct {
		RoomID string
		N      int64
	}
	var counts []roomCount
	err = gdb.WithContext(ctx).Model(&models.Message{}).
		Select("room_id AS room_id, COUNT(*) AS n").
		Where("room_id IN ? AND is_read = ?", ids, false).
		Group("room_id").Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("alert: digest: unread counts: %w", err)
	}

	digest := TicketDigest{GeneratedAt: time.Now()}
	for _, r := range rooms {
		for _, c := range counts {
			if c.RoomID == r.ID && c.N > 0 {
				digest.OpenTickets++
				digest.UnreadMessages += c.N
				digest.Orgs = append(digest.Orgs, byID[c.RoomID].OrgID)
				break
			}
		}
	}
	if digest.OpenTickets == 0 {
		return nil, nil
	}

	return &Alert{
		Title: fmt.Sprintf("%d open support tickets with %d unread messages",
			digest.OpenTickets, digest.UnreadMessages),
		Body: "Orgs waiting (stalest first): " + strings.Join(digest.Orgs, ", "),
	}, nil
}
