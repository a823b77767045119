package chat

import (
	"context"
	"fmt"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// ReadTracker marks messages read per viewer on focus events.
type ReadTracker struct {
	db *gorm.DB
}

// NewReadTracker creates a ReadTracker.
func NewReadTracker(gdb *gorm.DB) (*ReadTracker, error) {
	if gdb == nil {
		return nil, fmt.Errorf("chat: read tracker: db is required")
	}
	return &ReadTracker{db: gdb}, nil
}

// MarkRead flips is_read on every unread message in the room not authored by
// the viewer. Idempotent: once nothing matches the filter, repeat calls
// affect zero rows. Returns the number of messages marked.
func (t *ReadTracker) MarkRead(ctx context.Context, roomID, viewerID string) (int64, error) {
	if roomID == "" {
		return 0, fmt.Errorf("chat: mark read: room id is required")
	}
	if viewerID == "" {
		return 0, ErrUnauthorized
	}
	result := t.db.WithContext(ctx).Model(&models.Message{}).
		Where("room_id = ? AND is_read = ? AND sender_id <> ?", roomID, false, viewerID).
		Update("is_read", true)
	if result.Error != nil {
		return 0, storeErr("mark read", result.Error)
	}
	return result.RowsAffected, nil
}
