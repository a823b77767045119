package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

// Store persists messages and serves ordered history.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, fmt.Errorf("chat: store: db is required")
	}
	return &Store{db: gdb}, nil
}

// Send persists a message and bumps the parent room's activity timestamp.
// The bump is best-effort: once the message row is durable the send has
// succeeded, and a failed bump only costs sort-order accuracy, so it is
// logged rather than returned.
func (s *Store) Send(ctx context.Context, roomID, senderID, content string) (*models.Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("chat: send: room id is required")
	}
	if senderID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	msg := models.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, storeErr("send", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("updated_at", time.Now())
	if result.Error != nil {
		log.Printf("chat: send: bump room %s activity: %v (message %d already delivered)",
			roomID, result.Error, msg.ID)
	}

	return &msg, nil
}

// History returns all messages in a room in non-decreasing created_at order,
// with id as the tiebreak for same-instant rows.
func (s *Store) History(ctx context.Context, roomID string) ([]models.Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("chat: history: room id is required")
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").Find(&msgs).Error
	if err != nil {
		return nil, storeErr("history", err)
	}
	return msgs, nil
}
