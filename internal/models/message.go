package models

import "time"

// Message is a single chat message in a room. Immutable after insert except
// for IsRead. UpdatedAt exists so the change feed can detect read-state
// flips without a room-scoped trigger.
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	RoomID    string    `gorm:"size:36;not null;index"`
	SenderID  string    `gorm:"size:36;not null"`
	Content   string    `gorm:"type:text;not null"`
	IsRead    bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`
}
