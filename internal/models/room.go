package models

import "time"

// RoomKind identifies the conversation topology of a room.
type RoomKind string

const (
	// KindBuyerToStore is a buyer-to-merchant inquiry room, scoped to one
	// (org, customer) pair.
	KindBuyerToStore RoomKind = "buyer_to_store"
	// KindStoreToAdmin is a merchant-to-platform support ticket room,
	// scoped to one org with no customer.
	KindStoreToAdmin RoomKind = "store_to_admin"
)

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	return k == KindBuyerToStore || k == KindStoreToAdmin
}

// Room status values. Only support rooms ever reach closed.
const (
	RoomStatusOpen   = "open"
	RoomStatusClosed = "closed"
)

// Room is a persistent conversation channel. The composite unique index on
// (org_id, customer_id, kind) is the storage-layer guarantee that concurrent
// get-or-create calls converge on a single row; CustomerID is the empty
// string (not NULL) for support rooms so the index covers them too.
type Room struct {
	ID         string   `gorm:"primaryKey;size:36"`
	OrgID      string   `gorm:"size:36;not null;uniqueIndex:idx_room_pair"`
	CustomerID string   `gorm:"size:36;not null;default:'';uniqueIndex:idx_room_pair"`
	Kind       RoomKind `gorm:"size:16;not null;uniqueIndex:idx_room_pair"`
	Status     string   `gorm:"size:16;not null;default:open"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"` // activity-ordering key, bumped on each message

	Messages []Message `gorm:"foreignKey:RoomID"`
}
