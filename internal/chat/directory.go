// Package chat provides the room directory, message store accessor, and
// read-state tracker for the marketplace messaging layer.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory implements get-or-create semantics for conversation rooms.
// Uniqueness of the (org, customer, kind) pair is enforced by the storage
// layer: lookup-then-insert alone is not race-free, so creation goes through
// the room table's composite unique index with an on-conflict no-op and a
// re-read of the winning row inside one transaction.
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a Directory.
func NewDirectory(gdb *gorm.DB) (*Directory, error) {
	if gdb == nil {
		return nil, fmt.Errorf("chat: directory: db is required")
	}
	return &Directory{db: gdb}, nil
}

// GetOrCreate returns the room for the given org and requester, creating it
// on first contact. For buyer_to_store rooms the requester is the customer;
// for store_to_admin rooms the room is scoped to the org alone. Calling it
// twice with the same parameters returns the same room, including under
// concurrent creation.
func (d *Directory) GetOrCreate(ctx context.Context, orgID string, requester *identity.Identity, kind models.RoomKind) (*models.Room, error) {
	if requester == nil || requester.UserID == "" {
		return nil, ErrUnauthorized
	}
	if orgID == "" {
		return nil, fmt.Errorf("chat: get-or-create: org id is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("chat: get-or-create: unknown room kind %q", kind)
	}

	customerID := ""
	if kind == models.KindBuyerToStore {
		customerID = requester.UserID
	}

	var room models.Room
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("org_id = ? AND customer_id = ? AND kind = ?", orgID, customerID, kind).
			First(&room).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		room = models.Room{
			ID:         uuid.NewString(),
			OrgID:      orgID,
			CustomerID: customerID,
			Kind:       kind,
			Status:     models.RoomStatusOpen,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race: a concurrent creator hit the unique index
			// first. Read the winner's row.
			return tx.Where("org_id = ? AND customer_id = ? AND kind = ?", orgID, customerID, kind).
				First(&room).Error
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("get-or-create room", err)
	}
	return &room, nil
}

// Get returns a room by id.
func (d *Directory) Get(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := d.db.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("get room", err)
	}
	return &room, nil
}

// Resolve closes a support ticket room. Buyer rooms have no closed state and
// are rejected.
func (d *Directory) Resolve(ctx context.Context, roomID string) error {
	room, err := d.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Kind != models.KindStoreToAdmin {
		return ErrNotSupportTicket
	}
	result := d.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("status", models.RoomStatusClosed)
	if result.Error != nil {
		return storeErr("resolve room", result.Error)
	}
	return nil
}

// RoomsForOrg returns all rooms visible to a merchant org, most recently
// active first.
func (d *Directory) RoomsForOrg(ctx context.Context, orgID string) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.WithContext(ctx).Where("org_id = ?", orgID).
		Order("updated_at DESC").Find(&rooms).Error
	if err != nil {
		return nil, storeErr("rooms for org", err)
	}
	return rooms, nil
}

// RoomsForCustomer returns a buyer's inquiry rooms, most recently active
// first.
func (d *Directory) RoomsForCustomer(ctx context.Context, customerID string) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.WithContext(ctx).
		Where("customer_id = ? AND kind = ?", customerID, models.KindBuyerToStore).
		Order("updated_at DESC").Find(&rooms).Error
	if err != nil {
		return nil, storeErr("rooms for customer", err)
	}
	return rooms, nil
}

// SupportRooms returns all store_to_admin rooms, most recently active first.
// This is the platform admin's inbox.
func (d *Directory) SupportRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.WithContext(ctx).Where("kind = ?", models.KindStoreToAdmin).
		Order("updated_at DESC").Find(&rooms).Error
	if err != nil {
		return nil, storeErr("support rooms", err)
	}
	return rooms, nil
}
