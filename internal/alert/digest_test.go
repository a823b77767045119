package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/gorm"
)

func seedRoom(t *testing.T, gdb *gorm.DB, id, orgID string, kind models.RoomKind, status string, updatedAt time.Time) {
	t.Helper()
	room := models.Room{ID: id, OrgID: orgID, Kind: kind, Status: status}
	if err := gdb.Create(&room).Error; err != nil {
		t.Fatalf("seed room %s: %v", id, err)
	}
	// Create stamps updated_at itself, so backdate explicitly.
	if err := gdb.Model(&models.Room{}).Where("id = ?", id).
		Update("updated_at", updatedAt).Error; err != nil {
		t.Fatalf("backdate room %s: %v", id, err)
	}
}

func seedMessage(t *testing.T, gdb *gorm.DB, roomID string, read bool) {
	t.Helper()
	m := models.Message{RoomID: roomID, SenderID: "staff-1", Content: "x", IsRead: read}
	if err := gdb.Create(&m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestBuildDigestQuietWhenClean(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()

	// No tickets at all.
	a, err := BuildDigest(ctx, gdb)
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if a != nil {
		t.Errorf("digest for empty queue: %+v", a)
	}

	// A ticket with only read traffic stays quiet too.
	seedRoom(t, gdb, "ticket-1", "org-1", models.KindStoreToAdmin, models.RoomStatusOpen, time.Now())
	seedMessage(t, gdb, "ticket-1", true)

	a, err = BuildDigest(ctx, gdb)
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if a != nil {
		t.Errorf("digest for clean queue: %+v", a)
	}
}

func TestBuildDigestCountsUnread(t *testing.T) {
	gdb := openTestDB(t)
	now := time.Now()

	seedRoom(t, gdb, "ticket-old", "org-old", models.KindStoreToAdmin, models.RoomStatusOpen, now.Add(-2*time.Hour))
	seedRoom(t, gdb, "ticket-new", "org-new", models.KindStoreToAdmin, models.RoomStatusOpen, now.Add(-time.Hour))
	seedRoom(t, gdb, "ticket-closed", "org-closed", models.KindStoreToAdmin, models.RoomStatusClosed, now)
	seedRoom(t, gdb, "buyer-room", "org-old", models.KindBuyerToStore, models.RoomStatusOpen, now)

	seedMessage(t, gdb, "ticket-old", false)
	seedMessage(t, gdb, "ticket-old", false)
	seedMessage(t, gdb, "ticket-new", false)
	seedMessage(t, gdb, "ticket-closed", false) // resolved, excluded
	seedMessage(t, gdb, "buyer-room", false)    // not a support ticket

	a, err := BuildDigest(context.Background(), gdb)
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if a == nil {
		t.Fatal("no digest for unread tickets")
	}
	if !strings.Contains(a.Title, "2 open support tickets") {
		t.Errorf("title = %q", a.Title)
	}
	if !strings.Contains(a.Title, "3 unread messages") {
		t.Errorf("title = %q", a.Title)
	}

	// Stalest org listed first.
	oldIdx := strings.Index(a.Body, "org-old")
	newIdx := strings.Index(a.Body, "org-new")
	if oldIdx < 0 || newIdx < 0 || oldIdx > newIdx {
		t.Errorf("body = %q, want org-old before org-new", a.Body)
	}
	if strings.Contains(a.Body, "org-closed") {
		t.Errorf("closed ticket in digest body: %q", a.Body)
	}
}
