package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quaymarket/parley/internal/models"
)

func TestSendValidation(t *testing.T) {
	store, err := NewStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Send(ctx, "", "cust-1", "hello"); err == nil {
		t.Error("empty room id accepted")
	}
	if _, err := store.Send(ctx, "room-1", "", "hello"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty sender: got %v, want ErrUnauthorized", err)
	}
	if _, err := store.Send(ctx, "room-1", "cust-1", "   \n\t"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("whitespace content: got %v, want ErrEmptyContent", err)
	}
}

func TestSendPersistsMessage(t *testing.T) {
	gdb := openTestDB(t)
	store, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	msg, err := store.Send(context.Background(), "room-1", "cust-1", "is this in stock?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == 0 {
		t.Error("message id not assigned")
	}
	if msg.IsRead {
		t.Error("new message marked read")
	}

	var stored models.Message
	if err := gdb.First(&stored, msg.ID).Error; err != nil {
		t.Fatalf("load stored message: %v", err)
	}
	if stored.Content != "is this in stock?" {
		t.Errorf("content = %q", stored.Content)
	}
}

func TestSendBumpsRoomActivity(t *testing.T) {
	gdb := openTestDB(t)
	dir, err := NewDirectory(gdb)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	store, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	room, err := dir.GetOrCreate(ctx, "org-1", buyer("cust-1"), models.KindBuyerToStore)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	before := room.UpdatedAt

	time.Sleep(20 * time.Millisecond)
	if _, err := store.Send(ctx, room.ID, "cust-1", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	after, err := dir.Get(ctx, room.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !after.UpdatedAt.After(before) {
		t.Errorf("room activity not bumped: before %v, after %v", before, after.UpdatedAt)
	}
}

func TestHistoryOrdering(t *testing.T) {
	gdb := openTestDB(t)
	store, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	rows := []models.Message{
		{RoomID: "room-1", SenderID: "a", Content: "third", CreatedAt: base.Add(2 * time.Minute)},
		{RoomID: "room-1", SenderID: "b", Content: "first", CreatedAt: base},
		{RoomID: "room-2", SenderID: "a", Content: "other room", CreatedAt: base.Add(time.Minute)},
		{RoomID: "room-1", SenderID: "a", Content: "second", CreatedAt: base.Add(time.Minute)},
	}
	for i := range rows {
		if err := gdb.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}

	got, err := store.History(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("history length = %d, want %d", len(got), len(want))
	}
	for i, m := range got {
		if m.Content != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, m.Content, want[i])
		}
	}
}

func TestHistoryTiebreakByID(t *testing.T) {
	gdb := openTestDB(t)
	store, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	at := time.Now().Truncate(time.Second)
	for _, content := range []string{"one", "two", "three"} {
		m := models.Message{RoomID: "room-1", SenderID: "a", Content: content, CreatedAt: at}
		if err := gdb.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := store.History(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID < got[i-1].ID {
			t.Errorf("same-instant rows out of id order at %d: %d after %d", i, got[i].ID, got[i-1].ID)
		}
	}
}
