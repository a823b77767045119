package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/quaymarket/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingAdapter captures posted alerts for assertions.
type recordingAdapter struct {
	name string
	err  error

	mu    sync.Mutex
	posts []Alert
}

func (a *recordingAdapter) Name() string { return a.name }

func (a *recordingAdapter) Post(ctx context.Context, al Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts = append(a.posts, al)
	return a.err
}

func (a *recordingAdapter) posted() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.posts...)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Room{}, &models.Message{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

func TestNotifierEnabled(t *testing.T) {
	if NewNotifier().Enabled() {
		t.Error("empty notifier reports enabled")
	}
	var nilNotifier *Notifier
	if nilNotifier.Enabled() {
		t.Error("nil notifier reports enabled")
	}
	if !NewNotifier(&recordingAdapter{name: "slack"}).Enabled() {
		t.Error("configured notifier reports disabled")
	}
}

func TestNotifierFansOut(t *testing.T) {
	a := &recordingAdapter{name: "slack"}
	b := &recordingAdapter{name: "discord", err: fmt.Errorf("rate limited")}
	n := NewNotifier(a, b)

	n.Post(context.Background(), Alert{Title: "hi"})

	// The failing adapter does not block the others.
	if len(a.posted()) != 1 || len(b.posted()) != 1 {
		t.Errorf("posts = %d/%d, want 1/1", len(a.posted()), len(b.posted()))
	}
}
