package chat

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

// openFileTestDB opens a file-backed database so concurrent connections see
// the same data.
func openFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat_test.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=2000", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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

func buyer(id string) *identity.Identity {
	return &identity.Identity{UserID: id, Role: identity.RoleBuyer}
}

func merchant(id, org string) *identity.Identity {
	return &identity.Identity{UserID: id, OrgID: org, Role: identity.RoleMerchant}
}
