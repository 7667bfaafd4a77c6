package testing

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/store"
)

// TestContext returns a context with a reasonable timeout and a discarding logger.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return log.IntoContext(ctx, logr.Discard())
}

// NewDB opens a migrated sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "leasehold.db")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.New(db).AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore returns a store backed by NewDB.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(NewDB(t))
}
