package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/settings"
	"gorm.io/gorm"
)

func newTestWatcher(t *testing.T) (*SettingsWatcher, *gorm.DB, *settings.Store) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "watcher.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	store := settings.NewStore(conn)
	return NewSettingsWatcher(conn, store, time.Hour), conn, store
}

func TestPollDetectsExternalChanges(t *testing.T) {
	w, conn, store := newTestWatcher(t)
	ctx := context.Background()

	if !w.Poll(ctx, false) {
		t.Fatalf("expected first poll to load the seeded settings")
	}
	if w.Poll(ctx, false) {
		t.Fatalf("expected unchanged table to skip reload")
	}

	row := models.Setting{Key: "EXTERNAL", Value: `"yes"`, UpdatedAt: time.Now().UTC().Add(time.Minute)}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("insert: %v", errCreate)
	}
	if !w.Poll(ctx, false) {
		t.Fatalf("expected insert to trigger reload")
	}
	if got := store.String("EXTERNAL", ""); got != "yes" {
		t.Fatalf("expected EXTERNAL=yes, got %q", got)
	}

	if errDelete := conn.Where(&models.Setting{Key: settings.SiteNameKey}).Delete(&models.Setting{}).Error; errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if !w.Poll(ctx, false) {
		t.Fatalf("expected delete to trigger reload")
	}
	if _, ok := store.Raw(settings.SiteNameKey); ok {
		t.Fatalf("expected deleted key to leave the snapshot")
	}
}

func TestStartStop(t *testing.T) {
	w, _, store := newTestWatcher(t)

	w.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for store.Version().Count == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	if store.Version().Count == 0 {
		t.Fatalf("expected start to perform an initial reload")
	}
	w.Stop()
}
