// Package watcher polls the database for runtime settings changes.
package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/adminpanel/internal/models"
	"github.com/router-for-me/adminpanel/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultQueryTimeout = 3 * time.Second
)

// SettingsWatcher reloads a settings.Store whenever the settings table changes.
type SettingsWatcher struct {
	db           *gorm.DB
	store        *settings.Store
	pollInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSettingsWatcher constructs a watcher; interval <= 0 uses the default.
func NewSettingsWatcher(db *gorm.DB, store *settings.Store, interval time.Duration) *SettingsWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &SettingsWatcher{db: db, store: store, pollInterval: interval}
}

// Start launches the polling goroutine. It performs one forced reload first.
func (w *SettingsWatcher) Start(ctx context.Context) {
	if w == nil || w.db == nil || w.store == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("settings watcher started (poll_interval=%s)", w.pollInterval)
}

// Stop cancels polling and waits for the goroutine to exit.
func (w *SettingsWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *SettingsWatcher) run(ctx context.Context) {
	w.Poll(ctx, true)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx, false)
		}
	}
}

// latestRow captures the newest setting for change detection.
type latestRow struct {
	Key       string     `gorm:"column:key"`
	UpdatedAt *time.Time `gorm:"column:updated_at"`
}

// Poll reloads the store when the newest row or the row count differs from
// the loaded snapshot. It reports whether a reload happened.
func (w *SettingsWatcher) Poll(ctx context.Context, force bool) bool {
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var latest latestRow
	hasLatest := true
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "updated_at"}, Desc: true},
			{Column: clause.Column{Name: "key"}, Desc: true},
		}}).
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return false
		}
		if !errors.Is(errLatest, gorm.ErrRecordNotFound) {
			log.WithError(errLatest).Warn("settings watcher: query latest row failed")
			return false
		}
		hasLatest = false
	}

	var count int64
	if errCount := w.db.WithContext(qctx).Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		if !errors.Is(errCount, context.Canceled) {
			log.WithError(errCount).Warn("settings watcher: count rows failed")
		}
		return false
	}

	if !force {
		current := w.store.Version()
		latestAt := time.Time{}
		if hasLatest && latest.UpdatedAt != nil {
			latestAt = latest.UpdatedAt.UTC()
		}
		if int(count) == current.Count && latestAt.Equal(current.UpdatedAt) && strings.TrimSpace(latest.Key) == current.Key {
			return false
		}
		log.Infof("settings watcher: settings changed, reloading (latest_updated_at=%s latest_key=%s)", latestAt.Format(time.RFC3339Nano), latest.Key)
	}

	if errReload := w.store.Reload(qctx); errReload != nil {
		if !errors.Is(errReload, context.Canceled) {
			log.WithError(errReload).Warn("settings watcher: reload failed")
		}
		return false
	}
	return true
}
