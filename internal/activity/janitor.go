package activity

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweeper removes other expired rows alongside activity cleanup.
type Sweeper struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Janitor periodically removes activities past the retention window.
type Janitor struct {
	service       *Service
	retentionDays int
	interval      time.Duration
	sweepers      []Sweeper
}

// NewJanitor creates a janitor; a non-positive retention disables it.
func NewJanitor(service *Service, retentionDays int, interval time.Duration) *Janitor {
	return &Janitor{service: service, retentionDays: retentionDays, interval: interval}
}

// WithSweepers adds sweepers that run on every tick.
func (j *Janitor) WithSweepers(sweepers ...Sweeper) *Janitor {
	j.sweepers = append(j.sweepers, sweepers...)
	return j
}

// Enabled reports whether Start will run cleanup.
func (j *Janitor) Enabled() bool {
	return j != nil && j.service != nil && j.retentionDays > 0 && j.interval > 0
}

// Start runs cleanup once immediately and then on every interval until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.runOnce(ctx)
			}
		}
	}()
}

func (j *Janitor) runOnce(ctx context.Context) {
	deleted, errCleanup := j.service.Cleanup(ctx, j.retentionDays)
	if errCleanup != nil {
		if ctx.Err() == nil {
			log.WithError(errCleanup).Warn("activity janitor: cleanup failed")
		}
	} else if deleted > 0 {
		log.Infof("activity janitor: removed %d entries older than %d days", deleted, j.retentionDays)
	}

	for _, sweeper := range j.sweepers {
		removed, errSweep := sweeper.Run(ctx)
		if errSweep != nil {
			if ctx.Err() == nil {
				log.WithError(errSweep).Warnf("activity janitor: %s sweep failed", sweeper.Name)
			}
			continue
		}
		if removed > 0 {
			log.Infof("activity janitor: removed %d expired %s", removed, sweeper.Name)
		}
	}
}
