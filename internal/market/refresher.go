package market

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"mgate/internal/logger"
)

// Refresher runs the daily instrument-master refresh on a cron schedule,
// off the request path. Failures are logged, never propagated.
type Refresher struct {
	cron  *cron.Cron
	store *Store
}

// NewRefresher schedules the store refresh. The schedule is a standard
// five-field cron spec in server local time, e.g. "45 8 * * *".
func NewRefresher(store *Store, schedule string) (*Refresher, error) {
	c := cron.New()
	r := &Refresher{cron: c, store: store}

	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("failed to schedule instrument refresh: %w", err)
	}
	return r, nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	count, err := r.store.Refresh(ctx)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Warn("scheduled instrument refresh failed")
		return
	}

	logger.WithFields(map[string]interface{}{
		"rows":        count,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("instrument master refreshed")
}

// Start begins the schedule.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule; running jobs finish.
func (r *Refresher) Stop() {
	r.cron.Stop()
}
