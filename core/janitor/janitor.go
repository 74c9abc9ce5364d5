package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"garrison-gate/core/store"
	"garrison-gate/core/utils"
)

// Stats counts what the sweeps have removed since startup.
type Stats struct {
	Runs            uint64
	ExpiredPending  uint64
	PrunedEvents    uint64
	LastRun         time.Time
	LastErr         string
}

// Janitor periodically clears expired pending-auth records and prunes
// old rows from the cross-window event log, so the shared store never
// accumulates credentials or history beyond their useful life.
type Janitor struct {
	pending   *store.PendingAuthStore
	events    *store.VerifyEventsStore
	retention time.Duration
	schedule  string
	logger    *utils.Logger

	cron *cron.Cron

	mu    sync.Mutex
	stats Stats
}

func New(pending *store.PendingAuthStore, events *store.VerifyEventsStore, schedule string, retention time.Duration, logger *utils.Logger) *Janitor {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Janitor{
		pending:   pending,
		events:    events,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		j.RunOnce(sweepCtx)
	})
	if err != nil {
		return err
	}
	j.cron = c
	c.Start()
	j.logger.Printf("JANITOR started schedule=%q retention=%s", j.schedule, j.retention)
	return nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// RunOnce executes a single sweep. A failure in one step does not
// block the other.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	var lastErr error

	expired, err := j.pending.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Warnf("JANITOR pending sweep failed: %v", err)
		lastErr = err
	}
	pruned, err := j.events.PruneBefore(ctx, now.Add(-j.retention))
	if err != nil {
		j.logger.Warnf("JANITOR event prune failed: %v", err)
		lastErr = err
	}

	j.mu.Lock()
	j.stats.Runs++
	j.stats.ExpiredPending += uint64(expired)
	j.stats.PrunedEvents += uint64(pruned)
	j.stats.LastRun = now
	if lastErr != nil {
		j.stats.LastErr = lastErr.Error()
	} else {
		j.stats.LastErr = ""
	}
	j.mu.Unlock()

	if expired > 0 || pruned > 0 {
		j.logger.Printf("JANITOR sweep expired_pending=%d pruned_events=%d", expired, pruned)
	}
}

func (j *Janitor) StatsSnapshot() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}
