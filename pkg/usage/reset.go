package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

// DefaultResetSchedule runs the reset at midnight UTC.
const DefaultResetSchedule = "0 0 * * *"

// Resetter zeroes every key's daily usage counter.
type Resetter interface {
	ResetDailyAPIKeyUsage(ctx context.Context) (int64, error)
}

// DailyReset runs [Resetter.ResetDailyAPIKeyUsage] on a cron schedule
// evaluated in UTC.
type DailyReset struct {
	store    Resetter
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewDailyReset validates schedule (standard five-field cron syntax) and
// returns a stopped job. An empty schedule selects [DefaultResetSchedule].
func NewDailyReset(store Resetter, schedule string, timeout time.Duration, logger *slog.Logger) (*DailyReset, error) {
	if schedule == "" {
		schedule = DefaultResetSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, gwerr.Wrapf(err, gwerr.CodeValidation, "usage: invalid reset schedule %q", schedule)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyReset{
		store:    store,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   logger.With("component", "usage.reset"),
	}, nil
}

// Start schedules the job. It stops when ctx is done or Stop is called.
func (d *DailyReset) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	if _, err := d.cron.AddFunc(d.schedule, func() { _, _ = d.RunOnce(ctx) }); err != nil {
		return gwerr.Wrap(err, gwerr.CodeInternalConfiguration, "usage: failed to schedule reset")
	}
	d.cron.Start()
	d.running = true
	d.logger.Info("daily usage reset scheduled", "schedule", d.schedule)

	go func() {
		<-ctx.Done()
		d.Stop()
	}()
	return nil
}

// RunOnce performs one reset and returns the number of keys changed.
func (d *DailyReset) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	n, err := d.store.ResetDailyAPIKeyUsage(ctx)
	if err != nil {
		observability.UsageResetsTotal.WithLabelValues("error").Inc()
		d.logger.Error("daily usage reset failed", "error", err)
		return 0, err
	}
	observability.UsageResetsTotal.WithLabelValues("ok").Inc()
	d.logger.Info("daily usage reset completed", "keys_reset", n)
	return n, nil
}

// Stop halts the schedule and waits for a running reset to finish.
func (d *DailyReset) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	<-d.cron.Stop().Done()
	d.running = false
	d.logger.Info("daily usage reset stopped")
}

// NextRun returns the next scheduled run, or false when not started.
func (d *DailyReset) NextRun() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.cron.Entries()
	if !d.running || len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
