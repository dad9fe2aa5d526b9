// Package usage keeps API key usage counters up to date off the request
// path. The [Accountant] hands events to background workers and never
// blocks or fails the caller; [DailyReset] rolls the daily counters over
// on a cron schedule.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

const (
	DefaultQueueSize = 1024
	DefaultWorkers   = 2
	DefaultTimeout   = 2 * time.Second

	// failureLogInterval bounds how often a failing store is logged.
	failureLogInterval = time.Minute
)

// Store is the part of the credential store the accountant writes to.
type Store interface {
	IncrementAPIKeyUsage(ctx context.Context, id string) error
}

// Config sizes the accountant. Zero fields take the package defaults.
type Config struct {
	QueueSize int           `env:"QUEUE_SIZE" yaml:"queue_size" json:"queue_size,omitempty"`
	Workers   int           `env:"WORKERS" yaml:"workers" json:"workers,omitempty"`
	Timeout   time.Duration `env:"TIMEOUT" yaml:"timeout" json:"timeout,omitempty"`

	// ResetSchedule is the cron expression for [DailyReset].
	ResetSchedule string `env:"RESET_SCHEDULE" envDefault:"0 0 * * *" yaml:"reset_schedule" json:"reset_schedule,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ResetSchedule == "" {
		c.ResetSchedule = DefaultResetSchedule
	}
	return c
}

// Accountant records API key usage asynchronously. Events are queued and
// written by a fixed set of workers; a full queue drops the event. Store
// failures are counted and logged at most once per minute, never returned.
type Accountant struct {
	store  Store
	cfg    Config
	queue  chan string
	done   chan struct{}
	logger *slog.Logger

	// mu orders enqueues before the close of done, so every event that
	// made it into the queue is seen by the draining workers.
	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	wg        sync.WaitGroup

	failLog rate.Sometimes
	dropLog rate.Sometimes
}

// NewAccountant returns an accountant over store. Call Start before
// recording and Stop on shutdown.
func NewAccountant(store Store, cfg Config, logger *slog.Logger) *Accountant {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{
		store:   store,
		cfg:     cfg,
		queue:   make(chan string, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  logger.With("component", "usage.accountant"),
		failLog: rate.Sometimes{First: 1, Interval: failureLogInterval},
		dropLog: rate.Sometimes{First: 1, Interval: failureLogInterval},
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (a *Accountant) Start() {
	a.startOnce.Do(func() {
		for i := 0; i < a.cfg.Workers; i++ {
			a.wg.Add(1)
			go a.worker()
		}
		a.logger.Info("usage accountant started",
			"workers", a.cfg.Workers,
			"queue_size", a.cfg.QueueSize,
		)
	})
}

// RecordUsage enqueues one usage event for apiKeyID and returns
// immediately. Empty ids are ignored.
func (a *Accountant) RecordUsage(apiKeyID string) {
	if apiKeyID == "" {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		a.drop(apiKeyID, "stopped")
		return
	}
	select {
	case a.queue <- apiKeyID:
		observability.UsageQueueDepth.Set(float64(len(a.queue)))
	default:
		a.drop(apiKeyID, "queue full")
	}
}

// Pending returns the number of queued events.
func (a *Accountant) Pending() int { return len(a.queue) }

// Stop signals the workers to drain the queue and exit. It returns
// ctx.Err() if the drain outlives ctx; queued events may then be lost.
func (a *Accountant) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.stopped {
		a.stopped = true
		close(a.done)
	}
	a.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		// Only an accountant that was never started has anything left.
		for n := len(a.queue); n > 0; n-- {
			a.drop(<-a.queue, "stopped")
		}
		a.logger.Info("usage accountant stopped")
		return nil
	case <-ctx.Done():
		a.logger.Warn("usage accountant stop timed out", "pending", len(a.queue))
		return ctx.Err()
	}
}

func (a *Accountant) worker() {
	defer a.wg.Done()
	for {
		select {
		case id := <-a.queue:
			a.write(id)
		case <-a.done:
			for {
				select {
				case id := <-a.queue:
					a.write(id)
				default:
					return
				}
			}
		}
	}
}

// write runs on its own context so that a request's cancellation never
// reaches the store call.
func (a *Accountant) write(id string) {
	observability.UsageQueueDepth.Set(float64(len(a.queue)))

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()

	if err := a.store.IncrementAPIKeyUsage(ctx, id); err != nil {
		observability.UsageEventsTotal.WithLabelValues(observability.UsageFailed).Inc()
		a.failLog.Do(func() {
			a.logger.Warn("usage: failed to record API key usage",
				"api_key_id", id,
				"error", err,
			)
		})
		return
	}
	observability.UsageEventsTotal.WithLabelValues(observability.UsageRecorded).Inc()
}

func (a *Accountant) drop(id, reason string) {
	observability.UsageEventsTotal.WithLabelValues(observability.UsageDropped).Inc()
	a.dropLog.Do(func() {
		a.logger.Warn("usage: dropping usage event",
			"api_key_id", id,
			"reason", reason,
			"queue_size", a.cfg.QueueSize,
		)
	})
}
