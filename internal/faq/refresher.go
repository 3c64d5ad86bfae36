package faq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cursala-gateway/internal/config"
)

// warmTimeout bounds one scheduled cache refresh.
const warmTimeout = 30 * time.Second

// Warmer refreshes cached FAQ data.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Refresher re-warms the FAQ cache on a cron schedule, e.g. "@every 10m"
// or "*/15 * * * *". An empty schedule disables it.
type Refresher struct {
	warmer   Warmer
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	warmups sync.WaitGroup
	running bool
}

// NewRefresher creates a Refresher for cfg.FAQ.RefreshSchedule.
func NewRefresher(w Warmer, cfg *config.Config, logger *slog.Logger) *Refresher {
	return &Refresher{
		warmer:   w,
		schedule: cfg.FAQ.RefreshSchedule,
		logger:   logger.With("component", "faq_refresher"),
	}
}

// Start schedules the refresh job and runs one warm-up in the background.
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" {
		r.logger.Info("faq refresh schedule not configured, skipping")
		return nil
	}
	if r.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("faq: invalid refresh schedule %q: %w", r.schedule, err)
	}
	c.Start()

	r.cron = c
	r.cancel = cancel
	r.running = true

	r.warmups.Add(1)
	go func() {
		defer r.warmups.Done()
		r.run(ctx)
	}()

	r.logger.Info("faq refresher started", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule, cancels any refresh in flight and waits for it
// to return or for ctx to end.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.cancel()

	cronDone := r.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		<-cronDone
		r.warmups.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("faq refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the schedule is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, warmTimeout)
	defer cancel()

	start := time.Now()
	if err := r.warmer.Warm(ctx); err != nil {
		if parent.Err() != nil {
			r.logger.Debug("faq refresh canceled by shutdown")
			return
		}
		r.logger.Error("faq refresh failed", "error", err)
		return
	}
	r.logger.Debug("faq cache refreshed", "duration", time.Since(start))
}
