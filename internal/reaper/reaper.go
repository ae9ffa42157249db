// Package reaper runs the periodic sweep that removes expired files.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 15 * time.Second

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmpshare_sweep_runs_total",
		Help: "Number of expiry sweeps, by result",
	}, []string{"result"})

	sweepRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_sweep_removed_total",
		Help: "Files removed by expiry sweeps",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tmpshare_sweep_duration_seconds",
		Help:    "Duration of one expiry sweep",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
)

// Sweeper removes everything that has expired at now.
type Sweeper interface {
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}

// Result describes one sweep.
type Result struct {
	Removed  int
	Err      error
	Duration time.Duration
}

// Reaper calls a Sweeper on a fixed interval until stopped.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time

	// runMu keeps RunOnce calls from overlapping.
	runMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option customises a Reaper.
type Option func(*Reaper)

// WithClock overrides the time source handed to the sweeper.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// New creates a stopped Reaper.
func New(sweeper Sweeper, interval time.Duration, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reaper{sweeper: sweeper, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the sweep interval.
func (r *Reaper) Interval() time.Duration { return r.interval }

// Start launches the background loop: one sweep immediately, then one per
// interval. Calling Start on a running Reaper does nothing.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.wg.Add(1)
	go r.run(loopCtx)

	logger.Infow("reaper_started", "service", "reaper", "interval", r.interval.String())
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.started = false
	r.mu.Unlock()

	r.wg.Wait()
	logger.Infow("reaper_stopped", "service", "reaper")
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures are logged and returned in
// the Result; they never stop the loop.
func (r *Reaper) RunOnce(ctx context.Context) Result {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	removed, err := r.sweeper.CleanupExpired(ctx, r.now())
	res := Result{Removed: removed, Err: err, Duration: time.Since(start)}

	sweepRemovedTotal.Add(float64(removed))
	sweepDurationSeconds.Observe(res.Duration.Seconds())

	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		logger.Errorw("sweep_failed", "service", "reaper", "removed", removed, "error", err.Error())
		return res
	}
	sweepRunsTotal.WithLabelValues("ok").Inc()
	if removed > 0 {
		logger.Infow("sweep_completed", "service", "reaper", "removed", removed, "duration", res.Duration.String())
	}
	return res
}
