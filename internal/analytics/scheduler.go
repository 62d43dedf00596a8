package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/internal/telemetry"
)

// Recomputer refreshes the statistics tables
type Recomputer interface {
	Recompute(ctx context.Context) error
}

// Scheduler runs the aggregator at a fixed interval. Runs execute to
// completion before the next tick is considered, so recomputes never
// overlap. A failed run is logged and the loop keeps going.
type Scheduler struct {
	recomputer Recomputer
	interval   time.Duration
	metrics    *telemetry.Metrics

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// SchedulerOption is a function that configures the scheduler
type SchedulerOption func(*Scheduler)

// WithMetrics sets the metrics for the scheduler
func WithMetrics(metrics *telemetry.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// NewScheduler creates a scheduler with injected dependencies
func NewScheduler(recomputer Recomputer, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if recomputer == nil {
		return nil, fmt.Errorf("recomputer is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	s := &Scheduler{
		recomputer: recomputer,
		interval:   interval,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the scheduler loop with an immediate first run. Blocks until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	logger.Infof("Starting aggregation scheduler: interval=%s", s.interval)

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	defer func() {
		close(s.done)
		logger.Infof("Aggregation scheduler shut down")
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(schedCtx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(schedCtx)
		case <-schedCtx.Done():
			return nil
		}
	}
}

// Stop gracefully stops the scheduler and waits for the loop to exit
func (s *Scheduler) Stop() error {
	if s.cancelFunc != nil {
		logger.Infof("Stopping aggregation scheduler")
		s.cancelFunc()
		<-s.done
	}
	return nil
}

// runOnce executes a single recompute and records its outcome
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	err := s.recomputer.Recompute(ctx)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.AggregationDurationSeconds.Observe(elapsed.Seconds())
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("Statistics recompute failed: %v", err)
		if s.metrics != nil {
			s.metrics.AggregationRuns.WithLabelValues(telemetry.ResultFailure).Inc()
		}
		return
	}

	logger.Debugf("Statistics recompute complete in %s", elapsed)
	if s.metrics != nil {
		s.metrics.AggregationRuns.WithLabelValues(telemetry.ResultSuccess).Inc()
	}
}
