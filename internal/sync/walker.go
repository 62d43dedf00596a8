// Package sync implements the background walker that ingests study records
// from the upstream registry into the studies database.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AntonAks/TaskFromTal/internal/logger"
	"github.com/AntonAks/TaskFromTal/internal/store"
	"github.com/AntonAks/TaskFromTal/internal/telemetry"
	"github.com/AntonAks/TaskFromTal/internal/upstream"
)

const (
	// fetchMaxTries bounds upstream retries within a single iteration
	fetchMaxTries = 3
)

// PageFetcher fetches one page of upstream studies
type PageFetcher interface {
	FetchPage(ctx context.Context, pageSize int, pageToken string) (*upstream.Page, error)
}

// StudyWriter is the subset of the study store the walker needs
type StudyWriter interface {
	FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	BulkInsert(ctx context.Context, studies []store.Study) (int64, error)
}

// Walker continuously pulls pages from the upstream registry and writes
// previously unseen studies to the studies database.
//
// The continuation token lives only in this struct: it advances exactly
// once per successful iteration and is lost on restart, which makes the
// walker restart from the first page. Deduplication against the store
// keeps that restart idempotent. Upstream exhaustion (an empty next token)
// is not terminal; the walker wraps around and keeps polling so records
// published later are eventually picked up.
type Walker struct {
	fetcher  PageFetcher
	writer   StudyWriter
	metrics  *telemetry.Metrics
	pageSize int
	interval time.Duration

	pageToken string

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the walker
type Option func(*Walker)

// WithMetrics sets the metrics for the walker
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(w *Walker) {
		w.metrics = metrics
	}
}

// NewWalker creates a walker with injected dependencies
func NewWalker(
	fetcher PageFetcher,
	writer StudyWriter,
	pageSize int,
	interval time.Duration,
	opts ...Option,
) (*Walker, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("study writer is required")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	w := &Walker{
		fetcher:  fetcher,
		writer:   writer,
		pageSize: pageSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start runs the walker loop. Blocks until the context is cancelled.
func (w *Walker) Start(ctx context.Context) error {
	logger.Infof("Starting sync walker: pageSize=%d interval=%s", w.pageSize, w.interval)

	walkCtx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	defer func() {
		close(w.done)
		logger.Infof("Sync walker shut down")
	}()

	for {
		w.runIteration(walkCtx)

		select {
		case <-time.After(w.interval):
		case <-walkCtx.Done():
			return nil
		}
	}
}

// Stop gracefully stops the walker and waits for the loop to exit
func (w *Walker) Stop() error {
	if w.cancelFunc != nil {
		logger.Infof("Stopping sync walker")
		w.cancelFunc()
		<-w.done
	}
	return nil
}

// runIteration performs one iteration and records its outcome. Errors are
// logged and swallowed; the walker stays at the same position and retries
// after the regular interval.
func (w *Walker) runIteration(ctx context.Context) {
	start := time.Now()
	err := w.RunOnce(ctx)
	elapsed := time.Since(start)

	if w.metrics != nil {
		w.metrics.SyncDurationSeconds.Observe(elapsed.Seconds())
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("Sync iteration failed: %v", err)
		if w.metrics != nil {
			w.metrics.SyncIterations.WithLabelValues(telemetry.ResultFailure).Inc()
		}
		return
	}
	if w.metrics != nil {
		w.metrics.SyncIterations.WithLabelValues(telemetry.ResultSuccess).Inc()
	}
}

// RunOnce executes a single fetch-dedup-insert iteration. The continuation
// token advances only when the whole iteration succeeds; any failure leaves
// the walker at the same position with nothing committed.
func (w *Walker) RunOnce(ctx context.Context) error {
	page, err := w.fetchPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	if w.metrics != nil {
		w.metrics.SyncRecordsFetched.Add(float64(len(page.Studies)))
	}

	inserted, err := w.ingestPage(ctx, page)
	if err != nil {
		return err
	}

	logger.Infof("Sync iteration complete: fetched=%d inserted=%d nextToken=%q",
		len(page.Studies), inserted, page.NextPageToken)

	// Advance only after a fully successful iteration. An empty next token
	// wraps the walker around to the first page.
	w.pageToken = page.NextPageToken
	return nil
}

// fetchPage requests the current page with bounded exponential backoff
func (w *Walker) fetchPage(ctx context.Context) (*upstream.Page, error) {
	return backoff.Retry(ctx,
		func() (*upstream.Page, error) {
			return w.fetcher.FetchPage(ctx, w.pageSize, w.pageToken)
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(fetchMaxTries),
	)
}

// ingestPage deduplicates the page against the store and bulk-inserts the
// remainder in one transaction.
func (w *Walker) ingestPage(ctx context.Context, page *upstream.Page) (int64, error) {
	if len(page.Studies) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(page.Studies))
	for _, study := range page.Studies {
		ids = append(ids, study.ID)
	}

	existing, err := w.writer.FilterExistingIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing ids: %w", err)
	}

	var newStudies []store.Study
	for _, study := range page.Studies {
		if _, ok := existing[study.ID]; ok {
			continue
		}
		newStudies = append(newStudies, store.Study{
			ID:               study.ID,
			Title:            study.Title,
			OrganizationName: study.OrganizationName,
			OrganizationType: study.OrganizationType,
		})
	}

	inserted, err := w.writer.BulkInsert(ctx, newStudies)
	if err != nil {
		return 0, fmt.Errorf("failed to insert studies: %w", err)
	}

	if w.metrics != nil {
		w.metrics.SyncRecordsInserted.Add(float64(inserted))
	}
	return inserted, nil
}
