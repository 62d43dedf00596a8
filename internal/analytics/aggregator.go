// Package analytics recomputes the derived statistics tables from the
// studies database and writes them to the analytics database.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonAks/TaskFromTal/internal/store"
)

// StatsSource produces the aggregate views over the studies database
type StatsSource interface {
	OrganizationCounts(ctx context.Context) ([]store.OrganizationStats, error)
	OrganizationTypeCounts(ctx context.Context) ([]store.OrganizationTypeStats, error)
}

// StatsSink persists the aggregate views in the analytics database
type StatsSink interface {
	UpsertOrganizationStats(ctx context.Context, stats []store.OrganizationStats) error
	UpsertOrganizationTypeStats(ctx context.Context, stats []store.OrganizationTypeStats) error
}

// Aggregator recomputes both statistics tables from scratch on every run.
// The two tables are handled independently: a failure against one never
// blocks or corrupts the other. Keys absent from the source data keep their
// last written row; stale statistics are not pruned.
type Aggregator struct {
	source StatsSource
	sink   StatsSink
}

// NewAggregator creates an aggregator with injected dependencies
func NewAggregator(source StatsSource, sink StatsSink) (*Aggregator, error) {
	if source == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("stats sink is required")
	}
	return &Aggregator{source: source, sink: sink}, nil
}

// Recompute refreshes both statistics tables. Each table gets its own
// read-compute-upsert cycle; errors are collected rather than short-circuiting
// so one failing table never starves the other.
func (a *Aggregator) Recompute(ctx context.Context) error {
	return errors.Join(
		a.recomputeOrganizations(ctx),
		a.recomputeOrganizationTypes(ctx),
	)
}

func (a *Aggregator) recomputeOrganizations(ctx context.Context) error {
	stats, err := a.source.OrganizationCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute organization statistics: %w", err)
	}
	if err := a.sink.UpsertOrganizationStats(ctx, stats); err != nil {
		return fmt.Errorf("failed to store organization statistics: %w", err)
	}
	return nil
}

func (a *Aggregator) recomputeOrganizationTypes(ctx context.Context) error {
	stats, err := a.source.OrganizationTypeCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute organization type statistics: %w", err)
	}
	if err := a.sink.UpsertOrganizationTypeStats(ctx, stats); err != nil {
		return fmt.Errorf("failed to store organization type statistics: %w", err)
	}
	return nil
}
