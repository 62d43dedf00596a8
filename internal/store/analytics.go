package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalyticsStore provides access to the analytics database holding the
// derived statistics tables. Each upsert runs in its own transaction so a
// failure against one table never affects the other. Stale rows whose key
// disappeared from the source data are left in place.
type AnalyticsStore struct {
	pool *pgxpool.Pool
}

// NewAnalyticsStore creates an analytics store with the given connection
// pool. The caller is responsible for closing the pool when done.
func NewAnalyticsStore(pool *pgxpool.Pool) (*AnalyticsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &AnalyticsStore{pool: pool}, nil
}

// CheckReadiness checks if the store is ready to serve requests
func (s *AnalyticsStore) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping analytics database: %w", err)
	}
	return nil
}

// UpsertOrganizationStats replaces the per-organization counts for every
// key present in stats, in a single transaction.
func (s *AnalyticsStore) UpsertOrganizationStats(ctx context.Context, stats []OrganizationStats) error {
	if len(stats) == 0 {
		return nil
	}

	names := make([]string, 0, len(stats))
	quantities := make([]int64, 0, len(stats))
	for _, stat := range stats {
		names = append(names, stat.OrganizationName)
		quantities = append(quantities, stat.Quantity)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organization_statistics (organization_name, quantity)
			SELECT * FROM unnest($1::text[], $2::bigint[])
			ON CONFLICT (organization_name)
			DO UPDATE SET quantity = EXCLUDED.quantity`,
			names, quantities,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert organization statistics: %w", err)
		}
		return nil
	})
}

// UpsertOrganizationTypeStats replaces the per-type counts for every key
// present in stats, in a single transaction.
func (s *AnalyticsStore) UpsertOrganizationTypeStats(ctx context.Context, stats []OrganizationTypeStats) error {
	if len(stats) == 0 {
		return nil
	}

	types := make([]string, 0, len(stats))
	studyCounts := make([]int64, 0, len(stats))
	orgCounts := make([]int64, 0, len(stats))
	for _, stat := range stats {
		types = append(types, stat.OrganizationType)
		studyCounts = append(studyCounts, stat.QuantityStudies)
		orgCounts = append(orgCounts, stat.QuantityOrganizations)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organization_type_statistics (organization_type, quantity_studies, quantity_organizations)
			SELECT * FROM unnest($1::text[], $2::bigint[], $3::bigint[])
			ON CONFLICT (organization_type)
			DO UPDATE SET
				quantity_studies = EXCLUDED.quantity_studies,
				quantity_organizations = EXCLUDED.quantity_organizations`,
			types, studyCounts, orgCounts,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert organization type statistics: %w", err)
		}
		return nil
	})
}

// ListOrganizationStats returns organization statistics matching the
// filter, most studies first.
func (s *AnalyticsStore) ListOrganizationStats(ctx context.Context, filter StatsFilter) ([]OrganizationStats, error) {
	var query strings.Builder
	query.WriteString(`SELECT organization_name, quantity FROM organization_statistics`)

	var args []any
	if filter.Key != "" {
		args = append(args, "%"+filter.Key+"%")
		query.WriteString(fmt.Sprintf(" WHERE organization_name ILIKE $%d", len(args)))
	}
	args = append(args, normalizeLimit(filter.Limit))
	query.WriteString(fmt.Sprintf(" ORDER BY quantity DESC, organization_name ASC LIMIT $%d", len(args)))
	args = append(args, max(filter.Skip, 0))
	query.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization statistics: %w", err)
	}
	defer rows.Close()

	var stats []OrganizationStats
	for rows.Next() {
		var stat OrganizationStats
		if err := rows.Scan(&stat.OrganizationName, &stat.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan organization statistics: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organization statistics: %w", err)
	}

	return stats, nil
}

// ListOrganizationTypeStats returns organization type statistics matching
// the filter, most studies first.
func (s *AnalyticsStore) ListOrganizationTypeStats(ctx context.Context, filter StatsFilter) ([]OrganizationTypeStats, error) {
	var query strings.Builder
	query.WriteString(`SELECT organization_type, quantity_studies, quantity_organizations FROM organization_type_statistics`)

	var args []any
	if filter.Key != "" {
		args = append(args, "%"+filter.Key+"%")
		query.WriteString(fmt.Sprintf(" WHERE organization_type ILIKE $%d", len(args)))
	}
	args = append(args, normalizeLimit(filter.Limit))
	query.WriteString(fmt.Sprintf(" ORDER BY quantity_studies DESC, organization_type ASC LIMIT $%d", len(args)))
	args = append(args, max(filter.Skip, 0))
	query.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization type statistics: %w", err)
	}
	defer rows.Close()

	var stats []OrganizationTypeStats
	for rows.Next() {
		var stat OrganizationTypeStats
		if err := rows.Scan(&stat.OrganizationType, &stat.QuantityStudies, &stat.QuantityOrganizations); err != nil {
			return nil, fmt.Errorf("failed to scan organization type statistics: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organization type statistics: %w", err)
	}

	return stats, nil
}

// inTx runs fn inside a read-write transaction
func (s *AnalyticsStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "failed to roll back statistics upsert", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
