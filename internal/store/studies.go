package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudyStore provides access to the studies database. It serves both the
// sync walker (dedup check + bulk insert) and the CRUD API, and is the
// source of the aggregate queries.
type StudyStore struct {
	pool *pgxpool.Pool
}

// NewStudyStore creates a study store with the given connection pool.
// The caller is responsible for closing the pool when done.
func NewStudyStore(pool *pgxpool.Pool) (*StudyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &StudyStore{pool: pool}, nil
}

// CheckReadiness checks if the store is ready to serve requests
func (s *StudyStore) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping studies database: %w", err)
	}
	return nil
}

// FilterExistingIDs returns the subset of ids that already exist, in a
// single round trip.
func (s *StudyStore) FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM studies WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existing ids: %w", err)
	}

	return existing, nil
}

// BulkInsert inserts the given studies in one transaction using a temp
// table and COPY. Rows whose id already exists are skipped rather than
// failing the batch, so rows created through the API between the dedup
// check and the insert cannot abort a sync iteration. Returns the number
// of rows actually inserted.
func (s *StudyStore) BulkInsert(ctx context.Context, studies []Study) (int64, error) {
	if len(studies) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "failed to roll back bulk insert", "error", rollbackErr)
		}
	}()

	// Temp table is dropped automatically at commit
	_, err = tx.Exec(ctx, `
		CREATE TEMPORARY TABLE temp_studies (
			id TEXT PRIMARY KEY,
			title TEXT,
			organization_name TEXT,
			organization_type TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		) ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(studies))
	for _, study := range studies {
		rows = append(rows, []any{
			study.ID,
			study.Title,
			study.OrganizationName,
			study.OrganizationType,
			now,
			now,
		})
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"temp_studies"},
		[]string{"id", "title", "organization_name", "organization_type", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy studies to temp table: %w", err)
	}
	if int(copyCount) != len(studies) {
		return 0, fmt.Errorf("copy count mismatch: expected %d, got %d", len(studies), copyCount)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO studies (id, title, organization_name, organization_type, created_at, updated_at)
		SELECT id, title, organization_name, organization_type, created_at, updated_at
		FROM temp_studies
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to insert studies from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Create inserts a single study, typically one submitted through the API
func (s *StudyStore) Create(ctx context.Context, study Study) (*Study, error) {
	now := time.Now().UTC()
	study.CreatedAt = now
	study.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO studies (id, title, organization_name, organization_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		study.ID, study.Title, study.OrganizationName, study.OrganizationType,
		study.CreatedAt, study.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", ErrStudyAlreadyExists, study.ID)
		}
		return nil, fmt.Errorf("failed to insert study: %w", err)
	}

	slog.InfoContext(ctx, "study created", "study_id", study.ID)
	return &study, nil
}

// Get returns a single study by id
func (s *StudyStore) Get(ctx context.Context, id string) (*Study, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, organization_name, organization_type, created_at, updated_at
		FROM studies WHERE id = $1`, id)

	var study Study
	err := row.Scan(
		&study.ID, &study.Title, &study.OrganizationName, &study.OrganizationType,
		&study.CreatedAt, &study.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}

	return &study, nil
}

// List returns studies matching the filter, newest first
func (s *StudyStore) List(ctx context.Context, filter StudyFilter) ([]Study, error) {
	var query strings.Builder
	query.WriteString(`
		SELECT id, title, organization_name, organization_type, created_at, updated_at
		FROM studies`)

	var conditions []string
	var args []any
	if filter.Title != "" {
		args = append(args, "%"+filter.Title+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if filter.OrganizationName != "" {
		args = append(args, "%"+filter.OrganizationName+"%")
		conditions = append(conditions, fmt.Sprintf("organization_name ILIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}

	args = append(args, normalizeLimit(filter.Limit))
	query.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d", len(args)))
	args = append(args, max(filter.Skip, 0))
	query.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer rows.Close()

	var studies []Study
	for rows.Next() {
		var study Study
		if err := rows.Scan(
			&study.ID, &study.Title, &study.OrganizationName, &study.OrganizationType,
			&study.CreatedAt, &study.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, study)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read studies: %w", err)
	}

	return studies, nil
}

// Update applies the non-nil fields of upd and bumps updated_at
func (s *StudyStore) Update(ctx context.Context, id string, upd StudyUpdate) (*Study, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE studies SET
			title = COALESCE($2, title),
			organization_name = COALESCE($3, organization_name),
			organization_type = COALESCE($4, organization_type),
			updated_at = $5
		WHERE id = $1
		RETURNING id, title, organization_name, organization_type, created_at, updated_at`,
		id, upd.Title, upd.OrganizationName, upd.OrganizationType, time.Now().UTC(),
	)

	var study Study
	err := row.Scan(
		&study.ID, &study.Title, &study.OrganizationName, &study.OrganizationType,
		&study.CreatedAt, &study.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
		}
		return nil, fmt.Errorf("failed to update study: %w", err)
	}

	slog.InfoContext(ctx, "study updated", "study_id", id)
	return &study, nil
}

// Delete removes a study by id
func (s *StudyStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM studies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}

	slog.InfoContext(ctx, "study deleted", "study_id", id)
	return nil
}

// OrganizationCounts groups studies by organization name, most studies
// first. Rows without an organization name are excluded.
func (s *StudyStore) OrganizationCounts(ctx context.Context) ([]OrganizationStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT organization_name, COUNT(id)
		FROM studies
		WHERE organization_name IS NOT NULL
		GROUP BY organization_name
		ORDER BY COUNT(id) DESC, organization_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization counts: %w", err)
	}
	defer rows.Close()

	var stats []OrganizationStats
	for rows.Next() {
		var s OrganizationStats
		if err := rows.Scan(&s.OrganizationName, &s.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan organization counts: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organization counts: %w", err)
	}

	return stats, nil
}

// OrganizationTypeCounts groups studies by organization type, counting
// studies and distinct organizations per type. Rows without a type are
// excluded; distinct counts ignore null organization names.
func (s *StudyStore) OrganizationTypeCounts(ctx context.Context) ([]OrganizationTypeStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT organization_type, COUNT(id), COUNT(DISTINCT organization_name)
		FROM studies
		WHERE organization_type IS NOT NULL
		GROUP BY organization_type
		ORDER BY COUNT(id) DESC, organization_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization type counts: %w", err)
	}
	defer rows.Close()

	var stats []OrganizationTypeStats
	for rows.Next() {
		var s OrganizationTypeStats
		if err := rows.Scan(&s.OrganizationType, &s.QuantityStudies, &s.QuantityOrganizations); err != nil {
			return nil, fmt.Errorf("failed to scan organization type counts: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organization type counts: %w", err)
	}

	return stats, nil
}
