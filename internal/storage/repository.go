package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"itn-reports/internal/report"
)

const (
	pgListObservationsBetweenSQL = `SELECT
        address,
        date_time,
        feed_id
    FROM data_points
    WHERE date_time > $1::date
      AND date_time < $2::date
    ORDER BY address;`

	pgDateRangeSQL = `SELECT MIN(date_time), MAX(date_time) FROM data_points;`

	pgActiveParticipantsSQL = `SELECT DISTINCT address FROM data_points ORDER BY address;`

	pgCountByParticipantSQL = `SELECT
        address,
        COUNT(*) AS count
    FROM data_points
    GROUP BY address
    ORDER BY count DESC, address;`

	pgCollectorCountsSQL = `SELECT
        address,
        COUNT(*) AS total_count,
        COUNT(*) FILTER (WHERE date_time >= $1) AS recent_count
    FROM data_points
    GROUP BY address
    ORDER BY total_count DESC, address;`

	pgCountFeedsSinceSQL = `SELECT COUNT(DISTINCT feed_id) FROM data_points WHERE date_time >= $1;`
)

// PostgresStore reads observations from a PostgreSQL data_points table.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore wires a pgx pool into a store.
func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, timeout: timeout}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ListObservationsBetween lists observations strictly inside a date window.
func (s *PostgresStore) ListObservationsBetween(ctx context.Context, start, end string) ([]report.Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, queryErr := pool.Query(ctx, pgListObservationsBetweenSQL, start, end)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]report.Observation, 0)
	for rows.Next() {
		var (
			obs report.Observation
			ts  time.Time
		)
		if err := rows.Scan(&obs.Address, &ts, &obs.FeedID); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.Timestamp = ts.UTC().Format(observationTimeLayout)
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// DateRange returns the earliest and latest observation timestamps.
func (s *PostgresStore) DateRange(ctx context.Context) (DateRange, error) {
	pool, err := s.getPool()
	if err != nil {
		return DateRange{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var earliest, latest sql.NullTime
	if scanErr := pool.QueryRow(ctx, pgDateRangeSQL).Scan(&earliest, &latest); scanErr != nil {
		return DateRange{}, fmt.Errorf("date range: %w", scanErr)
	}

	var dr DateRange
	if earliest.Valid {
		dr.Earliest = earliest.Time.UTC().Format(observationTimeLayout)
	}
	if latest.Valid {
		dr.Latest = latest.Time.UTC().Format(observationTimeLayout)
	}
	return dr, nil
}

// ListActiveParticipants lists every address that has reported.
func (s *PostgresStore) ListActiveParticipants(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, queryErr := pool.Query(ctx, pgActiveParticipantsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active participants: %w", queryErr)
	}
	defer rows.Close()

	addresses := make([]string, 0)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return addresses, nil
}

// CountByParticipant counts rows per address, largest first.
func (s *PostgresStore) CountByParticipant(ctx context.Context) ([]ParticipantCount, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, queryErr := pool.Query(ctx, pgCountByParticipantSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("count by participant: %w", queryErr)
	}
	defer rows.Close()

	counts := make([]ParticipantCount, 0)
	for rows.Next() {
		var pc ParticipantCount
		if err := rows.Scan(&pc.Address, &pc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, pc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// CollectorCounts counts rows per address overall and since a cutoff.
func (s *PostgresStore) CollectorCounts(ctx context.Context, since time.Time) ([]CollectorCount, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, queryErr := pool.Query(ctx, pgCollectorCountsSQL, since.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("collector counts: %w", queryErr)
	}
	defer rows.Close()

	counts := make([]CollectorCount, 0)
	for rows.Next() {
		var cc CollectorCount
		if err := rows.Scan(&cc.Address, &cc.Total, &cc.Recent); err != nil {
			return nil, err
		}
		counts = append(counts, cc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// CountFeedsSince counts distinct feeds reported at or after since.
func (s *PostgresStore) CountFeedsSince(ctx context.Context, since time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int
	if scanErr := pool.QueryRow(ctx, pgCountFeedsSinceSQL, since.UTC()).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count feeds since: %w", scanErr)
	}
	return count, nil
}

var _ ObservationStore = (*PostgresStore)(nil)
