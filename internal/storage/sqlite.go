package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"itn-reports/internal/config"
	"itn-reports/internal/report"
)

const (
	sqliteListObservationsBetweenSQL = `
		SELECT address, date_time, feed_id
		FROM data_points
		WHERE date_time > date(?)
		  AND date_time < date(?)
		ORDER BY address;`

	sqliteDateRangeSQL = `SELECT MIN(date_time), MAX(date_time) FROM data_points;`

	sqliteActiveParticipantsSQL = `SELECT DISTINCT address FROM data_points ORDER BY address;`

	sqliteCountByParticipantSQL = `
		SELECT address, COUNT(*) AS count
		FROM data_points
		GROUP BY address
		ORDER BY count DESC, address;`

	sqliteCollectorCountsSQL = `
		SELECT address,
			COUNT(*) AS total_count,
			SUM(CASE WHEN datetime(date_time) >= datetime(?) THEN 1 ELSE 0 END) AS recent_count
		FROM data_points
		GROUP BY address
		ORDER BY total_count DESC, address;`

	sqliteCountFeedsSinceSQL = `
		SELECT COUNT(DISTINCT feed_id)
		FROM data_points
		WHERE datetime(date_time) >= datetime(?);`
)

// SQLiteStore reads observations from a validator SQLite database opened read-only.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	timeout time.Duration
}

// OpenSQLite opens the database at cfg.Path in read-only mode.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database.path is required")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite database %s: %w", cfg.Path, err)
	}

	return &SQLiteStore{db: db, path: cfg.Path, timeout: cfg.QueryTimeout}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ListObservationsBetween lists observations strictly inside a date window.
func (s *SQLiteStore) ListObservationsBetween(ctx context.Context, start, end string) ([]report.Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, sqliteListObservationsBetweenSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("list observations between: %w", err)
	}
	defer func() { _ = rows.Close() }()

	observations := make([]report.Observation, 0)
	for rows.Next() {
		var obs report.Observation
		if err := rows.Scan(&obs.Address, &obs.Timestamp, &obs.FeedID); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// DateRange returns the earliest and latest observation timestamps.
func (s *SQLiteStore) DateRange(ctx context.Context) (DateRange, error) {
	db, err := s.getDB()
	if err != nil {
		return DateRange{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var earliest, latest sql.NullString
	if err := db.QueryRowContext(ctx, sqliteDateRangeSQL).Scan(&earliest, &latest); err != nil {
		return DateRange{}, fmt.Errorf("date range: %w", err)
	}
	return DateRange{Earliest: earliest.String, Latest: latest.String}, nil
}

// ListActiveParticipants lists every address that has reported.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, sqliteActiveParticipantsSQL)
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	addresses := make([]string, 0)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// CountByParticipant counts rows per address, largest first.
func (s *SQLiteStore) CountByParticipant(ctx context.Context) ([]ParticipantCount, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, sqliteCountByParticipantSQL)
	if err != nil {
		return nil, fmt.Errorf("count by participant: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make([]ParticipantCount, 0)
	for rows.Next() {
		var pc ParticipantCount
		if err := rows.Scan(&pc.Address, &pc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}

// CollectorCounts counts rows per address overall and since a cutoff.
func (s *SQLiteStore) CollectorCounts(ctx context.Context, since time.Time) ([]CollectorCount, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, sqliteCollectorCountsSQL, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("collector counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make([]CollectorCount, 0)
	for rows.Next() {
		var cc CollectorCount
		if err := rows.Scan(&cc.Address, &cc.Total, &cc.Recent); err != nil {
			return nil, err
		}
		counts = append(counts, cc)
	}
	return counts, rows.Err()
}

// CountFeedsSince counts distinct feeds reported at or after since.
func (s *SQLiteStore) CountFeedsSince(ctx context.Context, since time.Time) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int
	if err := db.QueryRowContext(ctx, sqliteCountFeedsSinceSQL, since.UTC().Format("2006-01-02 15:04:05")).Scan(&count); err != nil {
		return 0, fmt.Errorf("count feeds since: %w", err)
	}
	return count, nil
}

var _ ObservationStore = (*SQLiteStore)(nil)
