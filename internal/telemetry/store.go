package telemetry

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Store persists drained recorder snapshots in a local SQLite database so
// counters survive server restarts.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) telemetry.db at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_mode_stats (
		date TEXT NOT NULL,
		mode TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, mode)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}

// Flush merges a drained snapshot into the persistent counters, keyed by
// the given day (YYYY-MM-DD).
func (s *Store) Flush(date string, snap Snapshot) error {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer tx.Rollback()

	for mode, count := range snap.ModeCounts {
		if _, err := tx.Exec(`
			INSERT INTO query_mode_stats (date, mode, count) VALUES (?, ?, ?)
			ON CONFLICT(date, mode) DO UPDATE SET count = count + excluded.count`,
			date, mode, count); err != nil {
			return ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	for bucket, count := range snap.Latency {
		if _, err := tx.Exec(`
			INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
			date, string(bucket), count); err != nil {
			return ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	for _, tc := range snap.TopTerms {
		if _, err := tx.Exec(`
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = CURRENT_TIMESTAMP`,
			tc.Term, tc.Count); err != nil {
			return ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	for _, query := range snap.RecentZeroQueries {
		if _, err := tx.Exec(
			`INSERT INTO zero_result_queries (query) VALUES (?)`, query); err != nil {
			return ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	// Keep the zero-result log bounded.
	if _, err := tx.Exec(`
		DELETE FROM zero_result_queries WHERE id NOT IN (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT 100
		)`); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}

// ModeCounts sums per-mode query counts over a date range (inclusive,
// YYYY-MM-DD).
func (s *Store) ModeCounts(from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT mode, SUM(count) FROM query_mode_stats
		WHERE date >= ? AND date <= ?
		GROUP BY mode`, from, to)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var mode string
		var count int64
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
		counts[mode] = count
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return counts, nil
}

// TopTerms returns the highest-frequency query terms.
func (s *Store) TopTerms(limit int) ([]TermCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT term, count FROM query_terms
		ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer rows.Close()

	var out []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return out, nil
}

// RecentZeroQueries returns the newest zero-result queries, newest first.
func (s *Store) RecentZeroQueries(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT query FROM zero_result_queries
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return out, nil
}
