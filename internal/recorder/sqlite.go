package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quote_fetches (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			code        TEXT NOT NULL,
			market      TEXT NOT NULL,
			source      TEXT,
			attempts    INTEGER,
			row_count   INTEGER,
			outcome     TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quote_ts ON quote_fetches(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_quote_code ON quote_fetches(market, code)`,

		`CREATE TABLE IF NOT EXISTS news_cycles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			run_id      TEXT NOT NULL,
			fetched     INTEGER,
			saved       INTEGER,
			duplicates  INTEGER,
			attempts    INTEGER,
			outcome     TEXT,
			error       TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_ts ON news_cycles(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordQuoteFetch(evt *QuoteFetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO quote_fetches
		(timestamp, code, market, source, attempts, row_count, outcome, duration_ms)
		VALUES (?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Code, evt.Market, evt.Source,
		evt.Attempts, evt.Rows, evt.Outcome, evt.Duration.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordNewsCycle(evt *NewsCycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO news_cycles
		(timestamp, run_id, fetched, saved, duplicates, attempts, outcome, error, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.RunID, evt.Fetched, evt.Saved, evt.Duplicates,
		evt.Attempts, evt.Outcome, evt.Error, evt.Duration.Milliseconds(),
	)
	return err
}

// RecentNewsCycles returns up to limit cycles, newest first.
func (r *SQLiteRecorder) RecentNewsCycles(limit int) ([]NewsCycleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, run_id, fetched, saved, duplicates, attempts, outcome, error, duration_ms
		FROM news_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query news cycles: %w", err)
	}
	defer rows.Close()

	var out []NewsCycleEvent
	for rows.Next() {
		var (
			evt    NewsCycleEvent
			ts, ms int64
		)
		if err := rows.Scan(&ts, &evt.RunID, &evt.Fetched, &evt.Saved, &evt.Duplicates,
			&evt.Attempts, &evt.Outcome, &evt.Error, &ms); err != nil {
			return nil, fmt.Errorf("scan news cycle: %w", err)
		}
		evt.At = time.Unix(ts, 0)
		evt.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
