package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the run ledger: an audit of pipeline runs, per-candidate
// dedup decisions and archival attempts. The dedup state itself lives in the
// JSON files; the ledger is only read by reporting.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes.
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// StartRun inserts a running run and returns its generated ID.
func (s *SQLiteStore) StartRun(ctx context.Context, trigger string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, trigger, status, started_at) VALUES (?, ?, ?, ?)`,
		id,
		trigger,
		string(RunRunning),
		startedAt.UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun stores the final counters and status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run RunRecord) error {
	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET
			status = ?, fetched = ?, published = ?, duplicates = ?, reopened = ?,
			failed = ?, archived = ?, active_size = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status),
		run.Fetched,
		run.Published,
		run.Duplicates,
		run.Reopened,
		run.Failed,
		run.Archived,
		run.ActiveSize,
		run.Error,
		finishedAt.UTC(),
		run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) RecordDecision(ctx context.Context, d DecisionRecord) error {
	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO decisions (run_id, job_id, verdict, rule, archive_month, reason, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, job_id) DO UPDATE SET
			verdict=excluded.verdict,
			rule=excluded.rule,
			archive_month=excluded.archive_month,
			reason=excluded.reason,
			decided_at=excluded.decided_at`,
		d.RunID,
		d.JobID,
		d.Verdict,
		d.Rule,
		d.ArchiveMonth,
		d.Reason,
		decidedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) RecordArchival(ctx context.Context, a ArchivalRecord) error {
	archivedAt := a.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO archivals (run_id, month, count, added, bootstrap, error, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RunID,
		a.Month,
		a.Count,
		a.Added,
		boolToInt(a.Bootstrap),
		a.Error,
		archivedAt.UTC(),
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, trigger, status, fetched, published, duplicates, reopened, failed, archived,
			active_size, error, started_at, finished_at
		 FROM runs
		 ORDER BY started_at DESC, id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]RunRecord, 0)
	for rows.Next() {
		var item RunRecord
		var status string
		var finishedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.Trigger,
			&status,
			&item.Fetched,
			&item.Published,
			&item.Duplicates,
			&item.Reopened,
			&item.Failed,
			&item.Archived,
			&item.ActiveSize,
			&item.Error,
			&item.StartedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}
		item.Status = RunStatus(status)
		if finishedAt.Valid {
			item.FinishedAt = finishedAt.Time
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// ListDecisions returns every recorded decision for jobID, oldest first.
func (s *SQLiteStore) ListDecisions(ctx context.Context, jobID string) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, job_id, verdict, rule, archive_month, reason, decided_at
		 FROM decisions
		 WHERE job_id = ?
		 ORDER BY decided_at ASC, run_id ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]DecisionRecord, 0)
	for rows.Next() {
		var item DecisionRecord
		if err := rows.Scan(
			&item.RunID,
			&item.JobID,
			&item.Verdict,
			&item.Rule,
			&item.ArchiveMonth,
			&item.Reason,
			&item.DecidedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) ListArchivals(ctx context.Context, runID string) ([]ArchivalRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, month, count, added, bootstrap, error, archived_at
		 FROM archivals
		 WHERE run_id = ?
		 ORDER BY archived_at ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]ArchivalRecord, 0)
	for rows.Next() {
		var item ArchivalRecord
		var bootstrap int
		if err := rows.Scan(
			&item.RunID,
			&item.Month,
			&item.Count,
			&item.Added,
			&bootstrap,
			&item.Error,
			&item.ArchivedAt,
		); err != nil {
			return nil, err
		}
		item.Bootstrap = bootstrap == 1
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteRunsBefore prunes runs started before cutoff together with their
// decisions and archivals.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	old := `SELECT id FROM runs WHERE started_at < ?`
	if _, err = tx.ExecContext(ctx, `DELETE FROM decisions WHERE run_id IN (`+old+`)`, cutoff.UTC()); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM archivals WHERE run_id IN (`+old+`)`, cutoff.UTC()); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
