package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/quorumworks/govpilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	policy        TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	scanned       INTEGER NOT NULL DEFAULT 0,
	evaluated     INTEGER NOT NULL DEFAULT 0,
	votes_cast    INTEGER NOT NULL DEFAULT 0,
	brake_tripped INTEGER NOT NULL DEFAULT 0,
	outcomes      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_policy ON reports(policy);
CREATE INDEX IF NOT EXISTS idx_reports_started_at ON reports(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.RunReport) error {
	outcomesJSON, err := json.Marshal(report.Proposals)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcomes")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   finished_at = excluded.finished_at, scanned = excluded.scanned,
		   evaluated = excluded.evaluated, votes_cast = excluded.votes_cast,
		   brake_tripped = excluded.brake_tripped, outcomes = excluded.outcomes`,
		report.ID, report.Policy, report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.ProposalsScanned, report.ProposalsEvaluated, report.VotesCast,
		boolToInt(report.BrakeTripped), string(outcomesJSON),
	)
	return eris.Wrapf(err, "sqlite: save report %s", report.ID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.RunReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes
		 FROM reports WHERE id = ?`,
		id,
	)
	return scanReport(row)
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.RunReport, error) {
	query := `SELECT id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes
	          FROM reports WHERE 1=1`
	var args []any

	if filter.Policy != "" {
		query += ` AND policy = ?`
		args = append(args, filter.Policy)
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) PruneReports(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE started_at < ?`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune reports")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*model.RunReport, error) {
	var r model.RunReport
	var brake int
	var outcomesJSON string

	err := row.Scan(&r.ID, &r.Policy, &r.StartedAt, &r.FinishedAt,
		&r.ProposalsScanned, &r.ProposalsEvaluated, &r.VotesCast, &brake, &outcomesJSON)
	if err == sql.ErrNoRows {
		return nil, eris.New("report not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	r.BrakeTripped = brake != 0
	if err := json.Unmarshal([]byte(outcomesJSON), &r.Proposals); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal outcomes")
	}
	return &r, nil
}
