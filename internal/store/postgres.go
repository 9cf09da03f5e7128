package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_report": `INSERT INTO reports (id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	 ON CONFLICT (id) DO UPDATE SET
	   finished_at = $4, scanned = $5, evaluated = $6, votes_cast = $7, brake_tripped = $8, outcomes = $9`,
	"get_report": `SELECT id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes FROM reports WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id            TEXT PRIMARY KEY,
	policy        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	scanned       INTEGER NOT NULL DEFAULT 0,
	evaluated     INTEGER NOT NULL DEFAULT 0,
	votes_cast    INTEGER NOT NULL DEFAULT 0,
	brake_tripped BOOLEAN NOT NULL DEFAULT false,
	outcomes      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_policy ON reports(policy);
CREATE INDEX IF NOT EXISTS idx_reports_started_at ON reports(started_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.RunReport) error {
	outcomesJSON, err := json.Marshal(report.Proposals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outcomes")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   finished_at = $4, scanned = $5, evaluated = $6, votes_cast = $7, brake_tripped = $8, outcomes = $9`,
		report.ID, report.Policy, report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.ProposalsScanned, report.ProposalsEvaluated, report.VotesCast,
		report.BrakeTripped, outcomesJSON,
	)
	return eris.Wrapf(err, "postgres: save report %s", report.ID)
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.RunReport, error) {
	var r model.RunReport
	var outcomesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes
		 FROM reports WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Policy, &r.StartedAt, &r.FinishedAt,
		&r.ProposalsScanned, &r.ProposalsEvaluated, &r.VotesCast, &r.BrakeTripped, &outcomesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("report not found")
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}

	if err := json.Unmarshal(outcomesJSON, &r.Proposals); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal outcomes")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.RunReport, error) {
	query := `SELECT id, policy, started_at, finished_at, scanned, evaluated, votes_cast, brake_tripped, outcomes
	          FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Policy != "" {
		query += fmt.Sprintf(` AND policy = $%d`, argIdx)
		args = append(args, filter.Policy)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var r model.RunReport
		var outcomesJSON []byte

		if err := rows.Scan(&r.ID, &r.Policy, &r.StartedAt, &r.FinishedAt,
			&r.ProposalsScanned, &r.ProposalsEvaluated, &r.VotesCast, &r.BrakeTripped, &outcomesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		if err := json.Unmarshal(outcomesJSON, &r.Proposals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcomes")
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) PruneReports(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reports WHERE started_at < $1`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune reports")
	}
	return int(tag.RowsAffected()), nil
}
