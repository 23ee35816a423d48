package report

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the result-history connection pool.
type PostgresConfig struct {
	DSN             string
	RunsTable       string
	ResultsTable    string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink records one row per run and one row per check result.
type PostgresSink struct {
	pool         execCloser
	runsTable    string
	resultsTable string
}

// NewPostgresSink connects a pool using cfg.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("report.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sink, err := NewPostgresSinkWithPool(pool, cfg.RunsTable, cfg.ResultsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSinkWithPool constructs a sink from an existing pool.
func NewPostgresSinkWithPool(pool execCloser, runsTable, resultsTable string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runsTable == "" {
		runsTable = "audit_runs"
	}
	if resultsTable == "" {
		resultsTable = "audit_results"
	}
	for _, table := range []string{runsTable, resultsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &PostgresSink{pool: pool, runsTable: runsTable, resultsTable: resultsTable}, nil
}

// Close releases the underlying pool.
func (s *PostgresSink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save inserts the run row followed by its results in registry order.
func (s *PostgresSink) Save(ctx context.Context, run Run) (string, error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("postgres sink is not configured")
	}
	if run.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	host,
	root_url,
	started_at,
	overall_status,
	exit_code,
	check_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.runsTable)
	if _, err := s.pool.Exec(ctx, runQuery,
		run.RunID,
		run.Host,
		run.Root,
		run.StartedAt,
		string(run.Overall),
		run.ExitCode,
		len(run.Results),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	resultQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	position,
	check_name,
	status,
	metrics,
	samples,
	fix_hint,
	error
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.resultsTable)
	for i, r := range run.Results {
		metrics, err := jsonObject(r.Metrics)
		if err != nil {
			return "", fmt.Errorf("marshal metrics for %s: %w", r.Name, err)
		}
		samples, err := jsonObject(r.Samples)
		if err != nil {
			return "", fmt.Errorf("marshal samples for %s: %w", r.Name, err)
		}
		if _, err := s.pool.Exec(ctx, resultQuery,
			run.RunID,
			i+1,
			r.Name,
			string(r.Status),
			metrics,
			samples,
			r.FixHint,
			nullable(r.Error),
		); err != nil {
			return "", fmt.Errorf("insert result %s: %w", r.Name, err)
		}
	}
	return fmt.Sprintf("postgres://%s/%s", s.resultsTable, run.RunID), nil
}

func jsonObject(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
