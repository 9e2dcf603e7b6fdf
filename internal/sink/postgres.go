package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gva-data/harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool behind the Postgres sink.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink inserts one row per successful record. Failed outcomes are
// not persisted; the batch CSV remains the source of truth for those.
type PostgresSink struct {
	pool   execCloser
	insert string
}

// NewPostgresSink creates a Postgres-backed sink using the provided config.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newPostgresSink(pool, cfg.Table)
}

func newPostgresSink(pool execCloser, table string) (*PostgresSink, error) {
	if table == "" {
		table = "incidents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{pool: pool, insert: buildInsert(table)}, nil
}

func buildInsert(table string) string {
	columns := append([]string{"incident_id", "incident_url"}, harvest.FieldNames...)
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(params, ", "))
}

// Write inserts a successful outcome's record. Failures are skipped.
func (s *PostgresSink) Write(ctx context.Context, out harvest.FetchOutcome) error {
	if !out.OK() {
		return nil
	}
	args := make([]any, 0, 2+len(out.Record))
	args = append(args, out.Context.IncidentID, out.Context.DetailURL)
	for _, f := range out.Record {
		args = append(args, f.Value)
	}
	if _, err := s.pool.Exec(ctx, s.insert, args...); err != nil {
		return fmt.Errorf("insert incident %d: %w", out.Context.IncidentID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
