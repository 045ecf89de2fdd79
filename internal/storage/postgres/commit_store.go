// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CommitStoreConfig controls the Postgres connection pool for the audit
// ledger.
type CommitStoreConfig struct {
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

// CommitStore writes one audit row per attempted unit-of-work commit.
type CommitStore struct {
	pool  execCloser
	table string
}

// NewCommitStore creates a Postgres-backed CommitStore using the provided
// config.
func NewCommitStore(ctx context.Context, cfg CommitStoreConfig) (*CommitStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "uow_commits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &CommitStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewCommitStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewCommitStoreWithPool(pool execCloser, table string) (*CommitStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "uow_commits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CommitStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CommitStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreCommit inserts an audit row into Postgres.
func (s *CommitStore) StoreCommit(ctx context.Context, record uow.CommitRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("commit store is not configured")
	}
	if record.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	request_id,
	account_id,
	contact_id,
	service_case_id,
	followup_case_id,
	status,
	error_text,
	committed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	args := []any{
		record.RequestID,
		record.AccountID,
		record.ContactID,
		record.ServiceCaseID,
		record.FollowupCaseID,
		string(record.Status),
		record.ErrorText,
		record.CommittedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert commit row: %w", err)
	}
	return nil
}
