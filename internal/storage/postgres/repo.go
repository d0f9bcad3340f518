// Package postgres implements the violation sink on Postgres using pgx v5.
// Batches go through COPY FROM STDIN, which is the fastest bulk path pgx
// offers; registration with the storage factory happens in init.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvs/internal/storage"
)

// Dialect renders Postgres DDL for the violations table.
var Dialect = storage.Dialect{
	Quote: pgIdent,
	Types: map[storage.ColumnKind]string{
		storage.KindText:      "TEXT",
		storage.KindShortText: "TEXT",
		storage.KindBigInt:    "BIGINT",
		storage.KindInt:       "INTEGER",
		storage.KindBool:      "BOOLEAN",
	},
	Guard: storage.IfNotExists,
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewRepository opens a pool for dsn. table may be schema-qualified.
func NewRepository(ctx context.Context, dsn, table string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool, table: pgx.Identifier(strings.Split(table, "."))}, nil
}

// CopyFrom streams rows into the table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, r.table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s)", r.table.Sanitize(), pgErr.Detail, pgErr.SQLState())
		}
		return n, fmt.Errorf("copy into %s: %w", r.table.Sanitize(), err)
	}
	return n, nil
}

// Exec runs a statement on the pool.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres exec: %w", err)
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// pgIdent quotes an identifier, doubling embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// newRepository is a test hook.
var newRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	return NewRepository(ctx, cfg.DSN, cfg.Table)
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, cfg)
	})
	storage.RegisterDDL("postgres", func(ctx context.Context, repo storage.Repository, table string) error {
		ddl, err := Dialect.CreateViolationsTable(table)
		if err != nil {
			return err
		}
		if err := repo.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply DDL: %w", err)
		}
		return nil
	})
}
