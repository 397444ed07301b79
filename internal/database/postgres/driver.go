// Package postgres implements database.Pool and database.Dialect for
// PostgreSQL on top of jackc/pgx/v5 and pgxpool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// pgxPool is the subset of *pgxpool.Pool used by Pool.
type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

var _ pgxPool = (*pgxpool.Pool)(nil)

// Pool is a PostgreSQL implementation of database.Pool backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	pool    pgxPool
	dialect Dialect
}

// Open builds a pgxpool for d and pings it before returning.
// The pool is closed again if the ping fails.
func Open(ctx context.Context, d database.Descriptor, opts database.PoolOptions) (database.Pool, error) {
	poolCfg, err := buildConfig(d, opts)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid postgres configuration", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}

	p := newPool(pool)

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	if err := p.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

func newPool(pool pgxPool) *Pool {
	return &Pool{pool: pool}
}

// --- database.Pool implementation ---

func (p *Pool) Dialect() database.Dialect {
	return p.dialect
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Execute runs stmt on a pooled connection. Every statement goes through
// Query so it is sent with the extended protocol, which carries exactly one
// statement: "UPDATE t SET a = 1; DELETE FROM t" is refused by the server
// instead of running both. Rows returned by any verb (INSERT ... RETURNING)
// are kept.
func (p *Pool) Execute(ctx context.Context, stmt database.Statement) (*database.Result, error) {
	args, err := queryArgs(stmt)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, mapError(err, "statement failed")
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	columns := make([]string, len(descs))
	for i, fd := range descs {
		columns[i] = fd.Name
	}

	res := &database.Result{Columns: columns, Rows: make([]database.Row, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(err, "failed to read row")
		}
		row := make(database.Row, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = normalizeValue(values[i])
			}
		}
		res.Rows = append(res.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "statement failed")
	}

	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}

// Close drains the connection pool.
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// queryArgs turns a statement's parameters into pgx arguments. Named
// parameters are passed as pgx.NamedArgs, which rewrites "@name" references.
func queryArgs(stmt database.Statement) ([]any, error) {
	if len(stmt.Named) == 0 {
		return stmt.Args, nil
	}
	if len(stmt.Args) > 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "named and positional parameters cannot be mixed")
	}
	return []any{pgx.NamedArgs(stmt.Named)}, nil
}
