// Package mysql implements database.Pool and database.Dialect for the
// MySQL family (MySQL, MariaDB) on top of database/sql and
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"regexp"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// Pool is a MySQL implementation of database.Pool.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	db      *sql.DB
	dialect Dialect
}

// Open builds a connection pool for d and probes it with a trivial query.
// If the probe fails the pool is closed and the error returned.
func Open(ctx context.Context, d database.Descriptor, opts database.PoolOptions) (database.Pool, error) {
	connector, err := gomysql.NewConnector(buildConfig(d, opts))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql configuration", err)
	}

	db := sql.OpenDB(connector)
	configurePool(db, opts)

	p := newPool(db)

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	if err := p.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return p, nil
}

func newPool(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// --- database.Pool implementation ---

func (p *Pool) Dialect() database.Dialect {
	return p.dialect
}

// Ping runs SELECT 1 on a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// returning matches MariaDB's INSERT/DELETE ... RETURNING, which yields rows.
var returning = regexp.MustCompile(`(?i)\bRETURNING\b`)

// Execute checks out a dedicated connection for the statement and returns
// it to the pool on every path.
func (p *Pool) Execute(ctx context.Context, stmt database.Statement) (*database.Result, error) {
	if len(stmt.Named) > 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "mysql does not support named parameters")
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}
	defer conn.Close()

	if p.dialect.ReturnsRows(database.Verb(stmt.SQL)) || returning.MatchString(stmt.SQL) {
		rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, mapError(err, "query failed")
		}
		defer rows.Close()

		return database.ScanRows(rows)
	}

	res, err := conn.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, mapError(err, "statement failed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, mapError(err, "failed to read affected rows")
	}
	return &database.Result{Rows: make([]database.Row, 0), RowsAffected: affected}, nil
}

// Close shuts down the connection pool.
func (p *Pool) Close() error {
	return p.db.Close()
}
