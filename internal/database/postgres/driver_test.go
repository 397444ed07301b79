package postgres

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) (*Pool, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return newPool(mock), mock
}

func TestPool_Ping(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectPing()

	require.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_PingFailure(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectPing().WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestPool_ExecuteSelect(t *testing.T) {
	p, mock := newMockPool(t)

	const q = "SELECT id, status FROM orders WHERE status = $1"
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("open").
		WillReturnRows(mock.NewRows([]string{"id", "status"}).
			AddRow(int64(1), "open").
			AddRow(int64(2), "open"))

	res, err := p.Execute(context.Background(), database.NewStatement(q, "open"))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "status"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, database.Row{"id": int64(2), "status": "open"}, res.Rows[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ExecuteWrite(t *testing.T) {
	p, mock := newMockPool(t)

	const q = "UPDATE orders SET status = $1"
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("closed").
		WillReturnRows(mock.NewRows(nil).AddCommandTag(pgconn.NewCommandTag("UPDATE 3")))

	res, err := p.Execute(context.Background(), database.NewStatement(q, "closed"))
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.RowsAffected)
	assert.Empty(t, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ExecuteStackedStatementsRefused(t *testing.T) {
	p, mock := newMockPool(t)

	const q = "UPDATE t SET a = 1; DELETE FROM t"
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WillReturnError(&pgconn.PgError{Code: "42601", Message: "cannot insert multiple commands into a prepared statement"})

	res, err := p.Execute(context.Background(), database.NewStatement(q))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errs.ErrKindQueryFailed, errs.KindOf(err))
	assert.Contains(t, err.Error(), "multiple commands")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ExecuteReturningKeepsRows(t *testing.T) {
	p, mock := newMockPool(t)

	const q = "INSERT INTO orders (status) VALUES ($1) RETURNING id"
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("open").
		WillReturnRows(mock.NewRows([]string{"id"}).
			AddRow(int64(9)).
			AddCommandTag(pgconn.NewCommandTag("INSERT 0 1")))

	res, err := p.Execute(context.Background(), database.NewStatement(q, "open"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.RowsAffected)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(9), res.Rows[0]["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ExecuteUndefinedTable(t *testing.T) {
	p, mock := newMockPool(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM missing")).
		WillReturnError(&pgconn.PgError{Code: pgErrUndefinedTable, Message: `relation "missing" does not exist`})

	_, err := p.Execute(context.Background(), database.NewStatement("SELECT * FROM missing"))
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestQueryArgs(t *testing.T) {
	args, err := queryArgs(database.NewStatement("SELECT $1", 1))
	require.NoError(t, err)
	assert.Equal(t, []any{1}, args)

	args, err = queryArgs(database.Statement{SQL: "SELECT @id", Named: map[string]any{"id": 1}})
	require.NoError(t, err)
	assert.Equal(t, []any{pgx.NamedArgs{"id": 1}}, args)

	_, err = queryArgs(database.Statement{SQL: "SELECT @id, $1", Args: []any{2}, Named: map[string]any{"id": 1}})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"connection class", &pgconn.PgError{Code: "08001"}, errs.ErrKindConnectionFailed},
		{"unknown database", &pgconn.PgError{Code: pgErrInvalidCatalog}, errs.ErrKindConnectionFailed},
		{"auth", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied},
		{"privilege", &pgconn.PgError{Code: pgErrInsufficientPriv}, errs.ErrKindPermissionDenied},
		{"undefined table", &pgconn.PgError{Code: pgErrUndefinedTable}, errs.ErrKindNotFound},
		{"syntax", &pgconn.PgError{Code: "42601"}, errs.ErrKindQueryFailed},
		{"network", errors.New("dial tcp: refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(database.Descriptor{
		Backend:  database.BackendPostgres,
		Host:     "db",
		User:     "app",
		Password: "it's secret",
		Database: "shop",
	})
	assert.Equal(t, `host='db' port=5432 user='app' password='it\'s secret' dbname='shop' sslmode=disable`, dsn)
}

func TestBuildConfig(t *testing.T) {
	opts := database.DefaultPoolOptions()
	opts.MaxConns = 4

	cfg, err := buildConfig(database.Descriptor{
		Name:     "analytics",
		Backend:  database.BackendPostgres,
		Host:     "db",
		Port:     6543,
		User:     "app",
		Database: "shop",
	}, opts)
	require.NoError(t, err)

	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, "db", cfg.ConnConfig.Host)
	assert.Equal(t, uint16(6543), cfg.ConnConfig.Port)
	assert.Equal(t, "shop", cfg.ConnConfig.Database)
	assert.Equal(t, opts.ConnectTimeout, cfg.ConnConfig.ConnectTimeout)
	assert.Nil(t, cfg.ConnConfig.Tracer)
	assert.Equal(t, pgx.QueryExecModeCacheStatement, cfg.ConnConfig.DefaultQueryExecMode)
}

func TestBuildConfig_WithLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	opts := database.DefaultPoolOptions()
	opts.Logger = logger.New(&logger.Config{Level: "debug", Format: "json", Output: buf})

	cfg, err := buildConfig(database.Descriptor{
		Name:     "analytics",
		Backend:  database.BackendPostgres,
		Host:     "db",
		User:     "app",
		Database: "shop",
	}, opts)
	require.NoError(t, err)

	tracer, ok := cfg.ConnConfig.Tracer.(*tracelog.TraceLog)
	require.True(t, ok)
	assert.Equal(t, tracelog.LogLevelDebug, tracer.LogLevel)

	tracer.Logger.Log(context.Background(), tracelog.LogLevelError, "Query", map[string]any{"sql": "SELECT 1"})
	assert.Contains(t, buf.String(), `"database":"analytics"`)
	assert.Contains(t, buf.String(), `"backend":"postgresql"`)
	assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(42), normalizeValue(pgtype.Numeric{Int: big.NewInt(42), Valid: true}))
	assert.Equal(t, 1.5, normalizeValue(pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}))
	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Equal(t, "00112233-4455-6677-8899-aabbccddeeff",
		normalizeValue([16]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}))
	assert.Equal(t, "x", normalizeValue([]byte("x")))
}
