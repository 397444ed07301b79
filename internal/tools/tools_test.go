package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/dbtest"
	"github.com/koustreak/sqlgate/internal/database/mysql"
	"github.com/koustreak/sqlgate/internal/database/postgres"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/maintenance"
	"github.com/koustreak/sqlgate/internal/policy"
	"github.com/koustreak/sqlgate/internal/registry"
	"github.com/koustreak/sqlgate/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]filestore.PutOptions
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, opts: map[string]filestore.PutOptions{}}
}

func (s *memoryStore) Ping(context.Context) error                 { return nil }
func (s *memoryStore) Close() error                               { return nil }
func (s *memoryStore) EnsureBucket(context.Context, string) error { return nil }

func (s *memoryStore) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	if s.putErr != nil {
		return nil, s.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
	s.opts[bucket+"/"+key] = opts
	return &filestore.ObjectInfo{Key: key, Bucket: bucket, Size: size, ContentType: opts.ContentType}, nil
}

func (s *memoryStore) PresignGetURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://exports.local/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

type fixture struct {
	gw    *Gateway
	reg   *registry.Registry
	shop  *dbtest.Pool
	wh    *dbtest.Pool
	store *memoryStore
}

type fixtureOptions struct {
	env      policy.Environment
	toggles  policy.Toggles
	store    bool
	failures map[string]error
}

func newFixture(t *testing.T, o fixtureOptions) *fixture {
	t.Helper()
	if o.env == "" {
		o.env = policy.EnvLocal
	}
	if o.toggles.MaxRows == 0 {
		o.toggles.MaxRows = policy.DefaultMaxRows
	}

	shop := dbtest.New(mysql.Dialect{})
	wh := dbtest.New(postgres.Dialect{})
	open := dbtest.Opener(map[string]*dbtest.Pool{"shop": shop, "wh": wh}, o.failures)

	reg, err := registry.New(registry.Options{
		Descriptors: []database.Descriptor{
			{Name: "shop", Backend: database.BackendMySQL, Host: "mysql", User: "u", Database: "shop", Description: "orders"},
			{Name: "wh", Backend: database.BackendPostgres, Host: "pg", User: "u", Database: "wh", Docker: true},
		},
		Openers: map[database.Backend]database.Opener{
			database.BackendMySQL:    open,
			database.BackendPostgres: open,
		},
	})
	require.NoError(t, err)

	engine, err := policy.New(o.env, o.toggles)
	require.NoError(t, err)
	r := router.New(reg, engine, nil)

	f := &fixture{reg: reg, shop: shop, wh: wh}
	opts := Options{
		Registry:    reg,
		Router:      r,
		Maintenance: maintenance.New(r, nil),
		Now:         func() time.Time { return fixedNow },
	}
	if o.store {
		f.store = newMemoryStore()
		opts.Store = f.store
		opts.Export = filestore.Config{Endpoint: "minio:9000", Bucket: "exports", URLTTL: time.Hour}
	}
	f.gw = New(opts)
	return f
}

func rows(n int) []database.Row {
	out := make([]database.Row, n)
	for i := range out {
		out[i] = database.Row{"id": int64(i + 1)}
	}
	return out
}

func TestCatalog(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	var names []string
	for _, tool := range f.gw.Catalog() {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req, tool.Name)
		}
	}
	assert.Equal(t, []string{
		ToolListDatabases, ToolGetDatabaseInfo, ToolCheckConnections, ToolGetStatistics,
		ToolGetCurrentEnvironment, ToolExecuteQuery, ToolListTables, ToolDescribeTable,
		ToolResetAutoIncrement, ToolCheckAutoIncrementStatus, ToolTruncateTable,
	}, names)

	withStore := newFixture(t, fixtureOptions{store: true})
	assert.Len(t, withStore.gw.Catalog(), len(names)+1)
}

func TestCall_UnknownToolAndBadArgs(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	_, err := f.gw.Call(ctx, "drop_everything", nil)
	assert.True(t, errs.IsNotFound(err))

	_, err = f.gw.Call(ctx, ToolExecuteQuery, map[string]any{})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "query is required")

	_, err = f.gw.Call(ctx, ToolExecuteQuery, map[string]any{"query": "SELECT 1", "bogus": true})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = f.gw.Call(ctx, ToolResetAutoIncrement, map[string]any{"table": "orders", "start_value": 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_value must be at least 1")

	_, err = f.gw.Call(ctx, ToolListDatabases, map[string]any{"unexpected": 1})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestListDatabasesAndInfo(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	resp, err := f.gw.Call(ctx, ToolListDatabases, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	statuses := resp.Data.([]registry.DatabaseStatus)
	assert.Equal(t, "shop", statuses[0].Name)
	assert.Equal(t, registry.StateNotConnected, statuses[0].State)
	assert.Equal(t, fixedNow, resp.Timestamp)

	resp, err = f.gw.Call(ctx, ToolGetDatabaseInfo, map[string]any{"database_name": "wh"})
	require.NoError(t, err)
	assert.Equal(t, "wh", resp.Database)
	assert.Equal(t, database.BackendPostgres, resp.DatabaseType)
	assert.True(t, resp.Data.(registry.DatabaseStatus).Docker)

	_, err = f.gw.Call(ctx, ToolGetDatabaseInfo, map[string]any{"database_name": "nope"})
	assert.True(t, errs.IsUnknownDatabase(err))
}

func TestCheckConnections_IsolatesFailures(t *testing.T) {
	f := newFixture(t, fixtureOptions{failures: map[string]error{"wh": errors.New("connection refused")}})

	resp, err := f.gw.Call(context.Background(), ToolCheckConnections, nil)
	require.NoError(t, err)
	assert.Equal(t, "1 of 2 databases connected", resp.Message)

	statuses := resp.Data.([]registry.DatabaseStatus)
	assert.True(t, statuses[0].Connected)
	assert.False(t, statuses[1].Connected)
	assert.Equal(t, registry.StateFailed, statuses[1].State)

	q, err := f.gw.Call(context.Background(), ToolExecuteQuery, map[string]any{"query": "SELECT 1", "database_name": "shop"})
	require.NoError(t, err)
	assert.Equal(t, "shop", q.Database)
}

func TestCheckConnections_PingFailure(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.reg.Initialize(ctx)
	f.wh.PingErr = errors.New("server closed the connection")

	resp, err := f.gw.CheckConnections(ctx)
	require.NoError(t, err)
	statuses := resp.Data.([]registry.DatabaseStatus)
	assert.True(t, statuses[0].Connected)
	assert.False(t, statuses[1].Connected)
	assert.Contains(t, statuses[1].Error, "server closed")
}

func TestExecuteQuery(t *testing.T) {
	f := newFixture(t, fixtureOptions{toggles: policy.Toggles{MaxRows: 2}})
	f.shop.On("FROM orders", rows(5)...)
	f.shop.OnExec("UPDATE orders", 3)
	ctx := context.Background()

	resp, err := f.gw.Call(ctx, ToolExecuteQuery, map[string]any{"query": "SELECT id FROM orders"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 5, resp.Total)
	assert.True(t, resp.Capped)
	assert.Equal(t, "result capped at 2 rows (total 5)", resp.Message)
	assert.Equal(t, "shop", resp.Database)
	assert.Equal(t, database.BackendMySQL, resp.DatabaseType)

	resp, err = f.gw.Call(ctx, ToolExecuteQuery, map[string]any{
		"query":  "UPDATE orders SET status = ? WHERE id = ?",
		"params": []any{"paid", float64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rows_affected": int64(3)}, resp.Data)
	assert.Equal(t, "3 rows affected", resp.Message)

	last := f.shop.Executed()
	assert.Equal(t, []any{"paid", float64(7)}, last[len(last)-1].Args)
}

func TestExecuteQuery_ReturningRows(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.wh.On("RETURNING id", database.Row{"id": int64(11)})

	resp, err := f.gw.Call(context.Background(), ToolExecuteQuery, map[string]any{
		"query":         "INSERT INTO orders (status) VALUES ($1) RETURNING id",
		"params":        []any{"open"},
		"database_name": "wh",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []database.Row{{"id": int64(11)}}, resp.Data)
	assert.Equal(t, "query returned 1 rows", resp.Message)
}

func TestExecuteQuery_PolicyRejections(t *testing.T) {
	f := newFixture(t, fixtureOptions{env: policy.EnvTest})
	ctx := context.Background()

	_, err := f.gw.Call(ctx, ToolExecuteQuery, map[string]any{"query": "DELETE FROM orders"})
	assert.True(t, errs.IsOperationNotAllowed(err))

	_, err = f.gw.Call(ctx, ToolExecuteQuery, map[string]any{"query": "SELECT * FROM drop_log"})
	assert.True(t, errs.IsDestructiveOperationBlocked(err))

	assert.Empty(t, f.shop.Executed())
}

func TestExecuteQuery_BareTruncateRefused(t *testing.T) {
	f := newFixture(t, fixtureOptions{toggles: policy.Toggles{EnableDrop: true}})

	_, err := f.gw.Call(context.Background(), ToolExecuteQuery, map[string]any{"query": "TRUNCATE TABLE orders"})
	assert.True(t, errs.IsMaintenanceDisabled(err), "got %v", err)
	assert.Empty(t, f.shop.Executed())
}

func TestListTablesAndStatistics(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.wh.On("pg_database_size", database.Row{"table_count": int64(2), "size_bytes": int64(8192)})
	f.wh.On("information_schema.tables", database.Row{"table_name": "orders"}, database.Row{"table_name": "users"})
	ctx := context.Background()

	resp, err := f.gw.Call(ctx, ToolListTables, map[string]any{"database_name": "wh"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, database.BackendPostgres, resp.DatabaseType)

	resp, err = f.gw.Call(ctx, ToolGetStatistics, map[string]any{"database_name": "wh"})
	require.NoError(t, err)
	assert.Equal(t, "database wh has 2 tables", resp.Message)
	assert.Equal(t, int64(8192), resp.Data.(database.Row)["size_bytes"])
}

func TestDescribeTable(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.shop.On("DESCRIBE `orders`",
		database.Row{"Field": "id", "Type": "int", "Null": "NO", "Key": "PRI", "Default": nil, "Extra": "auto_increment"},
		database.Row{"Field": "total", "Type": "decimal(10,2)", "Null": "YES", "Key": "", "Default": nil, "Extra": ""},
	)
	ctx := context.Background()

	resp, err := f.gw.Call(ctx, ToolDescribeTable, map[string]any{"table": "orders"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "table orders has 2 columns", resp.Message)

	// The postgres catalog returns no rows for a missing table.
	_, err = f.gw.Call(ctx, ToolDescribeTable, map[string]any{"table": "ghost", "database_name": "wh"})
	require.Error(t, err)
	assert.True(t, errs.IsTableNotFound(err))
	assert.Contains(t, err.Error(), `database "wh"`)
}

func TestGetCurrentEnvironment(t *testing.T) {
	toggles := policy.DefaultToggles()
	toggles.EnableDelete = true
	f := newFixture(t, fixtureOptions{env: policy.EnvTest, toggles: toggles})

	resp, err := f.gw.Call(context.Background(), ToolGetCurrentEnvironment, nil)
	require.NoError(t, err)

	info := resp.Data.(EnvironmentInfo)
	assert.Equal(t, policy.EnvTest, info.Environment)
	assert.False(t, info.ReadOnly)
	assert.NotContains(t, info.AllowedOperations, "DELETE")
	assert.Equal(t, "shop", info.DefaultDatabase)
	assert.True(t, info.Safety.EnableDelete)
	assert.Equal(t, "current environment: test", resp.Message)
}

func TestMaintenanceTools(t *testing.T) {
	toggles := policy.DefaultToggles()
	toggles.EnableMaintenanceOps = true
	toggles.EnableTruncate = true
	toggles.EnableDrop = true
	f := newFixture(t, fixtureOptions{toggles: toggles})
	ctx := context.Background()

	f.shop.On("SELECT TABLE_NAME AS table_name", database.Row{"table_name": "orders"})
	f.shop.On("EXTRA LIKE", database.Row{"generator": "orders", "column_name": "id"})
	f.shop.On("AS engine", database.Row{"table_name": "orders", "current_value": int64(42), "engine": "InnoDB"})
	f.shop.On("SELECT AUTO_INCREMENT AS current_value", database.Row{"current_value": int64(42)})
	f.shop.On("SELECT COUNT(*) AS row_count", database.Row{"row_count": int64(5)})

	resp, err := f.gw.Call(ctx, ToolResetAutoIncrement, map[string]any{"table": "orders", "start_value": "42"})
	require.NoError(t, err)
	reset := resp.Data.(*maintenance.ResetResult)
	assert.Equal(t, int64(42), reset.ResetValue)
	assert.True(t, reset.Current.Known)
	assert.Contains(t, f.shop.ExecutedSQL(), "ALTER TABLE `orders` AUTO_INCREMENT = 42")

	resp, err = f.gw.Call(ctx, ToolResetAutoIncrement, map[string]any{"table": "orders"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Data.(*maintenance.ResetResult).ResetValue)

	resp, err = f.gw.Call(ctx, ToolCheckAutoIncrementStatus, map[string]any{"table": "orders"})
	require.NoError(t, err)
	assert.Equal(t, "next auto-increment value of orders is 42", resp.Message)

	_, err = f.gw.Call(ctx, ToolTruncateTable, map[string]any{"table": "orders"})
	assert.True(t, errs.IsConfirmationRequired(err))

	resp, err = f.gw.Call(ctx, ToolTruncateTable, map[string]any{"table": "orders", "confirm": true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Data.(*maintenance.TruncateResult).RowsDeleted)
	assert.Equal(t, "table orders truncated, 5 rows deleted, auto-increment reset", resp.Message)
}

func TestExportQuery(t *testing.T) {
	f := newFixture(t, fixtureOptions{store: true})
	f.wh.On("FROM orders", rows(3)...)

	resp, err := f.gw.Call(context.Background(), ToolExportQuery, map[string]any{
		"query":         "SELECT id FROM orders",
		"database_name": "wh",
	})
	require.NoError(t, err)

	key := "exports/wh/20260314T092653.589Z.json"
	res := resp.Data.(ExportResult)
	assert.Equal(t, key, res.Object.Key)
	assert.Equal(t, "exports", res.Object.Bucket)
	assert.Equal(t, "https://exports.local/exports/"+key+"?ttl=1h0m0s", res.URL)
	assert.Equal(t, fixedNow.Add(time.Hour), res.ExpiresAt)
	assert.Equal(t, 3, resp.Count)

	var doc exportDocument
	require.NoError(t, json.Unmarshal(f.store.objects["exports/"+key], &doc))
	assert.Equal(t, "wh", doc.Database)
	assert.Equal(t, database.BackendPostgres, doc.DatabaseType)
	assert.Len(t, doc.Rows, 3)
	assert.Equal(t, "application/json", f.store.opts["exports/"+key].ContentType)
	assert.Equal(t, "3", f.store.opts["exports/"+key].Metadata["rows"])
}

func TestExportQuery_Rejections(t *testing.T) {
	ctx := context.Background()

	disabled := newFixture(t, fixtureOptions{})
	_, err := disabled.gw.Call(ctx, ToolExportQuery, map[string]any{"query": "SELECT 1"})
	assert.True(t, errs.IsUnsupportedOperation(err))

	f := newFixture(t, fixtureOptions{store: true})
	_, err = f.gw.Call(ctx, ToolExportQuery, map[string]any{"query": "UPDATE orders SET x = 1"})
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, f.shop.Executed())

	f.store.putErr = errs.New(errs.ErrKindConnectionFailed, "minio unreachable")
	_, err = f.gw.Call(ctx, ToolExportQuery, map[string]any{"query": "SELECT 1"})
	assert.True(t, errs.IsConnectionFailed(err))
}
