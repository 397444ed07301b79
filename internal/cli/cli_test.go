package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/dbtest"
	"github.com/koustreak/sqlgate/internal/database/mysql"
	"github.com/koustreak/sqlgate/internal/errs"
)

var envKeys = []string{
	"APP_ENV", "SQLGATE_CONFIG",
	"DB_TYPE", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_DATABASE", "DB_NAME",
	"DATABASES", "DOCKER_DATABASES", "DEFAULT_DATABASE",
	"MAX_ROWS", "ENABLE_DELETE", "ENABLE_DROP", "ENABLE_TRUNCATE", "ENABLE_MAINTENANCE_OPS", "ALLOWED_DBS",
	"LOG_LEVEL", "LOG_FORMAT", "SQLGATE_ADDR",
	"EXPORT_ENDPOINT", "EXPORT_ACCESS_KEY", "EXPORT_SECRET_KEY", "EXPORT_BUCKET",
}

// setup configures one MySQL database called "default" backed by a fake pool.
func setup(t *testing.T) (*runner, *dbtest.Pool) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_DATABASE", "shop")

	pool := dbtest.New(mysql.Dialect{})
	open := dbtest.Opener(map[string]*dbtest.Pool{"default": pool}, nil)
	r := &runner{openers: map[database.Backend]database.Opener{database.BackendMySQL: open}}
	return r, pool
}

func run(t *testing.T, r *runner, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := newRoot(r)
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(append([]string{"--env-dir", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestProductionIsRefused(t *testing.T) {
	r, pool := setup(t)
	t.Setenv("APP_ENV", "production")

	_, err := run(t, r, "check")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrKindConfigurationInvalid))
	assert.Nil(t, r.cfg)
	assert.Empty(t, pool.Executed())
}

func TestMissingDatabasesIsRefused(t *testing.T) {
	r, _ := setup(t)
	t.Setenv("DB_TYPE", "")
	t.Setenv("DB_HOST", "")

	_, err := run(t, r, "tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestToolsCommand(t *testing.T) {
	r, _ := setup(t)

	out, err := run(t, r, "tools")
	require.NoError(t, err)

	var catalog []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))

	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		names = append(names, tool["name"].(string))
	}
	assert.Contains(t, names, "execute_query")
	assert.Contains(t, names, "truncate_table")
	assert.NotContains(t, names, "export_query")
}

func TestCheckCommand(t *testing.T) {
	r, _ := setup(t)

	out, err := run(t, r, "check")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "1 of 1 databases connected", resp["message"])
}

func TestQueryCommand(t *testing.T) {
	r, pool := setup(t)
	pool.On("SELECT", database.Row{"id": int64(7)})

	out, err := run(t, r, "query", "SELECT id FROM orders WHERE id = ?", "-p", "7")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "default", resp["database"])
	assert.Equal(t, float64(1), resp["count"])

	executed := pool.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, []any{"7"}, executed[0].Args)
	assert.True(t, pool.Closed())
}

func TestQueryCommand_PolicyRejects(t *testing.T) {
	r, pool := setup(t)

	_, err := run(t, r, "query", "DELETE FROM orders")
	require.Error(t, err)
	assert.Equal(t, errs.ErrKindDestructiveOperationBlocked, errs.KindOf(err))
	assert.Contains(t, err.Error(), "execute_query")
	assert.Empty(t, pool.Executed())
}

func TestLogLevelFlag(t *testing.T) {
	r, _ := setup(t)

	_, err := run(t, r, "--log-level", "debug", "tools")
	require.NoError(t, err)
	assert.Equal(t, "debug", r.cfg.Log.Level)
}
