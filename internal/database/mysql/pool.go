package mysql

import (
	"database/sql"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/logger"
)

const defaultMaxIdleConns = 5

// buildConfig translates a descriptor into a driver config.
// Multi-statement execution stays disabled on every connection.
func buildConfig(d database.Descriptor, opts database.PoolOptions) *gomysql.Config {
	cfg := gomysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = d.Address()
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.MultiStatements = false
	cfg.Timeout = opts.ConnectTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	if opts.Logger != nil {
		cfg.Logger = driverLogger{log: opts.Logger.With(map[string]any{
			"database": d.Name,
			"backend":  string(database.BackendMySQL),
		})}
	}
	return cfg
}

// configurePool applies the shared pool tuning to db.
func configurePool(db *sql.DB, opts database.PoolOptions) {
	maxOpen := int(opts.MaxConns)
	if maxOpen <= 0 {
		maxOpen = int(database.DefaultPoolOptions().MaxConns)
	}
	maxIdle := defaultMaxIdleConns
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(opts.MaxConnLifetime)
	db.SetConnMaxIdleTime(opts.MaxConnIdleTime)
}

// driverLogger routes go-sql-driver/mysql diagnostics into the gateway logger.
type driverLogger struct {
	log *logger.Logger
}

func (l driverLogger) Print(v ...any) {
	l.log.Warn(fmt.Sprint(v...))
}
