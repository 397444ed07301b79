package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/rs/zerolog"
)

// buildConfig translates a descriptor and the shared pool options into a pgxpool config.
func buildConfig(d database.Descriptor, opts database.PoolOptions) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(d))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolCfg.MaxConns = withDefault(opts.MaxConns, database.DefaultPoolOptions().MaxConns)
	poolCfg.MinConns = 0
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	// The simple protocol runs every ';'-separated statement in one call.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	if opts.Logger != nil {
		poolCfg.ConnConfig.Tracer = newTracer(opts.Logger.With(map[string]any{
			"database": d.Name,
			"backend":  string(database.BackendPostgres),
		}))
	}

	return poolCfg, nil
}

// buildDSN constructs the keyword/value connection string.
func buildDSN(d database.Descriptor) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dsnQuote(d.Host), portOf(d), dsnQuote(d.User), dsnQuote(d.Password), dsnQuote(d.Database),
	)
}

func portOf(d database.Descriptor) int {
	if d.Port == 0 {
		return database.BackendPostgres.DefaultPort()
	}
	return d.Port
}

// dsnQuote single-quotes a keyword/value DSN value, escaping quotes and backslashes.
func dsnQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// withDefault returns val if non-zero, otherwise returns def
func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}

// --- driver logging ---

// newTracer bridges pgx query tracing into log. Statements are traced only
// when debug logging is enabled.
func newTracer(log *logger.Logger) *tracelog.TraceLog {
	level := tracelog.LogLevelWarn
	if log.Enabled(zerolog.DebugLevel) {
		level = tracelog.LogLevelDebug
	}
	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			log.LevelFields(zerologLevel(lvl), msg, data)
		}),
		LogLevel: level,
	}
}

func zerologLevel(lvl tracelog.LogLevel) zerolog.Level {
	switch lvl {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

// --- value normalisation ---

// normalizeValue converts pgx-decoded values that do not marshal cleanly
// into plain Go values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.Int != nil && val.Exp >= 0 {
			n := new(big.Int).Mul(val.Int, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(val.Exp)), nil))
			if n.IsInt64() {
				return n.Int64()
			}
			return n.String()
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	default:
		return database.NormalizeValue(v)
	}
}
