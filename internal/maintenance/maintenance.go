// Package maintenance implements the multi-step table maintenance
// workflows: resetting a table's generator and truncating a table.
//
// Every step is an ordinary routed statement, so each one passes the safety
// policy on its own. The maintenance gates are checked once more up front so
// that a rejected request never touches the database.
package maintenance

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/policy"
	"github.com/koustreak/sqlgate/internal/router"
)

// Router is the subset of *router.Router the workflows need.
type Router interface {
	Resolve(ctx context.Context, name string) (database.Pool, database.Descriptor, error)
	Execute(ctx context.Context, req router.QueryRequest) (*router.QueryResult, error)
	Policy() *policy.Engine
}

// Workflows runs maintenance operations through a Router.
type Workflows struct {
	router Router
	log    *logger.Logger
}

// New returns the workflows. A nil log discards output.
func New(r Router, log *logger.Logger) *Workflows {
	if log == nil {
		log = logger.Nop()
	}
	return &Workflows{router: r, log: log}
}

// Verification is the outcome of a best-effort check that runs after an
// operation has already succeeded. Known is false when the check itself
// failed; the operation result stands either way.
type Verification struct {
	Value int64
	Known bool
	Err   error
}

// MarshalJSON renders an unknown verification as the string "unknown".
func (v Verification) MarshalJSON() ([]byte, error) {
	if !v.Known {
		return json.Marshal("unknown")
	}
	return json.Marshal(v.Value)
}

// target is a resolved table on one database.
type target struct {
	table string
	desc  database.Descriptor
	dl    database.Dialect
}

func (w *Workflows) resolve(ctx context.Context, table, db string) (target, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return target{}, errs.New(errs.ErrKindInvalidInput, "table name is required")
	}
	pool, desc, err := w.router.Resolve(ctx, db)
	if err != nil {
		return target{}, err
	}
	return target{table: table, desc: desc, dl: pool.Dialect()}, nil
}

func (w *Workflows) run(ctx context.Context, t target, stmt database.Statement, intent policy.Intent, confirmed bool) (*router.QueryResult, error) {
	return w.router.Execute(ctx, router.QueryRequest{
		Statement: stmt.SQL,
		Args:      stmt.Args,
		Named:     stmt.Named,
		Database:  t.desc.Name,
		Intent:    intent,
		Confirmed: confirmed,
	})
}

func (w *Workflows) fields(op string, t target) map[string]any {
	return map[string]any{
		"op":       op,
		"table":    t.table,
		"database": t.desc.Name,
		"backend":  string(t.desc.Backend),
	}
}

// nextValue reads the value the generator will hand out next from a row
// with a "current_value" column. A row that also reports is_called=true
// (a PostgreSQL sequence that has been used) is one step further along.
func nextValue(row database.Row) (int64, bool) {
	if row == nil {
		return 0, false
	}
	v, ok := database.AsInt64(row["current_value"])
	if !ok {
		return 0, false
	}
	if called, _ := row["is_called"].(bool); called {
		v++
	}
	return v, true
}

func first(rows []database.Row) database.Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
