// Package router is the single entry point through which every statement
// reaches a backend: it resolves the pool, applies the safety policy,
// binds parameters, executes and caps the result.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/policy"
)

// Registry is the subset of *registry.Registry the router needs.
type Registry interface {
	Initialize(ctx context.Context)
	Initialized() bool
	Resolve(name string) (database.Pool, database.Descriptor, error)
}

// QueryRequest is one statement to route.
type QueryRequest struct {
	Statement string
	Args      []any
	Named     map[string]any

	// Database is the logical database name; empty selects the default.
	Database string

	Intent    policy.Intent
	Confirmed bool
}

// QueryResult is the normalised, capped outcome of Execute.
type QueryResult struct {
	Database     string           `json:"database"`
	Backend      database.Backend `json:"database_type"`
	Columns      []string         `json:"columns"`
	Rows         []database.Row   `json:"rows"`
	Total        int              `json:"total"`
	Capped       bool             `json:"capped"`
	RowsAffected int64            `json:"rows_affected"`
}

// Router routes statements. It is safe for concurrent use.
type Router struct {
	registry Registry
	policy   *policy.Engine
	log      *logger.Logger
}

// New returns a Router. A nil log discards output.
func New(reg Registry, engine *policy.Engine, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{registry: reg, policy: engine, log: log}
}

// Policy returns the engine the router gates with.
func (r *Router) Policy() *policy.Engine {
	return r.policy
}

// Resolve initialises the registry if needed and resolves name.
func (r *Router) Resolve(ctx context.Context, name string) (database.Pool, database.Descriptor, error) {
	if !r.registry.Initialized() {
		r.registry.Initialize(ctx)
	}
	return r.registry.Resolve(name)
}

// Execute runs req. The steps are fixed: initialise, resolve, gate, bind,
// execute, cap. No statement reaches a pool without passing the policy.
func (r *Router) Execute(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	pool, desc, err := r.Resolve(ctx, req.Database)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"database": desc.Name,
		"backend":  string(desc.Backend),
		"verb":     database.Verb(req.Statement),
		"intent":   req.Intent.String(),
	}

	if err := r.policy.Evaluate(policy.Request{
		Statement: req.Statement,
		Database:  desc.Name,
		Intent:    req.Intent,
		Confirmed: req.Confirmed,
	}); err != nil {
		r.log.WarnWith("statement rejected", err, fields)
		return nil, withDatabase(err, desc.Name)
	}

	stmt, err := pool.Dialect().Bind(database.Statement{SQL: req.Statement, Args: req.Args, Named: req.Named})
	if err != nil {
		return nil, withDatabase(err, desc.Name)
	}

	start := time.Now()
	res, err := pool.Execute(ctx, stmt)
	fields["elapsed_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		r.log.ErrorWith("statement failed", err, fields)
		return nil, errs.Wrap(errs.ErrKindQueryExecutionFailed, "query execution failed", err).In(desc.Name)
	}

	rows, total, capped := r.policy.Cap(res.Rows)
	fields["rows"] = total
	fields["capped"] = capped
	r.log.DebugWith("statement executed", fields)

	return &QueryResult{
		Database:     desc.Name,
		Backend:      desc.Backend,
		Columns:      res.Columns,
		Rows:         rows,
		Total:        total,
		Capped:       capped,
		RowsAffected: res.RowsAffected,
	}, nil
}

// withDatabase attaches name to err when err is an *errs.Error without one.
func withDatabase(err error, name string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Database == "" {
		return e.In(name)
	}
	return err
}
