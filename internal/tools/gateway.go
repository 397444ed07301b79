// Package tools is the callable surface of the gateway. Every tool is a
// Gateway method taking a typed argument struct; Call dispatches a tool by
// name with loosely typed arguments, the way a protocol shell delivers them.
//
// Tools never talk to a backend directly. Statements go through the router
// and maintenance workflows, so the safety policy applies to every call.
package tools

import (
	"context"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/maintenance"
	"github.com/koustreak/sqlgate/internal/policy"
	"github.com/koustreak/sqlgate/internal/registry"
	"github.com/koustreak/sqlgate/internal/router"
)

const defaultExportTTL = 15 * time.Minute

// Registry is the subset of *registry.Registry the tools read.
type Registry interface {
	Initialize(ctx context.Context)
	DefaultName() string
	List() []registry.DatabaseStatus
	Describe(name string) (registry.DatabaseStatus, error)
}

// Router is the subset of *router.Router the tools execute through.
type Router interface {
	Resolve(ctx context.Context, name string) (database.Pool, database.Descriptor, error)
	Execute(ctx context.Context, req router.QueryRequest) (*router.QueryResult, error)
	Policy() *policy.Engine
}

// Response is the structured result of every tool.
type Response struct {
	Data         any              `json:"data"`
	Count        int              `json:"count"`
	Message      string           `json:"message"`
	Database     string           `json:"database,omitempty"`
	DatabaseType database.Backend `json:"database_type,omitempty"`
	Total        int              `json:"total,omitempty"`
	Capped       bool             `json:"capped,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Options configure a Gateway.
type Options struct {
	Registry Registry
	Router   Router

	// Maintenance defaults to workflows over Router.
	Maintenance *maintenance.Workflows

	// Store receives export_query results. Nil disables the tool.
	Store  filestore.Store
	Export filestore.Config

	Logger *logger.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Gateway implements the tools.
type Gateway struct {
	registry Registry
	router   Router
	maint    *maintenance.Workflows
	store    filestore.Store
	export   filestore.Config
	log      *logger.Logger
	now      func() time.Time
}

// New builds a Gateway from opts.
func New(opts Options) *Gateway {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	maint := opts.Maintenance
	if maint == nil {
		maint = maintenance.New(opts.Router, log)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	export := opts.Export
	if export.URLTTL <= 0 {
		export.URLTTL = defaultExportTTL
	}
	return &Gateway{
		registry: opts.Registry,
		router:   opts.Router,
		maint:    maint,
		store:    opts.Store,
		export:   export,
		log:      log,
		now:      now,
	}
}

// ExportEnabled reports whether export_query is available.
func (g *Gateway) ExportEnabled() bool {
	return g.store != nil
}

func (g *Gateway) respond(data any, count int, message string) *Response {
	return &Response{Data: data, Count: count, Message: message, Timestamp: g.now().UTC()}
}

func (g *Gateway) respondFor(res *router.QueryResult, data any, count int, message string) *Response {
	resp := g.respond(data, count, message)
	resp.Database = res.Database
	resp.DatabaseType = res.Backend
	return resp
}

// catalogQuery runs one dialect statement for db through the router.
func (g *Gateway) catalogQuery(ctx context.Context, db string, build func(database.Dialect) database.Statement) (*router.QueryResult, error) {
	pool, desc, err := g.router.Resolve(ctx, db)
	if err != nil {
		return nil, err
	}
	stmt := build(pool.Dialect())
	return g.router.Execute(ctx, router.QueryRequest{
		Statement: stmt.SQL,
		Args:      stmt.Args,
		Database:  desc.Name,
	})
}
