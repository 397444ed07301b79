package database

import "context"

// Pool is a live connection pool bound to exactly one Descriptor.
// Layers above this package talk only to this interface and to Dialect;
// they never import the mysql or postgres packages directly.
type Pool interface {
	// Dialect returns the SQL dialect spoken by this pool.
	Dialect() Dialect

	// Ping performs a trivial round-trip to verify the backend is reachable.
	Ping(ctx context.Context) error

	// Execute checks out a connection, runs stmt, and releases the
	// connection on every exit path. Placeholder translation is the
	// caller's responsibility (see Dialect.Bind).
	Execute(ctx context.Context, stmt Statement) (*Result, error)

	// Close releases all connections held by the pool.
	Close() error
}

// Opener creates and probes a pool for d. On probe failure the pool is
// discarded and the error returned.
type Opener func(ctx context.Context, d Descriptor, opts PoolOptions) (Pool, error)

// Generator identifies the backend mechanism producing auto-increment
// values for a table: the table itself for MySQL, a sequence for PostgreSQL.
type Generator struct {
	Name   string
	Column string
}

// Dialect hides backend SQL differences. Every method is pure: it only
// builds statements, the Router executes them.
type Dialect interface {
	Backend() Backend

	// QuoteIdent quotes a possibly schema-qualified identifier.
	QuoteIdent(name string) string

	// Bind translates caller placeholders into the driver's native form.
	Bind(stmt Statement) (Statement, error)

	// ReturnsRows reports whether statements starting with verb produce a result set.
	ReturnsRows(verb string) bool

	// Catalog statements.
	ListTables() Statement
	DescribeTable(table string) Statement
	TableExists(table string) Statement
	Statistics() Statement

	// Maintenance statements.
	CountRows(table string) Statement
	Truncate(table string) Statement
	LocateGenerator(table string) Statement
	ResetGenerator(table string, gen Generator, start int64) Statement
	CurrentGenerator(table string, gen Generator) Statement
	GeneratorStatus(table string, gen Generator) Statement
}
