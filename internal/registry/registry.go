// Package registry owns the connection pools of every configured logical
// database. It is the single piece of shared mutable gateway state: pools
// are created by Initialize, looked up by Resolve and released by Shutdown.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/database/mysql"
	"github.com/koustreak/sqlgate/internal/database/postgres"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/logger"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// DefaultOpeners maps every supported backend to its adapter.
func DefaultOpeners() map[database.Backend]database.Opener {
	return map[database.Backend]database.Opener{
		database.BackendMySQL:    mysql.Open,
		database.BackendPostgres: postgres.Open,
	}
}

// Options configure a Registry.
type Options struct {
	Descriptors []database.Descriptor
	Default     string

	// Openers defaults to DefaultOpeners.
	Openers map[database.Backend]database.Opener

	Pool   database.PoolOptions
	Logger *logger.Logger

	// Concurrency bounds parallel pool creation. Zero means 4.
	Concurrency int
}

// Registry is the process-wide gateway state.
type Registry struct {
	descriptors []database.Descriptor
	defaultName string
	openers     map[database.Backend]database.Opener
	poolOpts    database.PoolOptions
	log         *logger.Logger
	concurrency int

	// lifecycle serialises Initialize and Shutdown.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	pools       map[string]database.Pool
	failures    map[string]error
	initialized bool
}

// New validates opts and returns an empty, uninitialised registry.
func New(opts Options) (*Registry, error) {
	if len(opts.Descriptors) == 0 {
		return nil, errs.New(errs.ErrKindConfigurationInvalid, "no databases configured")
	}

	seen := make(map[string]bool, len(opts.Descriptors))
	for _, d := range opts.Descriptors {
		if d.Name == "" {
			return nil, errs.New(errs.ErrKindConfigurationInvalid, "database descriptor without a name")
		}
		if seen[d.Name] {
			return nil, errs.Newf(errs.ErrKindConfigurationInvalid, "database %q is configured twice", d.Name)
		}
		seen[d.Name] = true
	}

	def := opts.Default
	if def == "" {
		def = opts.Descriptors[0].Name
	}
	if !seen[def] {
		return nil, errs.Newf(errs.ErrKindConfigurationInvalid, "default database %q is not configured", def)
	}

	openers := opts.Openers
	if openers == nil {
		openers = DefaultOpeners()
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Registry{
		descriptors: append([]database.Descriptor(nil), opts.Descriptors...),
		defaultName: def,
		openers:     openers,
		poolOpts:    opts.Pool,
		log:         log,
		concurrency: concurrency,
		pools:       make(map[string]database.Pool),
		failures:    make(map[string]error),
	}, nil
}

// DefaultName returns the name used when a caller omits the database.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Initialized reports whether Initialize has completed at least once since
// the last Shutdown.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Initialize creates a pool for every descriptor that does not have one yet.
// Pools are created concurrently; a failure for one database is logged and
// recorded but never stops the others. Calling it again retries only the
// databases without a live pool.
func (r *Registry) Initialize(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	pending := make([]database.Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if _, ok := r.pools[d.Name]; !ok {
			pending = append(pending, d)
		}
	}
	r.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, d := range pending {
		g.Go(func() error {
			pool, err := r.CreatePool(ctx, d)

			r.mu.Lock()
			defer r.mu.Unlock()
			if err != nil {
				r.failures[d.Name] = err
				return nil
			}
			r.pools[d.Name] = pool
			delete(r.failures, d.Name)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	r.initialized = true
	connected := len(r.pools)
	r.mu.Unlock()

	r.log.InfoWith("registry initialized", map[string]any{
		"connected":  connected,
		"configured": len(r.descriptors),
	})
}

// CreatePool opens and probes a pool for d. The result is not registered;
// Initialize does that.
func (r *Registry) CreatePool(ctx context.Context, d database.Descriptor) (database.Pool, error) {
	fields := map[string]any{"database": d.Name, "backend": string(d.Backend), "host": d.Address()}

	open, ok := r.openers[d.Backend]
	if !ok {
		err := errs.Newf(errs.ErrKindPoolCreationFailed, "no adapter for backend %q", d.Backend).In(d.Name)
		r.log.ErrorWith("pool creation failed", err, fields)
		return nil, err
	}

	opts := r.poolOpts
	if opts.Logger == nil {
		opts.Logger = r.log
	}

	start := time.Now()
	pool, err := open(ctx, d, opts)
	if err != nil {
		wrapped := errs.Wrap(errs.ErrKindPoolCreationFailed, "failed to create pool", err).In(d.Name)
		r.log.ErrorWith("pool creation failed", err, fields)
		return nil, wrapped
	}

	fields["elapsed_ms"] = time.Since(start).Milliseconds()
	r.log.InfoWith("pool created", fields)
	return pool, nil
}

// Resolve returns the live pool and descriptor for name. An empty name
// selects the default database. Resolve never creates pools.
func (r *Registry) Resolve(name string) (database.Pool, database.Descriptor, error) {
	if name == "" {
		name = r.defaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return nil, database.Descriptor{}, errs.New(errs.ErrKindNotInitialized,
			"database pools are not initialized").In(name)
	}

	pool, ok := r.pools[name]
	if !ok {
		available := strings.Join(r.pooledNamesLocked(), ", ")
		if cause, failed := r.failures[name]; failed {
			return nil, database.Descriptor{}, errs.Wrap(errs.ErrKindUnknownDatabase,
				fmt.Sprintf("database %q is not connected (available: %s)", name, available), cause).In(name)
		}
		return nil, database.Descriptor{}, errs.Newf(errs.ErrKindUnknownDatabase,
			"unknown database %q (available: %s)", name, available).In(name)
	}

	d, _ := r.descriptor(name)
	return pool, d, nil
}

// Shutdown closes every pool and resets the registry to its uninitialised
// state. Close failures are joined; one failure never stops the others.
// Calling Shutdown more than once is safe.
func (r *Registry) Shutdown() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]database.Pool)
	r.failures = make(map[string]error)
	r.initialized = false
	r.mu.Unlock()

	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)

	var closeErrs []error
	for _, name := range names {
		if err := pools[name].Close(); err != nil {
			r.log.ErrorWith("pool close failed", err, map[string]any{"database": name})
			closeErrs = append(closeErrs, fmt.Errorf("close %s: %w", name, err))
			continue
		}
		r.log.InfoWith("pool closed", map[string]any{"database": name})
	}
	return errors.Join(closeErrs...)
}

func (r *Registry) descriptor(name string) (database.Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return database.Descriptor{}, false
}

// pooledNamesLocked returns the names with a live pool in configuration
// order. r.mu must be held.
func (r *Registry) pooledNamesLocked() []string {
	names := make([]string, 0, len(r.pools))
	for _, d := range r.descriptors {
		if _, ok := r.pools[d.Name]; ok {
			names = append(names, d.Name)
		}
	}
	return names
}
