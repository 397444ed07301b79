// Package dbtest provides a scripted in-memory database.Pool for tests of
// the layers above the backend adapters.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/sqlgate/internal/database"
)

// Pool is a fake database.Pool. Statements are answered by the first
// registered reply whose fragment occurs in the SQL; unmatched statements
// return an empty result.
type Pool struct {
	mu       sync.Mutex
	dialect  database.Dialect
	replies  []reply
	executed []database.Statement
	closed   bool

	// PingErr is returned by Ping when set.
	PingErr error
}

type reply struct {
	fragment string
	result   *database.Result
	err      error
	fn       func(database.Statement) (*database.Result, error)
	once     bool
}

var _ database.Pool = (*Pool)(nil)

// New returns an empty fake pool speaking dialect.
func New(dialect database.Dialect) *Pool {
	return &Pool{dialect: dialect}
}

// On answers statements containing fragment with rows.
func (p *Pool) On(fragment string, rows ...database.Row) *Pool {
	return p.add(reply{fragment: fragment, result: Rows(rows...)})
}

// OnOnce is like On but the reply is consumed by the first match.
func (p *Pool) OnOnce(fragment string, rows ...database.Row) *Pool {
	return p.add(reply{fragment: fragment, result: Rows(rows...), once: true})
}

// OnExec answers statements containing fragment with an affected-row count.
func (p *Pool) OnExec(fragment string, affected int64) *Pool {
	return p.add(reply{fragment: fragment, result: &database.Result{Rows: []database.Row{}, RowsAffected: affected}})
}

// OnError fails statements containing fragment with err.
func (p *Pool) OnError(fragment string, err error) *Pool {
	return p.add(reply{fragment: fragment, err: err})
}

// OnFunc answers statements containing fragment by calling fn. It lets a
// test keep state across statements, e.g. a row count that a TRUNCATE resets.
func (p *Pool) OnFunc(fragment string, fn func(stmt database.Statement) (*database.Result, error)) *Pool {
	return p.add(reply{fragment: fragment, fn: fn})
}

func (p *Pool) add(r reply) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, r)
	return p
}

// Rows builds a result whose columns are taken from the first row.
func Rows(rows ...database.Row) *database.Result {
	res := &database.Result{Rows: make([]database.Row, 0, len(rows))}
	if len(rows) > 0 {
		for col := range rows[0] {
			res.Columns = append(res.Columns, col)
		}
	}
	res.Rows = append(res.Rows, rows...)
	return res
}

func (p *Pool) Dialect() database.Dialect { return p.dialect }

func (p *Pool) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.PingErr
}

func (p *Pool) Execute(ctx context.Context, stmt database.Statement) (*database.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.executed = append(p.executed, stmt)
	for i, r := range p.replies {
		if !strings.Contains(stmt.SQL, r.fragment) {
			continue
		}
		if r.once {
			p.replies = append(p.replies[:i:i], p.replies[i+1:]...)
		}
		if r.fn != nil {
			return r.fn(stmt)
		}
		if r.err != nil {
			return nil, r.err
		}
		return copyResult(r.result), nil
	}
	return &database.Result{Rows: []database.Row{}}, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Executed returns the statements run so far, in order.
func (p *Pool) Executed() []database.Statement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]database.Statement(nil), p.executed...)
}

// ExecutedSQL returns the SQL text of Executed.
func (p *Pool) ExecutedSQL() []string {
	stmts := p.Executed()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

// Closed reports whether Close was called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func copyResult(r *database.Result) *database.Result {
	out := &database.Result{
		Columns:      append([]string(nil), r.Columns...),
		Rows:         make([]database.Row, len(r.Rows)),
		RowsAffected: r.RowsAffected,
	}
	for i, row := range r.Rows {
		cp := make(database.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Opener returns a database.Opener that hands out pools by descriptor name.
// Names listed in failures fail with the given error; any other name not in
// pools fails too.
func Opener(pools map[string]*Pool, failures map[string]error) database.Opener {
	return func(ctx context.Context, d database.Descriptor, _ database.PoolOptions) (database.Pool, error) {
		if err, ok := failures[d.Name]; ok {
			return nil, err
		}
		p, ok := pools[d.Name]
		if !ok {
			return nil, context.DeadlineExceeded
		}
		if err := p.Ping(ctx); err != nil {
			return nil, err
		}
		return p, nil
	}
}
