package maintenance

import (
	"context"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/policy"
)

// ResetResult describes a completed generator reset.
type ResetResult struct {
	Table      string           `json:"table"`
	Database   string           `json:"database"`
	Backend    database.Backend `json:"database_type"`
	Generator  string           `json:"generator"`
	Column     string           `json:"column"`
	ResetValue int64            `json:"reset_value"`

	// Current is the next value the generator will produce, read back
	// after the reset.
	Current Verification `json:"current_value"`
}

// StatusResult describes the generator of one table.
type StatusResult struct {
	Table     string           `json:"table"`
	Database  string           `json:"database"`
	Backend   database.Backend `json:"database_type"`
	Generator string           `json:"generator"`
	Column    string           `json:"column"`
	NextValue int64            `json:"next_value"`

	// Detail is the backend's own view: AUTO_INCREMENT and engine on
	// MySQL, last_value and is_called on PostgreSQL.
	Detail database.Row `json:"detail"`
}

// ResetGenerator restarts the generator of table at start. The steps are:
// check the table exists, locate its generator, reset it and read the
// new value back. The read-back is best-effort.
func (w *Workflows) ResetGenerator(ctx context.Context, table string, start int64, db string) (*ResetResult, error) {
	if err := w.router.Policy().CheckMaintenance(policy.IntentResetGenerator, false); err != nil {
		return nil, err
	}
	if start < 1 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "start value must be at least 1, got %d", start)
	}

	t, err := w.resolve(ctx, table, db)
	if err != nil {
		return nil, err
	}
	fields := w.fields("reset_generator", t)

	gen, err := w.locate(ctx, t, policy.IntentResetGenerator)
	if err != nil {
		w.log.WarnWith("generator reset aborted", err, fields)
		return nil, err
	}
	fields["generator"] = gen.Name

	if _, err := w.run(ctx, t, t.dl.ResetGenerator(t.table, gen, start), policy.IntentResetGenerator, false); err != nil {
		w.log.ErrorWith("generator reset failed", err, fields)
		return nil, err
	}

	res := &ResetResult{
		Table:      t.table,
		Database:   t.desc.Name,
		Backend:    t.desc.Backend,
		Generator:  gen.Name,
		Column:     gen.Column,
		ResetValue: start,
	}

	current, err := w.run(ctx, t, t.dl.CurrentGenerator(t.table, gen), policy.IntentResetGenerator, false)
	if err != nil {
		res.Current = Verification{Err: err}
		w.log.WarnWith("generator reset not verified", err, fields)
	} else if v, ok := nextValue(first(current.Rows)); ok {
		res.Current = Verification{Value: v, Known: true}
	} else {
		res.Current = Verification{Err: errs.New(errs.ErrKindNotFound, "generator value not reported")}
	}

	fields["start"] = start
	w.log.InfoWith("generator reset", fields)
	return res, nil
}

// GeneratorStatus reports the generator of table without changing it.
func (w *Workflows) GeneratorStatus(ctx context.Context, table, db string) (*StatusResult, error) {
	t, err := w.resolve(ctx, table, db)
	if err != nil {
		return nil, err
	}

	gen, err := w.locate(ctx, t, policy.IntentStatement)
	if err != nil {
		return nil, err
	}

	res, err := w.run(ctx, t, t.dl.GeneratorStatus(t.table, gen), policy.IntentStatement, false)
	if err != nil {
		return nil, err
	}
	row := first(res.Rows)
	if row == nil {
		return nil, errs.Newf(errs.ErrKindTableNotFound, "table %q not found", t.table).In(t.desc.Name)
	}

	next, _ := nextValue(row)
	return &StatusResult{
		Table:     t.table,
		Database:  t.desc.Name,
		Backend:   t.desc.Backend,
		Generator: gen.Name,
		Column:    gen.Column,
		NextValue: next,
		Detail:    row,
	}, nil
}

// locate checks that the table exists and finds its generator.
func (w *Workflows) locate(ctx context.Context, t target, intent policy.Intent) (database.Generator, error) {
	exists, err := w.run(ctx, t, t.dl.TableExists(t.table), intent, false)
	if err != nil {
		return database.Generator{}, err
	}
	if len(exists.Rows) == 0 {
		return database.Generator{}, errs.Newf(errs.ErrKindTableNotFound,
			"table %q does not exist", t.table).In(t.desc.Name)
	}

	located, err := w.run(ctx, t, t.dl.LocateGenerator(t.table), intent, false)
	if err != nil {
		return database.Generator{}, err
	}
	gen, ok := database.GeneratorFromRow(first(located.Rows))
	if !ok {
		return database.Generator{}, errs.Newf(errs.ErrKindUnsupportedOperation,
			"table %q has no auto-increment column or sequence", t.table).In(t.desc.Name)
	}
	return gen, nil
}
