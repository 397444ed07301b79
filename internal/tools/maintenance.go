package tools

import (
	"context"
	"fmt"
)

// ResetAutoIncrement restarts the generator of a table.
func (g *Gateway) ResetAutoIncrement(ctx context.Context, args ResetArgs) (*Response, error) {
	res, err := g.maint.ResetGenerator(ctx, args.Table, args.StartValue, args.Database)
	if err != nil {
		return nil, err
	}
	resp := g.respond(res, 1, fmt.Sprintf("auto-increment of %s reset to %d (%s)", res.Table, res.ResetValue, res.Backend))
	resp.Database = res.Database
	resp.DatabaseType = res.Backend
	return resp, nil
}

// CheckAutoIncrementStatus reports the generator of a table.
func (g *Gateway) CheckAutoIncrementStatus(ctx context.Context, args TableArgs) (*Response, error) {
	res, err := g.maint.GeneratorStatus(ctx, args.Table, args.Database)
	if err != nil {
		return nil, err
	}
	resp := g.respond(res, 1, fmt.Sprintf("next auto-increment value of %s is %d", res.Table, res.NextValue))
	resp.Database = res.Database
	resp.DatabaseType = res.Backend
	return resp, nil
}

// TruncateTable deletes every row of a table and resets its generator.
func (g *Gateway) TruncateTable(ctx context.Context, args TruncateArgs) (*Response, error) {
	res, err := g.maint.Truncate(ctx, args.Table, args.Database, args.Confirm)
	if err != nil {
		return nil, err
	}
	resp := g.respond(res, 1, fmt.Sprintf("table %s truncated, %d rows deleted, auto-increment reset", res.Table, res.RowsDeleted))
	resp.Database = res.Database
	resp.DatabaseType = res.Backend
	return resp, nil
}
