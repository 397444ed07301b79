package tools

import (
	"context"
	"fmt"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/router"
	"github.com/koustreak/sqlgate/internal/schema"
)

// ExecuteQuery runs one caller statement through the policy gate. Row
// results are capped; other statements report the affected row count.
func (g *Gateway) ExecuteQuery(ctx context.Context, args QueryArgs) (*Response, error) {
	res, err := g.router.Execute(ctx, router.QueryRequest{
		Statement: args.Query,
		Args:      args.Params,
		Named:     args.Named,
		Database:  args.Database,
	})
	if err != nil {
		return nil, err
	}

	// Write verbs report affected rows unless they returned rows (RETURNING).
	if !database.ReturnsRows(database.Verb(args.Query)) && len(res.Columns) == 0 {
		return g.respondFor(res, map[string]any{"rows_affected": res.RowsAffected}, int(res.RowsAffected),
			fmt.Sprintf("%d rows affected", res.RowsAffected)), nil
	}

	msg := fmt.Sprintf("query returned %d rows", res.Total)
	if res.Capped {
		msg = fmt.Sprintf("result capped at %d rows (total %d)", len(res.Rows), res.Total)
	}
	resp := g.respondFor(res, res.Rows, len(res.Rows), msg)
	resp.Total = res.Total
	resp.Capped = res.Capped
	return resp, nil
}

// ListTables lists the tables of one database.
func (g *Gateway) ListTables(ctx context.Context, args DatabaseArgs) (*Response, error) {
	res, err := g.catalogQuery(ctx, args.Database, func(d database.Dialect) database.Statement {
		return d.ListTables()
	})
	if err != nil {
		return nil, err
	}
	return g.respondFor(res, res.Rows, len(res.Rows),
		fmt.Sprintf("%d tables in %s", len(res.Rows), res.Database)), nil
}

// DescribeTable reports the columns of a table.
func (g *Gateway) DescribeTable(ctx context.Context, args TableArgs) (*Response, error) {
	res, err := g.catalogQuery(ctx, args.Database, func(d database.Dialect) database.Statement {
		return d.DescribeTable(args.Table)
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, errs.Newf(errs.ErrKindTableNotFound, "table %q does not exist", args.Table).In(res.Database)
	}

	info := schema.FromRows(args.Table, res.Rows)
	return g.respondFor(res, info, len(info.Columns),
		fmt.Sprintf("table %s has %d columns", args.Table, len(info.Columns))), nil
}
