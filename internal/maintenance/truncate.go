package maintenance

import (
	"context"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/policy"
)

// TruncateResult describes a completed truncation.
type TruncateResult struct {
	Table    string           `json:"table"`
	Database string           `json:"database"`
	Backend  database.Backend `json:"database_type"`

	// RowsDeleted is the row count taken just before truncating. It is 0
	// when that count could not be read; CountKnown tells the cases apart.
	RowsDeleted int64 `json:"rows_deleted"`
	CountKnown  bool  `json:"count_known"`

	GeneratorReset bool `json:"auto_increment_reset"`
}

// Truncate removes every row of table and restarts its generator.
// confirmed must be true; without it nothing is sent to the database.
func (w *Workflows) Truncate(ctx context.Context, table, db string, confirmed bool) (*TruncateResult, error) {
	if err := w.router.Policy().CheckMaintenance(policy.IntentTruncate, confirmed); err != nil {
		return nil, err
	}

	t, err := w.resolve(ctx, table, db)
	if err != nil {
		return nil, err
	}
	fields := w.fields("truncate", t)

	res := &TruncateResult{Table: t.table, Database: t.desc.Name, Backend: t.desc.Backend}

	counted, err := w.run(ctx, t, t.dl.CountRows(t.table), policy.IntentTruncate, true)
	if err != nil {
		w.log.WarnWith("row count before truncate failed", err, fields)
	} else if n, ok := database.AsInt64(first(counted.Rows)["row_count"]); ok {
		res.RowsDeleted = n
		res.CountKnown = true
	}

	if _, err := w.run(ctx, t, t.dl.Truncate(t.table), policy.IntentTruncate, true); err != nil {
		w.log.ErrorWith("truncate failed", err, fields)
		return nil, err
	}
	res.GeneratorReset = true

	fields["rows_deleted"] = res.RowsDeleted
	w.log.InfoWith("table truncated", fields)
	return res, nil
}
