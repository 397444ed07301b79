package database

import (
	"github.com/koustreak/sqlgate/internal/errs"
)

// RowScanner is the subset of *sql.Rows needed by ScanRows.
type RowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanRows reads every row of rows into a Result, keyed by column name.
// Values pass through NormalizeValue.
//
// The returned Rows slice is always non-nil. ScanRows does not close rows;
// the caller owns that (usually via defer).
func ScanRows(rows RowScanner) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	res := &Result{Columns: columns, Rows: make([]Row, 0)}

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = NormalizeValue(dest[i])
		}
		res.Rows = append(res.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return res, nil
}
