package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/router"
)

// exportDocument is the JSON body written to the export bucket.
type exportDocument struct {
	Database     string           `json:"database"`
	DatabaseType database.Backend `json:"database_type"`
	Query        string           `json:"query"`
	Columns      []string         `json:"columns"`
	Rows         []database.Row   `json:"rows"`
	Total        int              `json:"total"`
	Capped       bool             `json:"capped"`
	ExportedAt   time.Time        `json:"exported_at"`
}

// ExportResult is the data of export_query.
type ExportResult struct {
	Object    *filestore.ObjectInfo `json:"object"`
	URL       string                `json:"url"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// ExportQuery runs a row-returning statement and uploads the capped result
// as JSON to the export bucket. The response carries a presigned URL.
func (g *Gateway) ExportQuery(ctx context.Context, args QueryArgs) (*Response, error) {
	if g.store == nil {
		return nil, errs.New(errs.ErrKindUnsupportedOperation,
			"query export is not configured (set EXPORT_ENDPOINT)")
	}
	if verb := database.Verb(args.Query); verb != "" && !database.ReturnsRows(verb) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s statements return no rows to export", verb)
	}

	res, err := g.router.Execute(ctx, router.QueryRequest{
		Statement: args.Query,
		Args:      args.Params,
		Named:     args.Named,
		Database:  args.Database,
	})
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	body, err := json.Marshal(exportDocument{
		Database:     res.Database,
		DatabaseType: res.Backend,
		Query:        args.Query,
		Columns:      res.Columns,
		Rows:         res.Rows,
		Total:        res.Total,
		Capped:       res.Capped,
		ExportedAt:   now,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "encode export", err).In(res.Database)
	}

	key := exportKey(res.Database, now)
	fields := map[string]any{"database": res.Database, "bucket": g.export.Bucket, "key": key}

	info, err := g.store.PutObject(ctx, g.export.Bucket, key, bytes.NewReader(body), int64(len(body)), filestore.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"database": res.Database,
			"rows":     strconv.Itoa(len(res.Rows)),
		},
	})
	if err != nil {
		g.log.ErrorWith("export upload failed", err, fields)
		return nil, err
	}

	url, err := g.store.PresignGetURL(ctx, g.export.Bucket, key, g.export.URLTTL)
	if err != nil {
		g.log.ErrorWith("export presign failed", err, fields)
		return nil, err
	}

	fields["bytes"] = len(body)
	g.log.InfoWith("query exported", fields)

	resp := g.respondFor(res, ExportResult{
		Object:    info,
		URL:       url,
		ExpiresAt: now.Add(g.export.URLTTL),
	}, len(res.Rows), fmt.Sprintf("exported %d rows to %s/%s", len(res.Rows), g.export.Bucket, key))
	resp.Total = res.Total
	resp.Capped = res.Capped
	return resp, nil
}

func exportKey(db string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%s.json", db, t.UTC().Format("20060102T150405.000Z"))
}
