package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/filestore/minio"
	"github.com/koustreak/sqlgate/internal/policy"
	"github.com/koustreak/sqlgate/internal/registry"
	"github.com/koustreak/sqlgate/internal/router"
	"github.com/koustreak/sqlgate/internal/tools"
)

// app is one assembled gateway.
type app struct {
	registry *registry.Registry
	gateway  *tools.Gateway
	store    filestore.Store
}

// build assembles the gateway from the loaded configuration. No database is
// contacted; pools are created by Initialize or by the first routed call.
// The export store is connected only when withExport is set and configured.
func (r *runner) build(ctx context.Context, withExport bool) (*app, error) {
	engine, err := policy.New(r.cfg.Environment, r.cfg.Safety)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(registry.Options{
		Descriptors: r.cfg.Databases,
		Default:     r.cfg.DefaultDatabase,
		Openers:     r.openers,
		Pool:        r.cfg.Pool,
		Logger:      r.log,
	})
	if err != nil {
		return nil, err
	}

	a := &app{registry: reg}

	if withExport && r.cfg.Export.Enabled() {
		store, err := minio.New(ctx, r.cfg.Export)
		if err != nil {
			return nil, err
		}
		a.store = store
		r.log.InfoWith("export store connected", map[string]any{
			"endpoint": r.cfg.Export.Endpoint,
			"bucket":   r.cfg.Export.Bucket,
		})
	}

	a.gateway = tools.New(tools.Options{
		Registry: reg,
		Router:   router.New(reg, engine, r.log),
		Store:    a.store,
		Export:   r.cfg.Export,
		Logger:   r.log,
	})
	return a, nil
}

// close releases every pool and the export store.
func (a *app) close() error {
	err := a.registry.Shutdown()
	if a.store != nil {
		err = errors.Join(err, a.store.Close())
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
