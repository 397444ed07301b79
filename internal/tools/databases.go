package tools

import (
	"context"
	"fmt"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/policy"
	"github.com/koustreak/sqlgate/internal/registry"
	"golang.org/x/sync/errgroup"
)

// EnvironmentInfo is the data of get_current_environment.
type EnvironmentInfo struct {
	Environment       policy.Environment `json:"environment"`
	ReadOnly          bool               `json:"read_only"`
	AllowedOperations []string           `json:"allowed_operations"`
	DefaultDatabase   string             `json:"default_database"`
	Safety            policy.Toggles     `json:"safety"`
}

// ListDatabases reports every configured database and its pool state.
func (g *Gateway) ListDatabases(ctx context.Context) (*Response, error) {
	statuses := g.registry.List()
	return g.respond(statuses, len(statuses),
		fmt.Sprintf("%d databases configured", len(statuses))), nil
}

// GetDatabaseInfo reports one configured database.
func (g *Gateway) GetDatabaseInfo(ctx context.Context, args DatabaseInfoArgs) (*Response, error) {
	st, err := g.registry.Describe(args.Database)
	if err != nil {
		return nil, err
	}
	resp := g.respond(st, 1, fmt.Sprintf("database %s (%s)", st.Name, st.State))
	resp.Database = st.Name
	resp.DatabaseType = st.Type
	return resp, nil
}

// CheckConnections initialises any missing pools, then pings every live
// pool. A failed ping marks that database failed in the report only.
func (g *Gateway) CheckConnections(ctx context.Context) (*Response, error) {
	g.registry.Initialize(ctx)
	statuses := g.registry.List()

	var eg errgroup.Group
	for i := range statuses {
		if !statuses[i].Connected {
			continue
		}
		eg.Go(func() error {
			st := &statuses[i]
			pool, _, err := g.router.Resolve(ctx, st.Name)
			if err == nil {
				err = pool.Ping(ctx)
			}
			if err != nil {
				st.State = registry.StateFailed
				st.Connected = false
				st.Error = err.Error()
				g.log.WarnWith("connection check failed", err, map[string]any{"database": st.Name})
			}
			return nil
		})
	}
	_ = eg.Wait()

	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}
	return g.respond(statuses, len(statuses),
		fmt.Sprintf("%d of %d databases connected", connected, len(statuses))), nil
}

// GetStatistics reports the table count and size of one database.
func (g *Gateway) GetStatistics(ctx context.Context, args DatabaseArgs) (*Response, error) {
	res, err := g.catalogQuery(ctx, args.Database, func(d database.Dialect) database.Statement {
		return d.Statistics()
	})
	if err != nil {
		return nil, err
	}

	stats := database.Row{"table_count": int64(0)}
	if len(res.Rows) > 0 {
		stats = res.Rows[0]
	}
	tables, _ := database.AsInt64(stats["table_count"])
	return g.respondFor(res, stats, 1,
		fmt.Sprintf("database %s has %d tables", res.Database, tables)), nil
}

// GetCurrentEnvironment reports the fixed environment and safety toggles.
func (g *Gateway) GetCurrentEnvironment(ctx context.Context) (*Response, error) {
	engine := g.router.Policy()
	env := engine.Environment()
	info := EnvironmentInfo{
		Environment:       env.Name,
		ReadOnly:          env.ReadOnly,
		AllowedOperations: env.AllowedOperations,
		DefaultDatabase:   g.registry.DefaultName(),
		Safety:            engine.Toggles(),
	}
	return g.respond(info, 1, fmt.Sprintf("current environment: %s", env.Name)), nil
}
