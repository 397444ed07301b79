package tools

import (
	"context"
	"time"

	"github.com/koustreak/sqlgate/internal/errs"
)

// Tool describes one callable tool.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON schema of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one argument.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Default     any       `json:"default,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

const (
	ToolListDatabases            = "list_databases"
	ToolGetDatabaseInfo          = "get_database_info"
	ToolCheckConnections         = "check_db_connections"
	ToolGetStatistics            = "get_db_statistics"
	ToolGetCurrentEnvironment    = "get_current_environment"
	ToolExecuteQuery             = "execute_query"
	ToolExportQuery              = "export_query"
	ToolListTables               = "list_tables"
	ToolDescribeTable            = "describe_table"
	ToolResetAutoIncrement       = "reset_auto_increment"
	ToolCheckAutoIncrementStatus = "check_auto_increment_status"
	ToolTruncateTable            = "truncate_table"
)

var (
	databaseProp = Property{Type: "string", Description: "Logical database name (defaults to the default database)"}
	tableProp    = Property{Type: "string", Description: "Table name"}
	queryProps   = map[string]Property{
		"query":         {Type: "string", Description: "SQL statement"},
		"params":        {Type: "array", Description: "Positional parameters", Items: &Property{Type: "string", Description: "Parameter value"}},
		"named_params":  {Type: "object", Description: "Named parameters referenced as @name (PostgreSQL only)"},
		"database_name": databaseProp,
	}
)

type handler func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error)

type entry struct {
	tool   Tool
	handle handler
}

// entries is the catalog in presentation order.
var entries = []entry{
	{
		tool: Tool{
			Name:        ToolListDatabases,
			Description: "List every configured database with its connection status",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			if err := decode(args, &struct{}{}); err != nil {
				return nil, err
			}
			return g.ListDatabases(ctx)
		},
	},
	{
		tool: Tool{
			Name:        ToolGetDatabaseInfo,
			Description: "Show the configuration and status of one database",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"database_name": {Type: "string", Description: "Logical database name"}},
				Required:   []string{"database_name"},
			},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a DatabaseInfoArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.GetDatabaseInfo(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolCheckConnections,
			Description: "Connect any missing pools and ping every database",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			if err := decode(args, &struct{}{}); err != nil {
				return nil, err
			}
			return g.CheckConnections(ctx)
		},
	},
	{
		tool: Tool{
			Name:        ToolGetStatistics,
			Description: "Report the table count and size of a database",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{"database_name": databaseProp}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a DatabaseArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.GetStatistics(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolGetCurrentEnvironment,
			Description: "Show the environment, its allowed statements and the safety settings",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			if err := decode(args, &struct{}{}); err != nil {
				return nil, err
			}
			return g.GetCurrentEnvironment(ctx)
		},
	},
	{
		tool: Tool{
			Name:        ToolExecuteQuery,
			Description: "Run a SQL statement under the safety policy; results are capped",
			InputSchema: InputSchema{Type: "object", Properties: queryProps, Required: []string{"query"}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a QueryArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.ExecuteQuery(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolExportQuery,
			Description: "Run a query and upload the capped result as JSON to the export bucket",
			InputSchema: InputSchema{Type: "object", Properties: queryProps, Required: []string{"query"}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a QueryArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.ExportQuery(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolListTables,
			Description: "List the tables of a database",
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{"database_name": databaseProp}},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a DatabaseArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.ListTables(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolDescribeTable,
			Description: "Describe the columns of a table",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"table": tableProp, "database_name": databaseProp},
				Required:   []string{"table"},
			},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a TableArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.DescribeTable(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolResetAutoIncrement,
			Description: "Reset the auto-increment value or sequence of a table (local and test only)",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"table":         tableProp,
					"start_value":   {Type: "number", Description: "Next value to generate", Default: 1},
					"database_name": databaseProp,
				},
				Required: []string{"table"},
			},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			a := ResetArgs{StartValue: 1}
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.ResetAutoIncrement(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolCheckAutoIncrementStatus,
			Description: "Show the auto-increment value or sequence state of a table",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"table": tableProp, "database_name": databaseProp},
				Required:   []string{"table"},
			},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a TableArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.CheckAutoIncrementStatus(ctx, a)
		},
	},
	{
		tool: Tool{
			Name:        ToolTruncateTable,
			Description: "Delete every row of a table and reset its auto-increment (local only, requires confirm=true)",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"table":         tableProp,
					"confirm":       {Type: "boolean", Description: "Must be true to proceed"},
					"database_name": databaseProp,
				},
				Required: []string{"table", "confirm"},
			},
		},
		handle: func(ctx context.Context, g *Gateway, args map[string]any) (*Response, error) {
			var a TruncateArgs
			if err := decode(args, &a); err != nil {
				return nil, err
			}
			return g.TruncateTable(ctx, a)
		},
	},
}

// Catalog lists the available tools. export_query is listed only when an
// export store is configured.
func (g *Gateway) Catalog() []Tool {
	tools := make([]Tool, 0, len(entries))
	for _, e := range entries {
		if e.tool.Name == ToolExportQuery && !g.ExportEnabled() {
			continue
		}
		tools = append(tools, e.tool)
	}
	return tools
}

// Call runs the tool called name with loosely typed args. Failures are
// returned as *errs.Error; Call never panics on bad input.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (*Response, error) {
	var h handler
	for _, e := range entries {
		if e.tool.Name == name {
			h = e.handle
			break
		}
	}
	if h == nil {
		return nil, errs.Newf(errs.ErrKindNotFound, "unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	resp, err := h(ctx, g, args)
	fields := map[string]any{"tool": name, "elapsed_ms": time.Since(start).Milliseconds()}
	if err != nil {
		fields["kind"] = errs.KindOf(err).String()
		g.log.WarnWith("tool call failed", err, fields)
		return nil, err
	}
	g.log.InfoWith("tool call", fields)
	return resp, nil
}
