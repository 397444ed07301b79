// Package policy decides whether a statement or maintenance operation may
// run. The Engine holds no mutable state: every decision is a function of
// the request, the environment and the safety toggles.
package policy

import (
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// DefaultMaxRows is the row cap used when none is configured.
const DefaultMaxRows = 1000

// Toggles are the process-wide safety switches.
type Toggles struct {
	MaxRows              int      `json:"max_rows" yaml:"max_rows"`
	EnableDelete         bool     `json:"enable_delete" yaml:"enable_delete"`
	EnableDrop           bool     `json:"enable_drop" yaml:"enable_drop"`
	EnableTruncate       bool     `json:"enable_truncate" yaml:"enable_truncate"`
	EnableMaintenanceOps bool     `json:"enable_maintenance_ops" yaml:"enable_maintenance_ops"`
	AllowedDBs           []string `json:"allowed_dbs,omitempty" yaml:"allowed_dbs"`
}

// DefaultToggles returns every destructive switch off.
func DefaultToggles() Toggles {
	return Toggles{MaxRows: DefaultMaxRows}
}

// Intent classifies what a request is for.
type Intent int

const (
	IntentStatement      Intent = iota // caller-supplied SQL
	IntentResetGenerator               // auto-increment / sequence reset
	IntentTruncate                     // truncate-table workflow
)

func (i Intent) String() string {
	switch i {
	case IntentResetGenerator:
		return "reset_generator"
	case IntentTruncate:
		return "truncate"
	default:
		return "statement"
	}
}

// Request is the input to Evaluate.
type Request struct {
	Statement string
	Database  string
	Intent    Intent
	Confirmed bool
}

// Engine evaluates requests against one environment and one set of toggles.
type Engine struct {
	env     EnvironmentPolicy
	toggles Toggles
}

// New builds the engine. Selecting production is a fatal misconfiguration.
func New(env Environment, toggles Toggles) (*Engine, error) {
	if env == EnvProduction {
		return nil, errs.New(errs.ErrKindConfigurationInvalid,
			"the production environment is not permitted for this gateway")
	}
	return newEngine(env, toggles)
}

func newEngine(env Environment, toggles Toggles) (*Engine, error) {
	p, ok := PolicyFor(env)
	if !ok {
		return nil, errs.Newf(errs.ErrKindConfigurationInvalid, "unknown environment %q", env)
	}
	if toggles.MaxRows <= 0 {
		return nil, errs.Newf(errs.ErrKindConfigurationInvalid, "max rows must be positive, got %d", toggles.MaxRows)
	}
	toggles.AllowedDBs = append([]string(nil), toggles.AllowedDBs...)
	return &Engine{env: p, toggles: toggles}, nil
}

// Environment returns the active environment policy.
func (e *Engine) Environment() EnvironmentPolicy {
	p, _ := PolicyFor(e.env.Name)
	return p
}

// Toggles returns a copy of the safety toggles.
func (e *Engine) Toggles() Toggles {
	t := e.toggles
	t.AllowedDBs = append([]string(nil), t.AllowedDBs...)
	return t
}

// Evaluate accepts or rejects req. A nil error means the statement may run.
//
// Maintenance gates are checked first, then the target database, the verb
// allow-list and finally the destructive-keyword filters. A bare TRUNCATE
// statement is refused outside the truncate intent.
func (e *Engine) Evaluate(req Request) error {
	switch req.Intent {
	case IntentResetGenerator, IntentTruncate:
		if err := e.checkMaintenance(req); err != nil {
			return err
		}
	}

	verb := database.Verb(req.Statement)
	if verb == "" {
		return errs.New(errs.ErrKindInvalidInput, "statement is empty")
	}

	if err := e.CheckDatabase(req.Database); err != nil {
		return err
	}

	if !e.env.Allows(verb) {
		return errs.Newf(errs.ErrKindOperationNotAllowed,
			"%s is not allowed in the %s environment (allowed: %s)",
			verb, e.env.Name, strings.Join(e.env.AllowedOperations, ", "))
	}

	if !e.toggles.EnableDrop && containsDropOrTruncate(req.Statement) {
		return errs.New(errs.ErrKindDestructiveOperationBlocked,
			"DROP/TRUNCATE statements are blocked (ENABLE_DROP=false)")
	}

	// TRUNCATE is only reachable through the truncate workflow and its gates.
	if verb == "TRUNCATE" && req.Intent != IntentTruncate {
		return errs.New(errs.ErrKindMaintenanceDisabled,
			"TRUNCATE statements must use the truncate_table operation (confirmation and ENABLE_TRUNCATE apply)")
	}

	if verb == "DELETE" && !e.toggles.EnableDelete {
		return errs.New(errs.ErrKindDestructiveOperationBlocked,
			"DELETE statements are blocked (ENABLE_DELETE=false)")
	}

	return nil
}

// CheckMaintenance applies only the maintenance gates of intent. Workflows
// call it before touching the database.
func (e *Engine) CheckMaintenance(intent Intent, confirmed bool) error {
	return e.checkMaintenance(Request{Intent: intent, Confirmed: confirmed})
}

func (e *Engine) checkMaintenance(req Request) error {
	switch req.Intent {
	case IntentTruncate:
		if !req.Confirmed {
			return errs.New(errs.ErrKindConfirmationRequired,
				"truncate requires explicit confirmation (confirm=true)")
		}
		if e.env.Name != EnvLocal {
			return errs.Newf(errs.ErrKindMaintenanceDisabled,
				"truncate is only allowed in the local environment, current environment is %s", e.env.Name)
		}
		if !e.toggles.EnableTruncate {
			return errs.New(errs.ErrKindMaintenanceDisabled,
				"truncate is disabled (ENABLE_TRUNCATE=false)")
		}
	case IntentResetGenerator:
		if e.env.Name == EnvProduction {
			return errs.New(errs.ErrKindMaintenanceDisabled,
				"maintenance operations are not allowed in the production environment")
		}
		if !e.toggles.EnableMaintenanceOps {
			return errs.New(errs.ErrKindMaintenanceDisabled,
				"maintenance operations are disabled (ENABLE_MAINTENANCE_OPS=false)")
		}
	}
	return nil
}

// CheckDatabase rejects databases outside AllowedDBs when that list is set.
func (e *Engine) CheckDatabase(name string) error {
	if len(e.toggles.AllowedDBs) == 0 {
		return nil
	}
	for _, db := range e.toggles.AllowedDBs {
		if db == name {
			return nil
		}
	}
	return errs.Newf(errs.ErrKindOperationNotAllowed,
		"database %q is not in the allowed list (%s)", name, strings.Join(e.toggles.AllowedDBs, ", ")).In(name)
}

// Cap truncates rows to MaxRows. total is the row count before capping.
// Capping a result that is already within the limit is a no-op.
func (e *Engine) Cap(rows []database.Row) (capped []database.Row, total int, wasCapped bool) {
	total = len(rows)
	if total <= e.toggles.MaxRows {
		return rows, total, false
	}
	return rows[:e.toggles.MaxRows], total, true
}

// containsDropOrTruncate is a plain substring test; identifiers such as
// TRUNCATED_LOG match too.
func containsDropOrTruncate(sql string) bool {
	upper := strings.ToUpper(sql)
	return strings.Contains(upper, "DROP") || strings.Contains(upper, "TRUNCATE")
}
