// Package cli wires the configuration, registry, policy, router and tools
// into the sqlgate commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/logger"
)

// Version is set at build time.
var Version = "dev"

// runner holds the state shared by every command.
type runner struct {
	configFile string
	envDir     string
	logLevel   string

	// openers replaces the backend adapters; nil means the real ones.
	openers map[database.Backend]database.Opener

	cfg *config.Config
	log *logger.Logger
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the sqlgate command tree.
func NewRootCommand() *cobra.Command {
	return newRoot(&runner{})
}

func newRoot(r *runner) *cobra.Command {
	root := &cobra.Command{
		Use:           "sqlgate",
		Short:         "Policy-gated SQL gateway for MySQL and PostgreSQL",
		Long:          `sqlgate exposes a set of database tools over HTTP. Every statement is checked against the environment's safety policy before it reaches a database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// PersistentPreRunE loads the configuration before any command runs.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.initializeConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&r.configFile, "config", "", "Path to a YAML configuration file. (Env: SQLGATE_CONFIG)")
	root.PersistentFlags().StringVar(&r.envDir, "env-dir", "", "Directory holding the .env files. Defaults to the working directory.")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "Logging level (trace, debug, info, warn, error). (Env: LOG_LEVEL)")

	root.AddCommand(
		newServeCommand(r),
		newCheckCommand(r),
		newQueryCommand(r),
		newToolsCommand(r),
	)
	return root
}

// initializeConfig loads and validates the configuration, then builds the
// logger. A production environment is refused here, before any pool exists.
func (r *runner) initializeConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{File: r.configFile, Dir: r.envDir})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if r.logLevel != "" {
		cfg.Log.Level = r.logLevel
	}

	r.cfg = cfg
	r.log = logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: "rfc3339",
		Output:     cmd.ErrOrStderr(),
	})
	r.log.InfoWith("configuration loaded", map[string]any{
		"environment": string(cfg.Environment),
		"databases":   len(cfg.Databases),
		"default":     cfg.DefaultDatabase,
		"env_files":   cfg.EnvFiles,
	})
	return nil
}
