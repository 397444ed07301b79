// Package config assembles the gateway configuration from env files, an
// optional YAML file and process environment variables. It is read once at
// startup; any error it returns is fatal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/policy"
	"go.yaml.in/yaml/v3"
)

const (
	defaultAddr            = "127.0.0.1:8765"
	defaultShutdownTimeout = 10 * time.Second
	defaultExportURLTTL    = 15 * time.Minute
	defaultDatabaseName    = "default"
)

// Config is the complete gateway configuration.
type Config struct {
	Environment     policy.Environment
	Databases       []database.Descriptor
	DefaultDatabase string
	Safety          policy.Toggles
	Pool            database.PoolOptions
	Log             LogConfig
	Server          ServerConfig
	Export          filestore.Config

	// EnvFiles lists the env files that were found and loaded.
	EnvFiles []string
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Options control where Load looks for its sources.
type Options struct {
	// File is an optional YAML config file. Empty means $SQLGATE_CONFIG.
	File string

	// Dir is where .env files are looked up. Empty means the working directory.
	Dir string
}

// Database returns the descriptor called name.
func (c *Config) Database(name string) (database.Descriptor, bool) {
	for _, d := range c.Databases {
		if d.Name == name {
			return d, true
		}
	}
	return database.Descriptor{}, false
}

// Load reads every configuration layer and validates the result.
//
// Layers, later ones winning per database name or per field:
//  1. YAML file
//  2. legacy DB_* variables
//  3. DATABASES (JSON array)
//  4. DOCKER_DATABASES (JSON array, marked as Docker origin)
//
// Selecting the production environment fails before anything else is read.
func Load(opts Options) (*Config, error) {
	env, err := policy.ParseEnvironment(os.Getenv("APP_ENV"))
	if err != nil {
		return nil, err
	}
	if env == policy.EnvProduction {
		return nil, errProduction()
	}

	cfg := &Config{
		Environment: env,
		Safety:      policy.DefaultToggles(),
		Pool:        database.DefaultPoolOptions(),
		Log:         LogConfig{Level: "info", Format: "json"},
		Server:      ServerConfig{Addr: defaultAddr, ShutdownTimeout: defaultShutdownTimeout},
		Export:      filestore.Config{Provider: filestore.ProviderMinIO, URLTTL: defaultExportURLTTL},
	}

	cfg.EnvFiles = loadEnvFiles(opts.Dir, env)

	// An env file may set APP_ENV itself.
	if env, err = policy.ParseEnvironment(os.Getenv("APP_ENV")); err != nil {
		return nil, err
	}
	if env == policy.EnvProduction {
		return nil, errProduction()
	}
	cfg.Environment = env

	file := opts.File
	if file == "" {
		file = os.Getenv("SQLGATE_CONFIG")
	}
	if file != "" {
		if err := cfg.applyFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func errProduction() error {
	return errs.New(errs.ErrKindConfigurationInvalid,
		"APP_ENV=production is refused: this gateway must never run against production databases")
}

// loadEnvFiles loads .env.<env> and then .env. Variables already present in
// the process environment are never overwritten; missing files are skipped.
func loadEnvFiles(dir string, env policy.Environment) []string {
	var loaded []string
	for _, name := range []string{".env." + string(env), ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}

// --- YAML layer ---

type fileConfig struct {
	Databases       []descriptorJSON `yaml:"databases"`
	DefaultDatabase string           `yaml:"default_database"`
	Safety          *policy.Toggles  `yaml:"safety"`
	Pool            *struct {
		MaxConns        int32         `yaml:"max_conns"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
		MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	} `yaml:"pool"`
	Log    *LogConfig    `yaml:"log"`
	Server *ServerConfig `yaml:"server"`
	Export *struct {
		Endpoint  string        `yaml:"endpoint"`
		AccessKey string        `yaml:"access_key"`
		SecretKey string        `yaml:"secret_key"`
		Bucket    string        `yaml:"bucket"`
		UseSSL    bool          `yaml:"use_ssl"`
		Region    string        `yaml:"region"`
		URLTTL    time.Duration `yaml:"url_ttl"`
	} `yaml:"export"`
}

func (c *Config) applyFile(path string) error {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return errs.Newf(errs.ErrKindConfigurationInvalid, "config file %s: only .yaml and .yml files are allowed", cleanPath)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return errs.Wrap(errs.ErrKindConfigurationInvalid, fmt.Sprintf("failed to read config file %s", cleanPath), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &fc); err != nil {
		return errs.Wrap(errs.ErrKindConfigurationInvalid, fmt.Sprintf("failed to parse config file %s", cleanPath), err)
	}

	if err := c.mergeDescriptors(fc.Databases, false, "config file"); err != nil {
		return err
	}
	if fc.DefaultDatabase != "" {
		c.DefaultDatabase = fc.DefaultDatabase
	}
	if fc.Safety != nil {
		c.Safety = *fc.Safety
		if c.Safety.MaxRows == 0 {
			c.Safety.MaxRows = policy.DefaultMaxRows
		}
	}
	if p := fc.Pool; p != nil {
		if p.MaxConns != 0 {
			c.Pool.MaxConns = p.MaxConns
		}
		if p.ConnectTimeout != 0 {
			c.Pool.ConnectTimeout = p.ConnectTimeout
		}
		if p.MaxConnLifetime != 0 {
			c.Pool.MaxConnLifetime = p.MaxConnLifetime
		}
		if p.MaxConnIdleTime != 0 {
			c.Pool.MaxConnIdleTime = p.MaxConnIdleTime
		}
	}
	if l := fc.Log; l != nil {
		if l.Level != "" {
			c.Log.Level = l.Level
		}
		if l.Format != "" {
			c.Log.Format = l.Format
		}
	}
	if s := fc.Server; s != nil {
		if s.Addr != "" {
			c.Server.Addr = s.Addr
		}
		if s.ShutdownTimeout != 0 {
			c.Server.ShutdownTimeout = s.ShutdownTimeout
		}
	}
	if e := fc.Export; e != nil {
		c.Export.Endpoint = e.Endpoint
		c.Export.AccessKey = e.AccessKey
		c.Export.SecretKey = e.SecretKey
		c.Export.Bucket = e.Bucket
		c.Export.UseSSL = e.UseSSL
		c.Export.Region = e.Region
		if e.URLTTL != 0 {
			c.Export.URLTTL = e.URLTTL
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(sub[1]); value != "" {
			return value
		}
		return sub[2]
	})
}

// --- descriptor merging ---

// mergeDescriptors adds descs, replacing existing descriptors with the same
// name in place so that load order is preserved.
func (c *Config) mergeDescriptors(descs []descriptorJSON, docker bool, source string) error {
	for i, raw := range descs {
		d, err := raw.descriptor(docker)
		if err != nil {
			return errs.Wrap(errs.ErrKindConfigurationInvalid,
				fmt.Sprintf("%s: database entry %d", source, i+1), err)
		}

		replaced := false
		for j := range c.Databases {
			if c.Databases[j].Name == d.Name {
				c.Databases[j] = d
				replaced = true
				break
			}
		}
		if !replaced {
			c.Databases = append(c.Databases, d)
		}
	}
	return nil
}

// Validate checks the invariants every later component relies on.
func (c *Config) Validate() error {
	if c.Environment == policy.EnvProduction {
		return errProduction()
	}
	if len(c.Databases) == 0 {
		return errs.New(errs.ErrKindConfigurationInvalid,
			"no databases configured (set DB_HOST, DATABASES or DOCKER_DATABASES)")
	}

	seen := make(map[string]bool, len(c.Databases))
	for _, d := range c.Databases {
		if seen[d.Name] {
			return errs.Newf(errs.ErrKindConfigurationInvalid, "database %q is configured twice", d.Name)
		}
		seen[d.Name] = true

		var missing []string
		if d.Host == "" {
			missing = append(missing, "host")
		}
		if d.User == "" {
			missing = append(missing, "user")
		}
		if d.Database == "" {
			missing = append(missing, "database")
		}
		if len(missing) > 0 {
			return errs.Newf(errs.ErrKindConfigurationInvalid,
				"database %q is missing required fields: %s", d.Name, strings.Join(missing, ", ")).In(d.Name)
		}
		if _, err := database.ParseBackend(string(d.Backend)); err != nil {
			return errs.Wrap(errs.ErrKindConfigurationInvalid, fmt.Sprintf("database %q", d.Name), err).In(d.Name)
		}
	}

	if c.DefaultDatabase == "" {
		c.DefaultDatabase = c.Databases[0].Name
	}
	if !seen[c.DefaultDatabase] {
		return errs.Newf(errs.ErrKindConfigurationInvalid,
			"default database %q is not configured", c.DefaultDatabase)
	}

	if c.Safety.MaxRows <= 0 {
		return errs.Newf(errs.ErrKindConfigurationInvalid, "MAX_ROWS must be positive, got %d", c.Safety.MaxRows)
	}
	if c.Pool.MaxConns <= 0 {
		return errs.Newf(errs.ErrKindConfigurationInvalid, "DB_POOL_MAX_CONNS must be positive, got %d", c.Pool.MaxConns)
	}

	if c.Export.Enabled() && c.Export.Bucket == "" {
		return errs.New(errs.ErrKindConfigurationInvalid, "EXPORT_BUCKET is required when EXPORT_ENDPOINT is set")
	}
	return nil
}
