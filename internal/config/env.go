package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// descriptorJSON is the wire form of a database entry in DATABASES,
// DOCKER_DATABASES and the YAML file.
type descriptorJSON struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	User        string `json:"user" yaml:"user"`
	Password    string `json:"password" yaml:"password"`
	Database    string `json:"database" yaml:"database"`
	Description string `json:"description" yaml:"description"`
}

func (j descriptorJSON) descriptor(docker bool) (database.Descriptor, error) {
	name := strings.TrimSpace(j.Name)
	if name == "" {
		return database.Descriptor{}, errors.New("name is required")
	}

	typ := j.Type
	if typ == "" {
		typ = string(database.BackendMySQL)
	}
	backend, err := database.ParseBackend(typ)
	if err != nil {
		return database.Descriptor{}, fmt.Errorf("database %q: %w", name, err)
	}

	return database.Descriptor{
		Name:        name,
		Backend:     backend,
		Host:        j.Host,
		Port:        j.Port,
		User:        j.User,
		Password:    j.Password,
		Database:    j.Database,
		Docker:      docker,
		Description: j.Description,
	}, nil
}

// applyEnv overlays process environment variables on c.
func (c *Config) applyEnv() error {
	if err := c.applyLegacyDatabase(); err != nil {
		return err
	}
	if err := c.applyDatabaseList("DATABASES", false); err != nil {
		return err
	}
	if err := c.applyDatabaseList("DOCKER_DATABASES", true); err != nil {
		return err
	}

	if v := os.Getenv("DEFAULT_DATABASE"); v != "" {
		c.DefaultDatabase = strings.TrimSpace(v)
	}

	p := envParser{}
	p.intVar("MAX_ROWS", &c.Safety.MaxRows)
	p.boolVar("ENABLE_DELETE", &c.Safety.EnableDelete)
	p.boolVar("ENABLE_DROP", &c.Safety.EnableDrop)
	p.boolVar("ENABLE_TRUNCATE", &c.Safety.EnableTruncate)
	p.boolVar("ENABLE_MAINTENANCE_OPS", &c.Safety.EnableMaintenanceOps)
	if v, ok := os.LookupEnv("ALLOWED_DBS"); ok {
		c.Safety.AllowedDBs = splitList(v)
	}

	p.int32Var("DB_POOL_MAX_CONNS", &c.Pool.MaxConns)
	p.durationVar("DB_CONNECT_TIMEOUT", &c.Pool.ConnectTimeout)

	p.strVar("LOG_LEVEL", &c.Log.Level)
	p.strVar("LOG_FORMAT", &c.Log.Format)
	p.strVar("SQLGATE_ADDR", &c.Server.Addr)

	p.strVar("EXPORT_ENDPOINT", &c.Export.Endpoint)
	p.strVar("EXPORT_ACCESS_KEY", &c.Export.AccessKey)
	p.strVar("EXPORT_SECRET_KEY", &c.Export.SecretKey)
	p.strVar("EXPORT_BUCKET", &c.Export.Bucket)
	p.boolVar("EXPORT_USE_SSL", &c.Export.UseSSL)
	p.strVar("EXPORT_REGION", &c.Export.Region)
	p.durationVar("EXPORT_URL_TTL", &c.Export.URLTTL)

	return p.err
}

// applyLegacyDatabase reads the single-database DB_* variables.
func (c *Config) applyLegacyDatabase() error {
	host := os.Getenv("DB_HOST")
	if host == "" && os.Getenv("DB_TYPE") == "" {
		return nil
	}

	raw := descriptorJSON{
		Name:     os.Getenv("DB_NAME"),
		Type:     os.Getenv("DB_TYPE"),
		Host:     host,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: os.Getenv("DB_DATABASE"),
	}
	if raw.Name == "" {
		raw.Name = defaultDatabaseName
	}

	p := envParser{}
	p.intVar("DB_PORT", &raw.Port)
	if p.err != nil {
		return p.err
	}

	return c.mergeDescriptors([]descriptorJSON{raw}, false, "DB_* variables")
}

func (c *Config) applyDatabaseList(key string, docker bool) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	var list []descriptorJSON
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		return errs.Wrap(errs.ErrKindConfigurationInvalid, fmt.Sprintf("%s is not a valid JSON array", key), err)
	}
	return c.mergeDescriptors(list, docker, key)
}

// envParser reads typed variables and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = errs.Wrap(errs.ErrKindConfigurationInvalid, fmt.Sprintf("invalid %s=%q", key, value), err)
	}
}

func (p *envParser) strVar(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *envParser) boolVar(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = b
}

func (p *envParser) intVar(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *envParser) int32Var(key string, dst *int32) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = int32(n)
}

// durationVar accepts Go durations ("10s") or a bare number of seconds.
func (p *envParser) durationVar(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
