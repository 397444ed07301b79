package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/sqlgate/internal/logger"
)

// Backend identifies the database engine behind a logical database.
type Backend string

const (
	BackendMySQL    Backend = "mysql"
	BackendPostgres Backend = "postgresql"
)

// ParseBackend normalises the backend names accepted in configuration.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return BackendMySQL, nil
	case "postgresql", "postgres", "pg":
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", s)
	}
}

// DefaultPort returns the conventional TCP port of the backend.
func (b Backend) DefaultPort() int {
	if b == BackendPostgres {
		return 5432
	}
	return 3306
}

// Descriptor describes one configured logical database.
// Descriptors are values and are never mutated after configuration is loaded.
type Descriptor struct {
	// Name is the unique key callers use to address this database.
	Name string

	Backend  Backend
	Host     string
	Port     int
	User     string
	Password string

	// Database is the backend-side database (schema) name.
	Database string

	// Docker marks descriptors that came from the Docker-origin list.
	Docker bool

	Description string
}

// Address returns host:port.
func (d Descriptor) Address() string {
	port := d.Port
	if port == 0 {
		port = d.Backend.DefaultPort()
	}
	return fmt.Sprintf("%s:%d", d.Host, port)
}

// PoolOptions holds the pool tuning shared by every backend.
type PoolOptions struct {
	MaxConns        int32         // hard cap on live connections; waiters queue without bound
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle
	ConnectTimeout  time.Duration // time limit for establishing a connection and the probe

	// Logger receives driver-level diagnostics. Nil disables them.
	Logger *logger.Logger
}

// DefaultPoolOptions returns the pool settings used when nothing is configured.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        10,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
