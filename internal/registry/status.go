package registry

import (
	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// ConnectionState is the pool state of one database.
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
	StateNotConnected ConnectionState = "not_connected"
)

// DatabaseStatus is a read-only projection of a descriptor and its pool.
// The password is never included.
type DatabaseStatus struct {
	Name        string           `json:"name"`
	Type        database.Backend `json:"type"`
	Host        string           `json:"host"`
	Port        int              `json:"port"`
	Database    string           `json:"database"`
	User        string           `json:"user"`
	Description string           `json:"description,omitempty"`
	Docker      bool             `json:"is_docker"`
	Default     bool             `json:"is_default"`
	State       ConnectionState  `json:"status"`
	Connected   bool             `json:"connected"`
	Error       string           `json:"error,omitempty"`
}

// List returns the status of every configured database in configuration order.
func (r *Registry) List() []DatabaseStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DatabaseStatus, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = r.statusLocked(d)
	}
	return out
}

// Describe returns the status of one database. It fails with
// UnknownDatabase when name is not configured.
func (r *Registry) Describe(name string) (DatabaseStatus, error) {
	if name == "" {
		name = r.defaultName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptor(name)
	if !ok {
		names := make([]string, len(r.descriptors))
		for i, desc := range r.descriptors {
			names[i] = desc.Name
		}
		return DatabaseStatus{}, errs.Newf(errs.ErrKindUnknownDatabase,
			"unknown database %q (configured: %v)", name, names).In(name)
	}
	return r.statusLocked(d), nil
}

func (r *Registry) statusLocked(d database.Descriptor) DatabaseStatus {
	port := d.Port
	if port == 0 {
		port = d.Backend.DefaultPort()
	}

	st := DatabaseStatus{
		Name:        d.Name,
		Type:        d.Backend,
		Host:        d.Host,
		Port:        port,
		Database:    d.Database,
		User:        d.User,
		Description: d.Description,
		Docker:      d.Docker,
		Default:     d.Name == r.defaultName,
		State:       StateNotConnected,
	}

	if _, ok := r.pools[d.Name]; ok {
		st.State = StateConnected
		st.Connected = true
	} else if err, failed := r.failures[d.Name]; failed {
		st.State = StateFailed
		st.Error = err.Error()
	}
	return st
}
