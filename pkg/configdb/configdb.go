// Package configdb provides a read-only typed view over the KDUMP table in
// the switch configuration database (a Redis instance). The database is the
// source of truth for desired state; this package never writes to it.
package configdb

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultAddr is where the config database listens on the switch.
	DefaultAddr = "localhost:6379"

	// configDBIndex is the redis database holding CONFIG_DB tables.
	configDBIndex = 4

	// kdumpConfigKey is the hash carrying the KDUMP table's config entry.
	kdumpConfigKey = "KDUMP|config"
)

// Hardcoded fallbacks applied field-by-field when the database is unreachable
// or a field is absent.
const (
	DefaultMemory   = "0M-2G:256M,2G-4G:320M,4G-8G:384M,8G-:448M"
	DefaultNumDumps = 3
)

// Desired is the declarative kdump configuration sampled fresh on every
// invocation; nothing is cached across runs.
type Desired struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	MemorySpec string `json:"memory" yaml:"memory"`
	NumDumps   int    `json:"num_dumps" yaml:"num_dumps"`
	Remote     bool   `json:"remote" yaml:"remote"`
	SSHString  string `json:"ssh_string,omitempty" yaml:"ssh_string,omitempty"`
	SSHPath    string `json:"ssh_path,omitempty" yaml:"ssh_path,omitempty"`
}

// Accessor reads the KDUMP table. Connection and table-fetch failures are
// swallowed per-field; missing fields never raise.
type Accessor struct {
	rdb *redis.Client
	log *slog.Logger
}

func New(addr string, log *slog.Logger) *Accessor {
	if log == nil {
		log = slog.Default()
	}
	return &Accessor{
		rdb: redis.NewClient(&redis.Options{Addr: addr, DB: configDBIndex}),
		log: log,
	}
}

// Close releases the database connection.
func (a *Accessor) Close() error {
	return a.rdb.Close()
}

// DesiredConfig samples the current desired configuration, substituting
// defaults for anything unavailable.
func (a *Accessor) DesiredConfig(ctx context.Context) Desired {
	fields, err := a.rdb.HGetAll(ctx, kdumpConfigKey).Result()
	if err != nil {
		a.log.Debug("config database unavailable, using defaults", "error", err)
		fields = nil
	}
	return desiredFromFields(fields)
}

func desiredFromFields(fields map[string]string) Desired {
	d := Desired{
		MemorySpec: DefaultMemory,
		NumDumps:   DefaultNumDumps,
	}
	if v, ok := fields["enabled"]; ok {
		d.Enabled = parseTrue(v)
	}
	if v, ok := fields["memory"]; ok && v != "" {
		d.MemorySpec = v
	}
	if v, ok := fields["num_dumps"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			d.NumDumps = n
		}
	}
	if v, ok := fields["remote"]; ok {
		d.Remote = parseTrue(v)
	}
	d.SSHString = fields["ssh_string"]
	d.SSHPath = fields["ssh_path"]
	return d
}

// parseTrue matches the store's convention: the literal "true",
// case-insensitively. Anything else, including absence, is false.
func parseTrue(v string) bool {
	return strings.EqualFold(v, "true")
}
