package types

import (
	"errors"
	"fmt"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DefaultAlias names the database used when neither a call option nor the
// router selects one.
const DefaultAlias = "default"

// DefaultUnarchiveWindow is how far a dependent's archive timestamp may
// drift from the root's and still be restored with it.
const DefaultUnarchiveWindow = 60 * time.Second

// Config holds everything the CLI needs to build an Archiver.
type Config struct {
	Log             LogConfig                 `mapstructure:"log" yaml:"log"`
	Databases       map[string]DatabaseConfig `mapstructure:"databases" yaml:"databases" validate:"dive"`
	Router          map[string]string         `mapstructure:"router" yaml:"router,omitempty"`
	UnarchiveWindow time.Duration             `mapstructure:"unarchive_window" yaml:"unarchive_window" validate:"gte=0"`
	Schema          []EntityType              `mapstructure:"schema" yaml:"schema,omitempty" validate:"dive"`
}

// DatabaseConfig describes one connection pool.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver" validate:"required"`
	DSN          string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty" validate:"gte=0"`
}

// LogConfig selects the zap level and encoding, and an optional rotated
// log file.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// Config validation errors.
var (
	ErrNoDatabases     = errors.New("at least one database must be configured")
	ErrDriverUnknown   = errors.New("unknown database driver")
	ErrRouterAlias     = errors.New("router names an unconfigured database alias")
	ErrDefaultDatabase = errors.New("no default database configured")
	ErrInvalidConfig   = errors.New("invalid config")
)

var knownDrivers = map[string]bool{
	DriverSQLite:   true,
	DriverPostgres: true,
	DriverMySQL:    true,
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if len(c.Databases) == 0 {
		return ErrNoDatabases
	}
	for alias, db := range c.Databases {
		if db.Driver != "" && !knownDrivers[db.Driver] {
			return fmt.Errorf("%w: %q for %s", ErrDriverUnknown, db.Driver, alias)
		}
	}
	if _, ok := c.Databases[DefaultAlias]; !ok && len(c.Databases) > 1 {
		return ErrDefaultDatabase
	}
	for entity, alias := range c.Router {
		if _, ok := c.Databases[alias]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrRouterAlias, entity, alias)
		}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return nil
}

// Window returns the configured unarchive window, or the default.
func (c Config) Window() time.Duration {
	if c.UnarchiveWindow <= 0 {
		return DefaultUnarchiveWindow
	}
	return c.UnarchiveWindow
}

// DefaultDatabaseAlias returns the alias unrouted entities use among
// dbs: "default" when present, otherwise the only alias.
func DefaultDatabaseAlias[T any](dbs map[string]T) string {
	if _, ok := dbs[DefaultAlias]; ok || len(dbs) != 1 {
		return DefaultAlias
	}
	for alias := range dbs {
		return alias
	}
	return DefaultAlias
}
