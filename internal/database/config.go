package database

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupportedEngine is returned for a database type or driver that cannot
// be migrated. It is a configuration error and is never retried.
var ErrUnsupportedEngine = errors.New("unsupported database engine")

// Supported database/sql drivers
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config holds database connection configuration
type Config struct {
	Type     string `yaml:"type"` // postgresql, postgres, PostgreSQL or Postgres
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// LoadConfig resolves the configuration of a module. Variables named
// <MODULE>_DB_TYPE, _DB_NAME, _DB_USER, _DB_PASSWORD, _DB_HOST, _DB_PORT,
// _DB_DRIVER and _DB_SSLMODE override the values read from the module file.
func LoadConfig(module string, file Config) (Config, error) {
	return loadConfig(envPrefix(module), file)
}

func envPrefix(module string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(r.Replace(module)) + "_"
}

func loadConfig(prefix string, cfg Config) (Config, error) {
	overrides := []struct {
		name  string
		value *string
	}{
		{"DB_TYPE", &cfg.Type},
		{"DB_DRIVER", &cfg.Driver},
		{"DB_HOST", &cfg.Host},
		{"DB_PORT", &cfg.Port},
		{"DB_NAME", &cfg.Database},
		{"DB_USER", &cfg.User},
		{"DB_PASSWORD", &cfg.Password},
		{"DB_SSLMODE", &cfg.SSLMode},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(prefix + o.name); ok {
			*o.value = v
		}
	}

	if cfg.Type == "" {
		return Config{}, fmt.Errorf("%sDB_TYPE environment variable or database type is required", prefix)
	}
	if cfg.Database == "" {
		return Config{}, fmt.Errorf("%sDB_NAME environment variable or database name is required", prefix)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverPQ
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the engine kind and driver
func (c Config) Validate() error {
	switch c.Type {
	case "postgresql", "postgres", "PostgreSQL", "Postgres":
	default:
		return fmt.Errorf("%w: database type %q", ErrUnsupportedEngine, c.Type)
	}
	switch c.Driver {
	case DriverPQ, DriverPGX:
	default:
		return fmt.Errorf("%w: driver %q", ErrUnsupportedEngine, c.Driver)
	}
	return nil
}

// DSN returns a key/value connection string for the configured database
func (c Config) DSN() string {
	return c.dsn(c.Database)
}

func (c Config) dsn(database string) string {
	parts := []string{
		"host=" + quoteDSNValue(c.Host),
		"port=" + quoteDSNValue(c.Port),
		"user=" + quoteDSNValue(c.User),
	}
	if c.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(c.Password))
	}
	parts = append(parts,
		"dbname="+quoteDSNValue(database),
		"sslmode="+quoteDSNValue(c.SSLMode),
	)
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// String describes the target without the password
func (c Config) String() string {
	return fmt.Sprintf("%s://%s@%s:%s/%s", c.Driver, c.User, c.Host, c.Port, c.Database)
}
