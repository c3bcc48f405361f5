// Package config loads the settings of the tradebook binaries.
//
// Settings come, by increasing priority, from defaults, an optional config
// file (any format viper reads), .env files and TRADEBOOK_* environment
// variables. A nested key maps to the variable with dots replaced by
// underscores: store.dsn is TRADEBOOK_STORE_DSN.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables.
const EnvPrefix = "TRADEBOOK"

// Config is the complete configuration.
type Config struct {
	AssetManagerID int64   `mapstructure:"asset_manager_id"`
	Store          Store   `mapstructure:"store"`
	Log            Log     `mapstructure:"log"`
	RefData        RefData `mapstructure:"refdata"`
	Auth           Auth    `mapstructure:"auth"`
	Redis          Redis   `mapstructure:"redis"`
	Neo4j          Neo4j   `mapstructure:"neo4j"`
}

// Store selects the repository. The default is the SQLite file tradebook.db.
type Store struct {
	Driver       string        `mapstructure:"driver"` // memory, sqlite or postgres
	DSN          string        `mapstructure:"dsn"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// RefData locates the reference data service. An empty URL disables
// reference checks.
type RefData struct {
	URL   string        `mapstructure:"url"`
	TTL   time.Duration `mapstructure:"ttl"`
	Rate  float64       `mapstructure:"rate"` // requests per second
	Burst int           `mapstructure:"burst"`
}

// Auth holds the credentials used against the reference data service. An
// empty TokenURL disables authentication.
type Auth struct {
	TokenURL      string        `mapstructure:"token_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	RefreshPeriod time.Duration `mapstructure:"refresh_period"`
}

// Redis enables distributed locking when Addr is set.
type Redis struct {
	Addr       string        `mapstructure:"addr"`
	LockExpiry time.Duration `mapstructure:"lock_expiry"`
}

// Neo4j enables the lineage projection when URI is set.
type Neo4j struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

var defaults = map[string]any{
	"asset_manager_id":     int64(0),
	"store.driver":         "sqlite",
	"store.dsn":            "tradebook.db",
	"store.timeout":        10 * time.Second,
	"store.max_idle_conns": 0,
	"store.max_open_conns": 0,
	"log.level":            "info",
	"log.format":           "console",
	"refdata.url":          "",
	"refdata.ttl":          5 * time.Minute,
	"refdata.rate":         20.0,
	"refdata.burst":        20,
	"auth.token_url":       "",
	"auth.client_id":       "",
	"auth.client_secret":   "",
	"auth.username":        "",
	"auth.password":        "",
	"auth.refresh_period":  45 * time.Minute,
	"redis.addr":           "",
	"redis.lock_expiry":    10 * time.Second,
	"neo4j.uri":            "",
	"neo4j.username":       "",
	"neo4j.password":       "",
	"neo4j.database":       "",
}

// Load reads the configuration. path is an optional config file. envFiles
// are loaded into the environment without overriding it, ".env" if none is
// given; missing ones are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot load %s: %w", f, err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations of settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required by the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive, got %v", c.Store.Timeout)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	if c.Auth.TokenURL != "" && c.Auth.Username == "" {
		return errors.New("auth.username is required with auth.token_url")
	}
	return nil
}
