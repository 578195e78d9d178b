package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	platformstrings "fleetbook/pkg/platform/strings"
)

// EnvPrefix namespaces environment overrides, e.g. FLEETBOOK_SERVER__ADDR.
const EnvPrefix = "FLEETBOOK_"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server     Server     `json:"server"`
	Database   Database   `json:"database"`
	Redis      Redis      `json:"redis"`
	Kafka      Kafka      `json:"kafka"`
	Logging    Logging    `json:"logging"`
	Allocation Allocation `json:"allocation"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `json:"addr"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	MetricsEnabled  bool          `json:"metrics_enabled"`
}

type Database struct {
	// Store selects the record store backend: "memory" or "postgres".
	Store        string        `json:"store"`
	DSN          string        `json:"dsn"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	ConnMaxLife  time.Duration `json:"conn_max_life"`
}

// Redis is optional; an empty URL disables the directory cache.
type Redis struct {
	URL          string        `json:"url"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// Kafka is optional; no brokers means audit events stay in memory.
type Kafka struct {
	Brokers     []string `json:"brokers"`
	AuditTopic  string   `json:"audit_topic"`
	ClientID    string   `json:"client_id"`
	CreateTopic bool     `json:"create_topic"`
}

type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Allocation struct {
	// Timezone decides which calendar day "today" is.
	Timezone    string        `json:"timezone"`
	TxTimeout   time.Duration `json:"tx_timeout"`
	AuditBuffer int           `json:"audit_buffer"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MetricsEnabled:  true,
		},
		Database: Database{
			Store:        StoreMemory,
			MaxOpenConns: 20,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			CacheTTL:     time.Hour,
		},
		Kafka: Kafka{
			AuditTopic: "fleetbook.audit.allocations",
			ClientID:   "fleetbook",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Allocation: Allocation{
			Timezone:    "UTC",
			TxTimeout:   5 * time.Second,
			AuditBuffer: 256,
		},
	}
}

// Load reads the optional config file at path, applies FLEETBOOK_ environment
// overrides, and validates the result. A missing file is not an error when
// path is empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = platformstrings.SplitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.store %q", c.Database.Store))
	}
	if _, err := c.Allocation.Location(); err != nil {
		errs = append(errs, fmt.Errorf("allocation.timezone: %w", err))
	}
	if c.Allocation.TxTimeout <= 0 {
		errs = append(errs, errors.New("allocation.tx_timeout must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("kafka.audit_topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone.
func (a Allocation) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(a.Timezone)
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
