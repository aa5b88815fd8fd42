package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type        string `koanf:"type"` // sqlite | memory
	Path        string `koanf:"path"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type DedupConfig struct {
	Enabled bool `koanf:"enabled"`

	// DefaultWindow bounds how far back duplicate checks look for
	// matches from the same client.
	DefaultWindow time.Duration `koanf:"default_window"`

	// CrossClientWindow is the tighter recency bound applied to
	// semantic matches written by other clients.
	CrossClientWindow time.Duration `koanf:"cross_client_window"`

	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxAge        time.Duration `koanf:"max_age"`

	// IdentityPath is the file holding this installation's client id.
	IdentityPath string `koanf:"identity_path"`

	// EntityIDFields overrides the payload fields probed for semantic
	// keys. Empty means the built-in list.
	EntityIDFields []string `koanf:"entity_id_fields"`
}

type LogConfig struct {
	// MaxEventHistorySize caps how many events the log retains.
	// 0 disables retention.
	MaxEventHistorySize int `koanf:"max_event_history_size"`

	// MaxStorageSize is an advisory byte budget surfaced through the
	// stats endpoint; the log never enforces it.
	MaxStorageSize int64 `koanf:"max_storage_size"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "sqlite":
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required when database.type is sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q (must be sqlite or memory)", c.Database.Type)
	}

	if c.Dedup.DefaultWindow <= 0 {
		return fmt.Errorf("dedup.default_window must be > 0")
	}
	if c.Dedup.CrossClientWindow <= 0 {
		return fmt.Errorf("dedup.cross_client_window must be > 0")
	}
	if c.Dedup.SweepInterval <= 0 {
		return fmt.Errorf("dedup.sweep_interval must be > 0")
	}
	if c.Dedup.MaxAge <= 0 {
		return fmt.Errorf("dedup.max_age must be > 0")
	}
	if strings.TrimSpace(c.Dedup.IdentityPath) == "" {
		return fmt.Errorf("dedup.identity_path is required")
	}

	if c.Log.MaxEventHistorySize < 0 {
		return fmt.Errorf("log.max_event_history_size must be >= 0")
	}
	if c.Log.MaxStorageSize < 0 {
		return fmt.Errorf("log.max_storage_size must be >= 0")
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                8080,
		"server.host":                "127.0.0.1",
		"server.max_body_size_mb":    1,
		"server.mode":                "release",
		"database.type":              "sqlite",
		"database.path":              "eventcore.db",
		"database.auto_migrate":      true,
		"dedup.enabled":              true,
		"dedup.default_window":       "5s",
		"dedup.cross_client_window":  "30s",
		"dedup.sweep_interval":       "1h",
		"dedup.max_age":              "24h",
		"dedup.identity_path":        "eventcore.client-id",
		"log.max_event_history_size": 10000,
		"log.max_storage_size":       0,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("EVENTCORE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "EVENTCORE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
