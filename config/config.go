// Package config loads FeedMesh configuration from an optional YAML file and
// FEEDMESH_* environment variables, with sensible defaults for a single-node
// setup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/feedmesh/core"
)

// Config is the full FeedMesh configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the websocket transport server.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	Path              string        `mapstructure:"path"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig configures session handlers.
type SessionConfig struct {
	PhaseTimeout time.Duration `mapstructure:"phase_timeout"`
	Capabilities []string      `mapstructure:"capabilities"`
	MessageTypes []string      `mapstructure:"message_types"`
}

// DirectoryConfig selects the agent directory backend.
type DirectoryConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
	Redis   struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
}

// AuditConfig selects the audit log backend.
type AuditConfig struct {
	Backend string `mapstructure:"backend"` // memory | postgres
	DSN     string `mapstructure:"dsn"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

// Load reads configuration from the given file (optional, "" skips the file)
// and the environment. Environment variables use the FEEDMESH_ prefix with
// underscores for nesting, e.g. FEEDMESH_SERVER_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FEEDMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "/a2a")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("session.phase_timeout", 30*time.Second)
	v.SetDefault("session.capabilities", []string{"messaging", "agent_discovery"})
	v.SetDefault("session.message_types", []string{"text", "json", "binary", "control"})

	v.SetDefault("directory.backend", "memory")
	v.SetDefault("directory.redis.addr", "localhost:6379")
	v.SetDefault("directory.redis.ttl", 5*time.Minute)

	v.SetDefault("audit.backend", "memory")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks enum fields and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.Directory.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown directory backend %q", c.Directory.Backend))
	}
	switch c.Audit.Backend {
	case "memory":
	case "postgres":
		if c.Audit.DSN == "" {
			errs = append(errs, fmt.Errorf("audit backend postgres requires a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit backend %q", c.Audit.Backend))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	for _, raw := range c.Session.Capabilities {
		if !core.Capability(raw).Valid() {
			errs = append(errs, fmt.Errorf("unknown capability %q", raw))
		}
	}
	for _, raw := range c.Session.MessageTypes {
		if !core.MessageType(raw).Valid() {
			errs = append(errs, fmt.Errorf("unknown message type %q", raw))
		}
	}

	return errors.Join(errs...)
}

// SessionCapabilities converts the configured capability names.
func (c *Config) SessionCapabilities() []core.Capability {
	out := make([]core.Capability, 0, len(c.Session.Capabilities))
	for _, raw := range c.Session.Capabilities {
		out = append(out, core.Capability(raw))
	}
	return out
}

// SessionMessageTypes converts the configured message type names.
func (c *Config) SessionMessageTypes() []core.MessageType {
	out := make([]core.MessageType, 0, len(c.Session.MessageTypes))
	for _, raw := range c.Session.MessageTypes {
		out = append(out, core.MessageType(raw))
	}
	return out
}
