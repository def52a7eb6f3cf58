// Package config holds the process-wide reporter configuration. A Config is
// built once at startup and handed by pointer to every component; nothing in
// the core looks it up globally.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// PublishTransport selects how payloads reach the remote collector
type PublishTransport string

const (
	TransportHTTP  PublishTransport = "http"
	TransportRedis PublishTransport = "redis"
)

// IsValid checks if the transport is supported
func (t PublishTransport) IsValid() bool {
	return t == TransportHTTP || t == TransportRedis
}

const (
	DefaultWorkspaceDir   = "reports"
	DefaultPublishTimeout = 10 * time.Second
	DefaultRedisKey       = "op-reporter:payloads"
)

// Duration wraps time.Duration so it can be written as "10s" in TOML
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the reporter configuration
type Config struct {
	Disabled bool     `toml:"disabled"`
	Tags     []string `toml:"tags"`
	Tickets  []string `toml:"tickets"`
	Category string   `toml:"category"`

	// GeneratorSeed, when set, overrides any seed supplied by a trigger.
	GeneratorSeed *int64 `toml:"generator_seed"`

	ProjectAPIID   string `toml:"project_api_id"`
	ProjectVersion string `toml:"project_version"`
	Group          string `toml:"group"`
	// UID overrides the derived run UID
	UID string `toml:"uid"`

	Save            bool   `toml:"save"`
	WorkspaceDir    string `toml:"workspace_dir"`
	CompressPayload bool   `toml:"compress_payload"`

	Publish          bool             `toml:"publish"`
	PublishTransport PublishTransport `toml:"publish_transport"`
	PublishTimeout   Duration         `toml:"publish_timeout"`
	ServerURL        string           `toml:"server_url"`
	ServerAPIKey     string           `toml:"server_api_key"`
	RedisURL         string           `toml:"redis_url"`
	RedisKey         string           `toml:"redis_key"`
}

// Default returns a configuration with every optional field set to its default
func Default() *Config {
	return &Config{
		WorkspaceDir:     DefaultWorkspaceDir,
		PublishTransport: TransportHTTP,
		PublishTimeout:   Duration(DefaultPublishTimeout),
		RedisKey:         DefaultRedisKey,
	}
}

// Load reads a TOML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the enabled sinks have what they need
func (c *Config) Validate() error {
	if c.Save && c.WorkspaceDir == "" {
		return errors.New("workspace directory is required when saving payloads")
	}
	if !c.Publish {
		return nil
	}
	if !c.PublishTransport.IsValid() {
		return fmt.Errorf("invalid publish transport: %s. Must be one of: %s, %s",
			c.PublishTransport, TransportHTTP, TransportRedis)
	}
	switch c.PublishTransport {
	case TransportHTTP:
		if c.ServerURL == "" {
			return errors.New("server URL is required when publishing over http")
		}
	case TransportRedis:
		if c.RedisURL == "" {
			return errors.New("redis URL is required when publishing over redis")
		}
	}
	return nil
}

// Timeout returns the publish timeout, falling back to the default
func (c *Config) Timeout() time.Duration {
	if c.PublishTimeout <= 0 {
		return DefaultPublishTimeout
	}
	return time.Duration(c.PublishTimeout)
}

// Dispatching reports whether at least one sink is enabled
func (c *Config) Dispatching() bool {
	return c.Save || c.Publish
}

// RunUID returns the identifier grouping runs of the same category, project and
// version. A configured UID always wins; otherwise the value is derived
// deterministically from the three inputs.
func (c *Config) RunUID(category, projectID, version string) string {
	if c.UID != "" {
		return c.UID
	}
	name := strings.Join([]string{category, projectID, version}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
