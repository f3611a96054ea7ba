// Package config loads the tendril command configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/tendril/pkg/adapters/process"
	"github.com/aretw0/tendril/pkg/domain"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "TENDRIL_CONFIG"

// DefaultPath is used when neither a flag nor EnvConfig names a file.
const DefaultPath = "tendril.yaml"

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the full command configuration.
type Config struct {
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFormat       string        `yaml:"log_format" json:"log_format"`
	FallbackTopic   string        `yaml:"fallback_topic" json:"fallback_topic"`
	EscalationTopic string        `yaml:"escalation_topic" json:"escalation_topic"`
	LockTTL         time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	TickInterval    time.Duration `yaml:"tick_interval" json:"tick_interval"`
	Metrics         bool          `yaml:"metrics" json:"metrics"`

	// LLMRouting classifies input with the completion command instead of keywords.
	LLMRouting bool `yaml:"llm_routing" json:"llm_routing"`

	// Completion and Saver are optional external commands.
	Completion process.Config `yaml:"completion" json:"completion"`
	Saver      process.Config `yaml:"saver" json:"saver"`

	HTTP  HTTPConfig  `yaml:"http" json:"http"`
	MCP   MCPConfig   `yaml:"mcp" json:"mcp"`
	Store StoreConfig `yaml:"store" json:"store"`
}

// HTTPConfig configures the REST server.
type HTTPConfig struct {
	Port         int `yaml:"port" json:"port"`
	MaxInputSize int `yaml:"max_input_size" json:"max_input_size"`
}

// MCPConfig configures the MCP server's SSE transport.
type MCPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// StoreConfig selects and configures the snapshot store.
type StoreConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
	// PIIPatterns are regular expressions masked before saving.
	PIIPatterns []string `yaml:"pii_patterns" json:"pii_patterns"`
}

// RedisConfig configures the Redis store and locker.
type RedisConfig struct {
	Address  string        `yaml:"address" json:"address"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "text",
		FallbackTopic:   domain.DefaultFallbackTopic,
		EscalationTopic: domain.DefaultEscalationTopic,
		LockTTL:         30 * time.Second,
		TickInterval:    time.Second,
		Metrics:         true,
		HTTP:            HTTPConfig{Port: 8080, MaxInputSize: 4096},
		MCP:             MCPConfig{Port: 8090},
		Store: StoreConfig{
			Type:  StoreMemory,
			Redis: RedisConfig{Address: "localhost:6379"},
		},
	}
}

// Path resolves the config file: the explicit path, then EnvConfig, then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file yields the defaults
// unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store.Type {
	case StoreMemory, StoreRedis:
	default:
		return domain.NewConfigError("config", "unknown store type %q", c.Store.Type)
	}
	if c.Store.Type == StoreRedis && c.Store.Redis.Address == "" {
		return domain.NewConfigError("config", "redis store needs an address")
	}
	if c.HTTP.Port < 0 || c.MCP.Port < 0 {
		return domain.NewConfigError("config", "ports must not be negative")
	}
	if c.LockTTL < 0 || c.TickInterval < 0 || c.Store.Redis.TTL < 0 {
		return domain.NewConfigError("config", "durations must not be negative")
	}
	if c.LLMRouting && !c.Completion.Enabled() {
		return domain.NewConfigError("config", "llm routing needs a completion command")
	}
	if c.Completion.Timeout < 0 || c.Saver.Timeout < 0 {
		return domain.NewConfigError("config", "command timeouts must not be negative")
	}
	return nil
}
