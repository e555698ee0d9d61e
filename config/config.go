package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arandu-app/arandu-core/paths"
	"github.com/arandu-app/arandu-core/process"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultBinary          = "copilot"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultQueueCapacity   = 64
	DefaultProtocolVersion = 1

	// BinaryEnvVar overrides the configured agent binary.
	BinaryEnvVar = "COPILOT_PATH"
)

// DefaultArgs are passed to the agent binary when none are configured.
var DefaultArgs = []string{"--acp", "--stdio"}

// AgentConfig describes how to launch the agent subprocess.
type AgentConfig struct {
	Binary string            `yaml:"binary,omitempty"` // Executable name or path
	Args   []string          `yaml:"args,omitempty"`   // Command-line arguments
	Env    map[string]string `yaml:"env,omitempty"`    // Extra environment for the child
}

// Config holds the connection manager configuration
type Config struct {
	Agent              AgentConfig    `yaml:"agent"`
	RequestTimeout     *Duration      `yaml:"request_timeout,omitempty"`     // Per-request response deadline (default 30s)
	QueueCapacity      int            `yaml:"queue_capacity,omitempty"`      // Outbound line queue size (default 64)
	ProtocolVersion    int            `yaml:"protocol_version,omitempty"`    // Sent in initialize (default 1)
	ClientCapabilities map[string]any `yaml:"client_capabilities,omitempty"` // Sent in initialize (default {})
	MCPServers         []MCPServer    `yaml:"mcp_servers,omitempty"`         // Passed to session/new and session/load
	Debug              bool           `yaml:"debug,omitempty"`               // Enable debug logging

	mu       sync.RWMutex
	filePath string
}

// Duration is a wrapper around time.Duration that implements YAML unmarshaling
// from human-readable strings like "30s", "2m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns a config with every default applied and no backing file.
func Default() *Config {
	cfg := &Config{}
	cfg.ensureInitialized()
	return cfg
}

// Load reads the config from the default location, or returns defaults if it
// doesn't exist
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file yields the defaults,
// bound to path so a later Save creates it.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.ensureInitialized()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Must happen before Validate() since Validate() only reads
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// ensureInitialized fills unset fields with defaults. Not thread-safe; only
// called while the Config is still private to the loader.
func (c *Config) ensureInitialized() {
	if c.Agent.Binary == "" {
		c.Agent.Binary = DefaultBinary
	}
	if c.Agent.Args == nil {
		c.Agent.Args = append([]string(nil), DefaultArgs...)
	}
	if c.RequestTimeout == nil || c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = &Duration{DefaultRequestTimeout}
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = DefaultProtocolVersion
	}
	if c.ClientCapabilities == nil {
		c.ClientCapabilities = map[string]any{}
	}
	if c.MCPServers == nil {
		c.MCPServers = []MCPServer{}
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.RequestTimeout != nil && c.RequestTimeout.Duration < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout.Duration)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative, got %d", c.QueueCapacity)
	}
	if c.ProtocolVersion < 0 {
		return fmt.Errorf("protocol_version must not be negative, got %d", c.ProtocolVersion)
	}

	seen := make(map[string]bool)
	for _, s := range c.MCPServers {
		if s.Name == "" {
			return fmt.Errorf("mcp server with empty name found")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate mcp server: %s", s.Name)
		}
		seen[s.Name] = true
		if s.Command == "" {
			return fmt.Errorf("mcp server %s has empty command", s.Name)
		}
	}

	return nil
}

// Save writes the config to its file path
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// FilePath returns the path the config is loaded from and saved to.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// GetAgent returns a copy of the agent launch profile with the COPILOT_PATH
// override applied.
func (c *Config) GetAgent() AgentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agent := AgentConfig{
		Binary: c.Agent.Binary,
		Args:   append([]string(nil), c.Agent.Args...),
		Env:    maps.Clone(c.Agent.Env),
	}
	if override := os.Getenv(BinaryEnvVar); override != "" {
		agent.Binary = override
	}
	if agent.Binary == "" {
		agent.Binary = DefaultBinary
	}
	return agent
}

// SetAgent replaces the agent launch profile
func (c *Config) SetAgent(agent AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = agent
}

// SpawnConfig builds the process launch description for an agent rooted at cwd.
func (c *Config) SpawnConfig(cwd string) process.SpawnConfig {
	agent := c.GetAgent()

	var env []string
	keys := make([]string, 0, len(agent.Env))
	for k := range agent.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+agent.Env[k])
	}

	return process.SpawnConfig{
		Binary: agent.Binary,
		Args:   agent.Args,
		Dir:    cwd,
		Env:    env,
	}
}

// GetRequestTimeout returns how long a request waits for its response
func (c *Config) GetRequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.RequestTimeout == nil || c.RequestTimeout.Duration <= 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout.Duration
}

// SetRequestTimeout sets how long a request waits for its response
func (c *Config) SetRequestTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RequestTimeout = &Duration{d}
}

// GetQueueCapacity returns the outbound queue size per connection
func (c *Config) GetQueueCapacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.QueueCapacity <= 0 {
		return DefaultQueueCapacity
	}
	return c.QueueCapacity
}

// GetProtocolVersion returns the protocol version sent during the handshake
func (c *Config) GetProtocolVersion() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ProtocolVersion <= 0 {
		return DefaultProtocolVersion
	}
	return c.ProtocolVersion
}

// GetClientCapabilities returns a copy of the capabilities sent during the
// handshake. Never nil.
func (c *Config) GetClientCapabilities() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps := maps.Clone(c.ClientCapabilities)
	if caps == nil {
		caps = map[string]any{}
	}
	return caps
}

// GetDebug returns whether debug logging is enabled
func (c *Config) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}

// SetDebug enables or disables debug logging
func (c *Config) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug = enabled
}
