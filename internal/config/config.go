package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	hirelinesdk "hireline/sdk/go"
)

// FileName is the workspace config file.
const FileName = "hireline.yml"

// Reconcile strategies applied after a failed optimistic mutation.
const (
	ReconcileResync   = "resync"
	ReconcileRollback = "rollback"
)

// Config models hireline.yml.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Sync struct {
		Reconcile string `yaml:"reconcile"`
		Schedules *bool  `yaml:"schedules"`
	} `yaml:"sync"`
}

// IncludeSchedules reports whether bulk loads also fetch schedules. Defaults to true.
func (c *Config) IncludeSchedules() bool {
	return c.Sync.Schedules == nil || *c.Sync.Schedules
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with hl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Sync.Reconcile {
	case ReconcileResync, ReconcileRollback:
	default:
		return fmt.Errorf("config.sync.reconcile must be %q or %q, got %q", ReconcileResync, ReconcileRollback, c.Sync.Reconcile)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config.api.timeout must not be negative")
	}
	if u := c.API.BaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("config.api.base_url must be an http(s) url")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// EnvPath returns the .env path for a workspace.
func EnvPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys take defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Sync.Reconcile == "" {
		cfg.Sync.Reconcile = ReconcileResync
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveBaseURL picks the API origin: flag, then environment (including the
// workspace .env), then hireline.yml. Empty means same-origin.
func ResolveBaseURL(workspace, flagValue string, cfg *Config) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if v := hirelinesdk.ResolveBaseURL(); v != "" {
		return v, nil
	}
	env, err := godotenv.Read(EnvPath(workspace))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", EnvPath(workspace), err)
	}
	if v := strings.TrimSpace(env[hirelinesdk.BaseURLEnv]); v != "" {
		return v, nil
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.API.BaseURL), nil
	}
	return "", nil
}

const defaultTemplate = `api:
  # Origin of the Hireline API. Empty means same-origin.
  base_url: ""
  timeout: 10s

sync:
  # What to do when an optimistic status change is rejected:
  #   resync   reload everything for the current user
  #   rollback restore the previous status locally
  reconcile: resync
  schedules: true
`
