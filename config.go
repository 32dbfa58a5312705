package codecontinue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/codecontinue/default"
)

// Config represents the user's codecontinue configuration.
type Config struct {
	Version    int              `json:"version" toml:"version"`
	Generation GenerationConfig `json:"generation" toml:"generation"`
	Context    ContextConfig    `json:"context" toml:"context"`
	Editor     EditorConfig     `json:"editor" toml:"editor"`
	Logging    LoggingConfig    `json:"logging" toml:"logging"`
}

// GenerationConfig holds settings for the completion endpoint.
type GenerationConfig struct {
	Endpoint    string   `json:"endpoint" toml:"endpoint"`
	APIKey      string   `json:"api_key" toml:"api_key"`
	Model       string   `json:"model" toml:"model"`
	TimeoutMs   int      `json:"timeout_ms" toml:"timeout_ms"`
	Temperature float64  `json:"temperature" toml:"temperature"`
	MaxTokens   int      `json:"max_tokens" toml:"max_tokens"`
	Stop        []string `json:"stop,omitempty" toml:"stop"`
}

// ContextConfig controls when completions fire and how much text they see.
type ContextConfig struct {
	MaxContextLines  int      `json:"max_context_lines" toml:"max_context_lines"`
	RateLimitMs      int      `json:"rate_limit_ms" toml:"rate_limit_ms"`
	TriggerLanguages []string `json:"trigger_languages" toml:"trigger_languages"`
	// RedactSecrets masks credential values in the prompt before it is sent.
	RedactSecrets bool `json:"redact_secrets" toml:"redact_secrets"`
}

// EditorConfig holds settings the editor plugin applies on its side.
type EditorConfig struct {
	DisableDefaultInlineSuggest bool `json:"disable_default_inline_suggest" toml:"disable_default_inline_suggest"`
}

// LoggingConfig holds diagnostic output settings.
type LoggingConfig struct {
	EnableLogging bool `json:"enable_logging" toml:"enable_logging"`
}

// Timeout returns the per-request timeout.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// RateLimit returns the minimum interval between requests for one document.
func (c ContextConfig) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

// ConfigDir returns the config directory path.
// Resolution order: $CODECONTINUE_CONFIG_DIR > $XDG_CONFIG_HOME/codecontinue > ~/.config/codecontinue
func ConfigDir() string {
	if dir := os.Getenv("CODECONTINUE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "codecontinue")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "codecontinue-config")
	}
	return filepath.Join(home, ".config", "codecontinue")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("codecontinue: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom loads the config file at path. Keys missing from the file
// keep their default values; a missing file yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Non-positive values make no sense for these; fall back to defaults.
	d := DefaultConfig()
	if cfg.Generation.TimeoutMs <= 0 {
		cfg.Generation.TimeoutMs = d.Generation.TimeoutMs
	}
	if cfg.Generation.MaxTokens <= 0 {
		cfg.Generation.MaxTokens = d.Generation.MaxTokens
	}
	if cfg.Context.MaxContextLines <= 0 {
		cfg.Context.MaxContextLines = d.Context.MaxContextLines
	}
	if cfg.Context.RateLimitMs < 0 {
		cfg.Context.RateLimitMs = d.Context.RateLimitMs
	}

	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveEndpoint(cfg) == "" {
		warnings = append(warnings, "generation endpoint is not configured; set CODECONTINUE_ENDPOINT or generation.endpoint")
	}
	if ResolveModel(cfg) == "" {
		warnings = append(warnings, "generation model is not configured; set CODECONTINUE_MODEL or generation.model")
	}
	if len(cfg.Context.TriggerLanguages) == 0 {
		warnings = append(warnings, "context.trigger_languages is empty; automatic completions will never fire")
	}
	return warnings
}

// ResolveEndpoint returns the completion endpoint URL.
// Priority: $CODECONTINUE_ENDPOINT env > config value.
func ResolveEndpoint(cfg *Config) string {
	if url := os.Getenv("CODECONTINUE_ENDPOINT"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.Endpoint
	}
	return ""
}

// ResolveAPIKey returns the completion API key.
// Priority: $CODECONTINUE_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("CODECONTINUE_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveModel returns the model identifier.
// Priority: $CODECONTINUE_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("CODECONTINUE_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// Masked returns a copy of cfg that is safe to send to the editor.
func (cfg *Config) Masked() *Config {
	out := *cfg
	out.Generation.Stop = append([]string(nil), cfg.Generation.Stop...)
	out.Context.TriggerLanguages = append([]string(nil), cfg.Context.TriggerLanguages...)
	if key := strings.TrimSpace(out.Generation.APIKey); key != "" {
		out.Generation.APIKey = "********"
	}
	return &out
}
