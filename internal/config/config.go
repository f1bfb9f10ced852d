package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

// Config holds the taxsearch API configuration.
type Config struct {
	HTTP       HTTPConfig               `yaml:"http"`
	Search     SearchConfig             `yaml:"search"`
	Identity   IdentityConfig           `yaml:"identity"`
	Embedding  EmbeddingConfig          `yaml:"embedding"`
	Retrieval  RetrievalConfig          `yaml:"retrieval"`
	Delivery   DeliveryConfig           `yaml:"delivery"`
	Channels   map[string]ChannelConfig `yaml:"channels"`
	Normalizer NormalizerConfig         `yaml:"normalizer"`
	Logging    LoggingConfig            `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds search backend connection settings.
type SearchConfig struct {
	Addrs      []string `yaml:"addrs"`
	CloudID    string   `yaml:"cloud_id"`
	APIKey     string   `yaml:"api_key"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	TimeoutSec int      `yaml:"timeout_sec"` // per-channel query timeout
}

// IdentityConfig holds identity store settings.
type IdentityConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	SessionIdleHours int      `yaml:"session_idle_hours"` // idle TTL before a session is rotated
	KeyPrefix        string   `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Spaces     map[string]SpaceConfig    `yaml:"spaces"`
	TimeoutSec int                       `yaml:"timeout_sec"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SpaceConfig binds one embedding space to a provider and model.
// Vectors from different spaces are never interchangeable.
type SpaceConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// RetrievalConfig holds retrieval pipeline settings.
type RetrievalConfig struct {
	MaxTopK          int `yaml:"max_top_k"`
	MaxTextLen       int `yaml:"max_text_len"`
	AggregateMax     int `yaml:"aggregate_max"`
	DeadlineSec      int `yaml:"deadline_sec"` // global background task deadline
	MaxInFlightTasks int `yaml:"max_in_flight_tasks"`
}

// DeliveryConfig holds callback delivery settings.
type DeliveryConfig struct {
	DefaultCallbackURL string `yaml:"default_callback_url"`
	MaxAttempts        int    `yaml:"max_attempts"`
	BackoffMS          int    `yaml:"backoff_ms"`
	TimeoutSec         int    `yaml:"timeout_sec"`
}

// ChannelConfig overrides a channel descriptor. Zero-valued fields keep defaults.
type ChannelConfig struct {
	Index          string              `yaml:"index"`
	TextFields     []BoostedFieldEntry `yaml:"text_fields"`
	FallbackField  string              `yaml:"fallback_field"`
	MetadataFields []string            `yaml:"metadata_fields"`
	VectorField    string              `yaml:"vector_field"`
	Space          string              `yaml:"space"`
	Dimensions     int                 `yaml:"dimensions"`
	Candidates     int                 `yaml:"candidates"`
	Priority       int                 `yaml:"priority"`
}

// BoostedFieldEntry is a lexical field with boost in YAML form.
type BoostedFieldEntry struct {
	Name  string  `yaml:"name"`
	Boost float64 `yaml:"boost"`
}

// NormalizerConfig extends the built-in term table.
type NormalizerConfig struct {
	ExtraTerms map[string]string `yaml:"extra_terms"` // foreign term -> canonical term
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Identity.ReadinessTimeout <= 0 {
		c.Identity.ReadinessTimeout = 10
	}
	if c.Identity.SessionIdleHours <= 0 {
		c.Identity.SessionIdleHours = 24
	}
	if c.Identity.KeyPrefix == "" {
		c.Identity.KeyPrefix = "taxsearch:"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Retrieval.MaxTopK <= 0 {
		c.Retrieval.MaxTopK = 20
	}
	if c.Retrieval.MaxTextLen <= 0 {
		c.Retrieval.MaxTextLen = 1200
	}
	if c.Retrieval.AggregateMax <= 0 {
		c.Retrieval.AggregateMax = 20
	}
	if c.Retrieval.DeadlineSec <= 0 {
		c.Retrieval.DeadlineSec = 30
	}
	if c.Retrieval.MaxInFlightTasks <= 0 {
		c.Retrieval.MaxInFlightTasks = 64
	}
	if c.Delivery.MaxAttempts <= 0 {
		c.Delivery.MaxAttempts = 3
	}
	if c.Delivery.BackoffMS <= 0 {
		c.Delivery.BackoffMS = 500
	}
	if c.Delivery.TimeoutSec <= 0 {
		c.Delivery.TimeoutSec = 15
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Search.Addrs) == 0 && c.Search.CloudID == "" {
		return fmt.Errorf("search.addrs or search.cloud_id is required")
	}
	if len(c.Identity.Addrs) == 0 {
		return fmt.Errorf("identity.addrs is required")
	}
	for name, s := range c.Embedding.Spaces {
		if s.Provider == "" {
			return fmt.Errorf("embedding.spaces.%s.provider is required", name)
		}
		if _, ok := c.Embedding.Providers[s.Provider]; !ok {
			return fmt.Errorf("embedding.spaces.%s references unknown provider %q", name, s.Provider)
		}
		if s.Model == "" {
			return fmt.Errorf("embedding.spaces.%s.model is required", name)
		}
		if s.Dimensions <= 0 {
			return fmt.Errorf("embedding.spaces.%s.dimensions must be positive", name)
		}
	}
	for name := range c.Channels {
		if _, err := channel.Parse(name); err != nil {
			return fmt.Errorf("channels.%s: %w", name, err)
		}
	}
	return nil
}

// ChannelTable builds the descriptor table: built-in defaults overlaid with
// per-channel overrides from the config file.
func (c *Config) ChannelTable() channel.Table {
	table := channel.Defaults()
	for name, override := range c.Channels {
		ch, err := channel.Parse(name)
		if err != nil {
			continue // rejected by Validate
		}
		d := table[ch]
		if override.Index != "" {
			d.Index = override.Index
		}
		if len(override.TextFields) > 0 {
			fields := make([]channel.BoostedField, len(override.TextFields))
			for i, f := range override.TextFields {
				boost := f.Boost
				if boost <= 0 {
					boost = 1.0
				}
				fields[i] = channel.BoostedField{Name: f.Name, Boost: boost}
			}
			d.TextFields = fields
		}
		if override.FallbackField != "" {
			d.FallbackField = override.FallbackField
		}
		if len(override.MetadataFields) > 0 {
			d.MetadataFields = override.MetadataFields
		}
		if override.VectorField != "" {
			d.VectorField = override.VectorField
		}
		if override.Space != "" {
			d.Space = override.Space
		}
		if override.Dimensions > 0 {
			d.Dimensions = override.Dimensions
		}
		if override.Candidates > 0 {
			d.Candidates = override.Candidates
		}
		if override.Priority > 0 {
			d.Priority = override.Priority
		}
		table[ch] = d
	}
	return table
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
