// Package config provides configuration management for the Prodex chat
// core. It loads settings from environment variables with the PRODEX_
// prefix, provides sensible defaults for all options, and optionally
// applies overrides from a YAML file (PRODEX_CONFIG_FILE).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the chat core.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Queue    QueueConfig    `yaml:"queue"`
	Sync     SyncConfig     `yaml:"sync"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7070)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // SQLite database path (default: ./data/prodex.db)
	PostgresDSN string `yaml:"postgres_dsn"` // PostgreSQL DSN when engine is postgres
}

// ProviderConfig contains embedding/completion/assistants provider settings.
type ProviderConfig struct {
	Provider       string `yaml:"provider"`        // Provider: openai, anthropic, ollama (default: openai)
	APIKey         string `yaml:"api_key"`         // Provider API key
	BaseURL        string `yaml:"base_url"`        // Override base URL (tests, proxies)
	Model          string `yaml:"model"`           // Completion model (default: gpt-4o-mini)
	EmbeddingModel string `yaml:"embedding_model"` // Embedding model (default: text-embedding-3-small)
	AssistantModel string `yaml:"assistant_model"` // Managed assistant model (default: gpt-4o-mini)
	Dimension      int    `yaml:"dimension"`       // Embedding vector length (default: 1536)
}

// QueueConfig contains embedding queue and worker configuration.
type QueueConfig struct {
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"` // Job hiding window per read (default: 60s)
	BatchSize         int           `yaml:"batch_size"`         // Jobs per drain pass (default: 20)
	MaxReads          int           `yaml:"max_reads"`          // Reads before dead-letter (default: 5)
	DrainInterval     time.Duration `yaml:"drain_interval"`     // Scheduler period (default: 30s)
}

// SyncConfig contains assistant sync and polling configuration.
type SyncConfig struct {
	StalenessTTL     time.Duration `yaml:"staleness_ttl"`      // Registration age before resync (default: 1h)
	AttachPollDelay  time.Duration `yaml:"attach_poll_delay"`  // Interval between attach status polls (default: 2s)
	AttachMaxPolls   int           `yaml:"attach_max_polls"`   // Attach poll budget (default: 10)
	RunPollDelay     time.Duration `yaml:"run_poll_delay"`     // Interval between run status polls (default: 2s)
	RunMaxPolls      int           `yaml:"run_max_polls"`      // Run poll budget (default: 30)
	AssistantName    string        `yaml:"assistant_name"`     // Display name prefix for managed assistants
	AssistantPrompt  string        `yaml:"assistant_prompt"`   // System instructions for managed assistants
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode     string `yaml:"mode"`      // Security mode: development, production (default: development)
	APIToken string `yaml:"api_token"` // API authentication token
}

// DefaultAssistantPrompt is the instruction set given to every managed
// assistant; tenant data arrives via the attached vector store, never
// through the prompt itself.
const DefaultAssistantPrompt = "You are a product assistant. Answer questions using only the " +
	"attached product documents. If the documents do not cover a question, say so briefly."

// Load builds configuration from environment variables with defaults, then
// applies overrides from the YAML file named by PRODEX_CONFIG_FILE (or the
// explicit path argument, which wins) when one is set.
func Load(configFile string) (*Config, error) {
	cfg := buildBaseConfig()

	if configFile == "" {
		configFile = os.Getenv("PRODEX_CONFIG_FILE")
	}
	if configFile != "" {
		if err := applyFileOverrides(cfg, configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires PRODEX_POSTGRES_DSN")
	}
	if c.Provider.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Provider.Dimension)
	}
	if c.Queue.MaxReads < 1 {
		return fmt.Errorf("config: queue max reads must be at least 1, got %d", c.Queue.MaxReads)
	}
	return nil
}

// applyFileOverrides unmarshals the YAML file over the env-derived config,
// so only keys present in the file are overridden.
func applyFileOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse config file %s: %w", path, err)
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("PRODEX_PORT", 7070),
			Host: getEnv("PRODEX_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("PRODEX_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("PRODEX_DATA_PATH", "./data/prodex.db"),
			PostgresDSN: getEnv("PRODEX_POSTGRES_DSN", ""),
		},
		Provider: ProviderConfig{
			Provider:       getEnv("PRODEX_PROVIDER", "openai"),
			APIKey:         getEnv("PRODEX_API_KEY", ""),
			BaseURL:        getEnv("PRODEX_BASE_URL", ""),
			Model:          getEnv("PRODEX_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("PRODEX_EMBEDDING_MODEL", "text-embedding-3-small"),
			AssistantModel: getEnv("PRODEX_ASSISTANT_MODEL", "gpt-4o-mini"),
			Dimension:      getEnvInt("PRODEX_EMBEDDING_DIMENSION", 1536),
		},
		Queue: QueueConfig{
			VisibilityTimeout: getEnvDuration("PRODEX_QUEUE_VISIBILITY_TIMEOUT", 60*time.Second),
			BatchSize:         getEnvInt("PRODEX_QUEUE_BATCH_SIZE", 20),
			MaxReads:          getEnvInt("PRODEX_QUEUE_MAX_READS", 5),
			DrainInterval:     getEnvDuration("PRODEX_QUEUE_DRAIN_INTERVAL", 30*time.Second),
		},
		Sync: SyncConfig{
			StalenessTTL:    getEnvDuration("PRODEX_SYNC_TTL", time.Hour),
			AttachPollDelay: getEnvDuration("PRODEX_ATTACH_POLL_DELAY", 2*time.Second),
			AttachMaxPolls:  getEnvInt("PRODEX_ATTACH_MAX_POLLS", 10),
			RunPollDelay:    getEnvDuration("PRODEX_RUN_POLL_DELAY", 2*time.Second),
			RunMaxPolls:     getEnvInt("PRODEX_RUN_MAX_POLLS", 30),
			AssistantName:   getEnv("PRODEX_ASSISTANT_NAME", "Prodex Product Assistant"),
			AssistantPrompt: getEnv("PRODEX_ASSISTANT_PROMPT", DefaultAssistantPrompt),
		},
		Security: SecurityConfig{
			Mode:     getEnv("PRODEX_SECURITY_MODE", "development"),
			APIToken: getEnv("PRODEX_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "1h") or
// returns a default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
