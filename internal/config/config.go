package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort     = 8000
	defaultEnv      = "development"
	defaultDSN      = "root:password@tcp(127.0.0.1:3306)/pilling?charset=utf8mb4&parseTime=True&loc=Local"
	defaultRedisURL = "redis://localhost:6379/0"

	defaultOpenAIModel       = "gpt-3.5-turbo-1106"
	defaultDirectoryEndpoint = "http://apis.data.go.kr/1471000/DrbEasyDrugInfoService/getDrbEasyDrugList"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port      int             `yaml:"port"`
	DSN       string          `yaml:"dsn"` // MySQL DSN
	RedisURL  string          `yaml:"redis_url"`
	Env       string          `yaml:"env"` // "development" | "production"
	JWTSecret string          `yaml:"jwt_secret"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Directory DirectoryConfig `yaml:"directory"`
	Search    SearchConfig    `yaml:"search"`
	Batch     BatchConfig     `yaml:"batch"`
}

// OpenAIConfig configures the efficacy summarizer.
type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"` // optional OpenAI-compatible base URL
	Model    string `yaml:"model"`
}

// DirectoryConfig configures the public drug directory API client.
type DirectoryConfig struct {
	Endpoint   string `yaml:"endpoint"`
	ServiceKey string `yaml:"service_key"`
}

// SearchConfig holds the ephemeral search cache TTLs.
type SearchConfig struct {
	NameTTLSeconds    int `yaml:"name_ttl_seconds"`
	SymptomTTLSeconds int `yaml:"symptom_ttl_seconds"`
}

// BatchConfig paces the batch jobs against external rate limits.
type BatchConfig struct {
	BatchSize      int `yaml:"batch_size"`
	DelayMS        int `yaml:"delay_ms"`
	PopularDelayMS int `yaml:"popular_delay_ms"`
}

// Load reads the YAML config at path and fills in defaults. A missing file is
// not an error in development; defaults plus environment variables apply.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.DSN == "" {
		cfg.DSN = envOr("PILLING_DSN", defaultDSN)
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = envOr("PILLING_REDIS_URL", defaultRedisURL)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("PILLING_JWT_SECRET")
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = defaultOpenAIModel
	}
	if cfg.Directory.Endpoint == "" {
		cfg.Directory.Endpoint = defaultDirectoryEndpoint
	}
	if cfg.Directory.ServiceKey == "" {
		cfg.Directory.ServiceKey = os.Getenv("PILLING_DIRECTORY_SERVICE_KEY")
	}
	if cfg.Search.NameTTLSeconds <= 0 {
		cfg.Search.NameTTLSeconds = 3600
	}
	if cfg.Search.SymptomTTLSeconds <= 0 {
		cfg.Search.SymptomTTLSeconds = 1800
	}
	if cfg.Batch.BatchSize <= 0 {
		cfg.Batch.BatchSize = 50
	}
	if cfg.Batch.DelayMS <= 0 {
		cfg.Batch.DelayMS = 500
	}
	if cfg.Batch.PopularDelayMS <= 0 {
		cfg.Batch.PopularDelayMS = 300
	}

	return cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }

// NameSearchTTL is the ephemeral cache TTL for name searches.
func (c *AppConfig) NameSearchTTL() time.Duration {
	return time.Duration(c.Search.NameTTLSeconds) * time.Second
}

// SymptomSearchTTL is the ephemeral cache TTL for symptom searches. Shorter than
// the name TTL because symptom misses trigger per-keyword summarizer calls.
func (c *AppConfig) SymptomSearchTTL() time.Duration {
	return time.Duration(c.Search.SymptomTTLSeconds) * time.Second
}

// BatchDelay is the pause between summarizer calls in bulk jobs.
func (c *AppConfig) BatchDelay() time.Duration {
	return time.Duration(c.Batch.DelayMS) * time.Millisecond
}

// PopularDelay is the pause between summarizer calls when pregenerating
// popular keyword summaries.
func (c *AppConfig) PopularDelay() time.Duration {
	return time.Duration(c.Batch.PopularDelayMS) * time.Millisecond
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
