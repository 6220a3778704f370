package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the planning core
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, anthropic, local, etc.
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"` // Use for workflow planning turns
	Fallback string `mapstructure:"fallback"` // Fallback model
}

// PlannerConfig controls planning-turn behaviour
type PlannerConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`     // oracle retry attempts on connectivity failure
	RetryDelay    time.Duration `mapstructure:"retry_delay"`     // fixed backoff between attempts
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`       // plan cache entry lifetime
	MaxMemorySize int           `mapstructure:"max_memory_size"` // cap on carried conversation memory entries
}

// Normalize applies defaults for unset planner values.
func (p PlannerConfig) Normalize() PlannerConfig {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 2 * time.Second
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = 30 * time.Minute
	}
	if p.MaxMemorySize <= 0 {
		p.MaxMemorySize = 50
	}
	return p
}

// CacheConfig contains plan cache (redis) settings
type CacheConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Validate checks the cache configuration.
func (c CacheConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("cache.host is required")
	}
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("cache.port is required")
	}
	return nil
}

// RegistryConfig contains capability registry source settings
type RegistryConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Snapshot string         `mapstructure:"snapshot"` // optional path to a JSON snapshot file
}

// PostgresConfig contains connection settings for the registry database
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig reads configuration from file and environment, panicking on
// malformed input. Pass an explicit path to bypass the search paths.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("planner.max_retries", 3)
	viper.SetDefault("planner.retry_delay", "2s")
	viper.SetDefault("planner.cache_ttl", "30m")
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", "6379")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FLOWWEAVE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Planner = config.Planner.Normalize()

	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Cache.Validate(); err != nil {
		panic(err)
	}

	return &config
}
