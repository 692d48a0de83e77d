package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Tasks     TasksConfig     `yaml:"tasks" mapstructure:"tasks"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Generate  GenerateConfig  `yaml:"generate" mapstructure:"generate"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TasksConfig configures the task catalog source.
type TasksConfig struct {
	// Path overrides the embedded catalog when set.
	Path string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
	// RateLimit is requests per second allowed against the API.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GoogleConfig holds Google Gemini API settings.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GenerateConfig configures the generation orchestrator.
type GenerateConfig struct {
	// Workers bounds concurrent provider calls across all providers.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// MaxAttempts is the per-job attempt ceiling, including the first try.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// TimeoutSecs is the per-attempt provider call timeout.
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// BackoffMS is the initial retry backoff in milliseconds.
	BackoffMS int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	// MaxTokens caps generated output length.
	MaxTokens int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
	// Temperature applies to all generation calls.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PricingConfig holds per-provider pricing rates, keyed by model id.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Google    map[string]ModelPricing `yaml:"google" mapstructure:"google"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STYLEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "styleval.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("generate.workers", 4)
	v.SetDefault("generate.max_attempts", 3)
	v.SetDefault("generate.timeout_secs", 60)
	v.SetDefault("generate.backoff_ms", 500)
	v.SetDefault("generate.max_tokens", 1024)
	v.SetDefault("generate.temperature", 0.7)
	v.SetDefault("anthropic.rate_limit", 2)
	v.SetDefault("openai.rate_limit", 2)
	v.SetDefault("google.rate_limit", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
