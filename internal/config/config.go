package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Dispatch   DispatchConfig   `yaml:"dispatch" mapstructure:"dispatch"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Model         string  `yaml:"model" mapstructure:"model"`
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	WebSearch     bool    `yaml:"web_search" mapstructure:"web_search"`
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	Model    string  `yaml:"model" mapstructure:"model"`
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// WorkerConfig controls the claim/execute/update loop and self-chaining.
type WorkerConfig struct {
	BatchSize               int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatchesPerInvocation int     `yaml:"max_batches_per_invocation" mapstructure:"max_batches_per_invocation"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	StaleAfterSecs          int     `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	MaxGenerations          int     `yaml:"max_generations" mapstructure:"max_generations"`
	InterBatchDelayMs       int     `yaml:"inter_batch_delay_ms" mapstructure:"inter_batch_delay_ms"`
	ProviderRPS             float64 `yaml:"provider_rps" mapstructure:"provider_rps"`
}

// StaleAfter returns the stuck-item staleness window as a duration.
func (w WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(w.StaleAfterSecs) * time.Second
}

// InterBatchDelay returns the pause between batches as a duration.
func (w WorkerConfig) InterBatchDelay() time.Duration {
	return time.Duration(w.InterBatchDelayMs) * time.Millisecond
}

// DispatchConfig controls the scan/enqueue/launch entry point.
type DispatchConfig struct {
	PageSize  int `yaml:"page_size" mapstructure:"page_size"`
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
	Workers   int `yaml:"workers" mapstructure:"workers"`
}

// ExtractionConfig configures the citation/sentiment extraction engine.
type ExtractionConfig struct {
	LexiconPath string `yaml:"lexicon_path" mapstructure:"lexicon_path"`
}

// ScheduleConfig configures the periodic dispatcher trigger.
type ScheduleConfig struct {
	Cron string `yaml:"cron" mapstructure:"cron"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.input_per_mtok", 2.50)
	v.SetDefault("openai.output_per_mtok", 10.00)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.input_per_mtok", 3.00)
	v.SetDefault("anthropic.output_per_mtok", 15.00)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.web_search", true)
	v.SetDefault("gemini.input_per_mtok", 0.10)
	v.SetDefault("gemini.output_per_mtok", 0.40)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.per_query", 0.005)
	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.max_batches_per_invocation", 4)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.stale_after_secs", 300)
	v.SetDefault("worker.max_generations", 5)
	v.SetDefault("worker.inter_batch_delay_ms", 250)
	v.SetDefault("worker.provider_rps", 2.0)
	v.SetDefault("dispatch.page_size", 200)
	v.SetDefault("dispatch.chunk_size", 50)
	v.SetDefault("dispatch.workers", 3)
	v.SetDefault("schedule.cron", "*/15 * * * *")

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
