package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	AI         AIConfig         `mapstructure:"ai"`
	Settings   SettingsConfig   `mapstructure:"settings"`
	Storage    StorageConfig    `mapstructure:"storage"`
	History    HistoryConfig    `mapstructure:"history"`
	Reply      ReplyConfig      `mapstructure:"reply"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type WhatsAppConfig struct {
	SessionDB  string `mapstructure:"session_db"`
	StatusFile string `mapstructure:"status_file"`
	LogLevel   string `mapstructure:"log_level"`
}

type AIConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// SettingsConfig locates the hot-reloaded text sources
type SettingsConfig struct {
	Dir          string        `mapstructure:"dir"`
	TogglesFile  string        `mapstructure:"toggles_file"`
	KeywordsFile string        `mapstructure:"keywords_file"`
	PromptFile   string        `mapstructure:"prompt_file"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type StorageConfig struct {
	Type      string      `mapstructure:"type"`
	StatsFile string      `mapstructure:"stats_file"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type HistoryConfig struct {
	Limit      int           `mapstructure:"limit"`
	BufferSize int           `mapstructure:"buffer_size"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type ReplyConfig struct {
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	FormatMarkdown bool          `mapstructure:"format_markdown"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("whatsapp.session_db", "file:data/session.db?_foreign_keys=on")
	v.SetDefault("whatsapp.status_file", "data/login_status.json")
	v.SetDefault("whatsapp.log_level", "ERROR")

	v.SetDefault("ai.base_url", "https://api.55.ai/v1")
	v.SetDefault("ai.model", "deepseek-v3.1")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 500)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.insecure_skip_verify", false)

	v.SetDefault("settings.dir", "data")
	v.SetDefault("settings.toggles_file", "config.txt")
	v.SetDefault("settings.keywords_file", "keywords.txt")
	v.SetDefault("settings.prompt_file", "prompt.txt")
	v.SetDefault("settings.poll_interval", 2*time.Second)

	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.stats_file", "data/stats.json")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key", "wa_bot:stats")

	v.SetDefault("history.limit", 5)
	v.SetDefault("history.buffer_size", 20)
	v.SetDefault("history.ttl", 24*time.Hour)

	v.SetDefault("reply.min_delay", 3*time.Second)
	v.SetDefault("reply.max_delay", 10*time.Second)

	v.SetDefault("rate_limit.requests_per_minute", 10)
	v.SetDefault("rate_limit.burst", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/bot.log")
	v.SetDefault("logging.file.max_size", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age", 30)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.port", 9090)
	v.SetDefault("monitoring.path", "/metrics")
}

// LoadConfig loads configuration from an optional yaml file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.model", "AI_MODEL_NAME")
	v.BindEnv("ai.insecure_skip_verify", "AI_INSECURE_SKIP_VERIFY")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.AI.APIKey == "" {
		return fmt.Errorf("ai api key is required")
	}
	if cfg.AI.BaseURL == "" {
		return fmt.Errorf("ai base url is required")
	}
	if cfg.Reply.MinDelay < 0 || cfg.Reply.MaxDelay < cfg.Reply.MinDelay {
		return fmt.Errorf("invalid reply delay range %s..%s", cfg.Reply.MinDelay, cfg.Reply.MaxDelay)
	}
	switch cfg.Storage.Type {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}
