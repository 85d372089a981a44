package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-level configuration read from the environment.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Files
	DataDir         string `env:"DATA_DIR" envDefault:"./data"`
	ReportsDir      string `env:"REPORTS_DIR" envDefault:"./reports"`
	TopicConfigPath string `env:"TOPIC_CONFIG_PATH" envDefault:"./config.yaml"`
	StopwordsPath   string `env:"STOPWORDS_PATH" envDefault:"./stopwords_en.txt"`

	// Abstractive summaries
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	LLMModel         string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMBaseURL       string        `env:"LLM_BASE_URL"`
	SummaryTimeout   time.Duration `env:"SUMMARY_TIMEOUT" envDefault:"45s"`
	SummaryMaxTokens int           `env:"SUMMARY_MAX_TOKENS" envDefault:"300"`
	LLMRPS           float64       `env:"LLM_RPS" envDefault:"1"`

	// Fetching
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"20s"`
	WebFetchRPS      float64       `env:"WEB_FETCH_RPS" envDefault:"2"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY" envDefault:"4"`

	// Web search
	BingAPIKey    string `env:"BING_API_KEY"`
	BingEndpoint  string `env:"BING_ENDPOINT" envDefault:"https://api.bing.microsoft.com/v7.0/search"`
	SearchResults int    `env:"SEARCH_RESULTS" envDefault:"15"`

	// Social scraping
	SnscrapeBin   string        `env:"SNSCRAPE_BIN" envDefault:"snscrape"`
	SocialTimeout time.Duration `env:"SOCIAL_TIMEOUT" envDefault:"60s"`

	// Optional archive and publishing
	PostgresDSN      string `env:"POSTGRES_DSN"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`

	// Scheduler mode
	HealthPort        int           `env:"HEALTH_PORT" envDefault:"8080"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"24h"`
	WeeklyDay         int           `env:"WEEKLY_DAY" envDefault:"0"`
	WeeklyHour        int           `env:"WEEKLY_HOUR" envDefault:"6"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}

	if cfg.WeeklyDay < 0 || cfg.WeeklyDay > 6 {
		return nil, fmt.Errorf("WEEKLY_DAY %d out of range 0-6", cfg.WeeklyDay)
	}

	if cfg.WeeklyHour < 0 || cfg.WeeklyHour > 23 {
		return nil, fmt.Errorf("WEEKLY_HOUR %d out of range 0-23", cfg.WeeklyHour)
	}

	return cfg, nil
}

// Weekday returns WEEKLY_DAY as a time.Weekday.
func (c *Config) Weekday() time.Weekday {
	return time.Weekday(c.WeeklyDay)
}

// SummariesEnabled reports whether abstractive summaries are configured.
func (c *Config) SummariesEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// SearchEnabled reports whether the web search connector is configured.
func (c *Config) SearchEnabled() bool {
	return c.BingAPIKey != ""
}

// ArchiveEnabled reports whether the Postgres archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.PostgresDSN != ""
}

// PublishEnabled reports whether digest publishing to Telegram is configured.
func (c *Config) PublishEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}
