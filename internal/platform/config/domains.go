package config

import "time"

// LLMConfig holds abstractive summary settings.
type LLMConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	RPS       float64
}

// FetchConfig holds web page fetching settings.
type FetchConfig struct {
	Timeout     time.Duration
	RPS         float64
	Concurrency int
}

// SearchConfig holds web search connector settings.
type SearchConfig struct {
	APIKey   string
	Endpoint string
	Results  int
	Timeout  time.Duration
}

// SocialConfig holds social scraping connector settings.
type SocialConfig struct {
	Binary  string
	Timeout time.Duration
}

// TelegramConfig holds digest publishing settings.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// SchedulerConfig holds scheduler mode settings.
type SchedulerConfig struct {
	Interval   time.Duration
	WeeklyDay  time.Weekday
	WeeklyHour int
	HealthPort int
}

// LLMCfg returns the LLM configuration extracted from Config.
func (c *Config) LLMCfg() LLMConfig {
	return LLMConfig{
		APIKey:    c.OpenAIAPIKey,
		Model:     c.LLMModel,
		BaseURL:   c.LLMBaseURL,
		Timeout:   c.SummaryTimeout,
		MaxTokens: c.SummaryMaxTokens,
		RPS:       c.LLMRPS,
	}
}

// FetchCfg returns the fetcher configuration.
func (c *Config) FetchCfg() FetchConfig {
	return FetchConfig{
		Timeout:     c.FetchTimeout,
		RPS:         c.WebFetchRPS,
		Concurrency: c.FetchConcurrency,
	}
}

// SearchCfg returns the web search configuration. Search shares the fetch timeout.
func (c *Config) SearchCfg() SearchConfig {
	return SearchConfig{
		APIKey:   c.BingAPIKey,
		Endpoint: c.BingEndpoint,
		Results:  c.SearchResults,
		Timeout:  c.FetchTimeout,
	}
}

// SocialCfg returns the social scraping configuration.
func (c *Config) SocialCfg() SocialConfig {
	return SocialConfig{
		Binary:  c.SnscrapeBin,
		Timeout: c.SocialTimeout,
	}
}

// TelegramCfg returns the digest publishing configuration.
func (c *Config) TelegramCfg() TelegramConfig {
	return TelegramConfig{
		Token:  c.TelegramBotToken,
		ChatID: c.TelegramChatID,
	}
}

// SchedulerCfg returns the scheduler mode configuration.
func (c *Config) SchedulerCfg() SchedulerConfig {
	return SchedulerConfig{
		Interval:   c.SchedulerInterval,
		WeeklyDay:  c.Weekday(),
		WeeklyHour: c.WeeklyHour,
		HealthPort: c.HealthPort,
	}
}
