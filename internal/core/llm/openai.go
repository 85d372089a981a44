// Package llm wraps the OpenAI chat API as an optional abstractive summariser.
//
// Every error returned by Summarize wraps one of ErrTransient, ErrUnsupported
// or ErrNoData so callers can decide whether to fall back or retry next run.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/platform/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	rateLimiterBurst        = 2
	summaryTemperature      = 0.3
	defaultMaxTokens        = 300
	defaultTimeout          = 45 * time.Second
	defaultModel            = openai.GPT4oMini
)

// OpenAI is an abstractive summariser backed by the chat completions API.
type OpenAI struct {
	cfg         config.LLMConfig
	topic       string
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAI creates the summariser. topic is woven into the prompt.
func NewOpenAI(cfg config.LLMConfig, topic string, logger *zerolog.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &OpenAI{
		cfg:         cfg,
		topic:       topic,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(limit, rateLimiterBurst),
	}
}

func (c *OpenAI) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w: %w until %v", coreerrors.ErrTransient, coreerrors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *OpenAI) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *OpenAI) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

// Summarize returns a bulleted synthesis of text.
func (c *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("openai summary: %w: no api key", coreerrors.ErrUnsupported)
	}

	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w: %w", coreerrors.ErrTransient, err)
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: summaryTemperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildSummaryPrompt(c.topic, text)},
		},
	})

	observability.LLMRequestDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())

	if err != nil {
		kindErr := classifyAPIError(err)
		if !errors.Is(kindErr, coreerrors.ErrUnsupported) {
			c.recordFailure()
		}

		return "", fmt.Errorf("openai summary: %w: %w", kindErr, err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai summary: %w", coreerrors.ErrEmptyResponse)
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai summary: %w", coreerrors.ErrEmptyResponse)
	}

	return out, nil
}

// classifyAPIError picks the sentinel a failed request should carry.
func classifyAPIError(err error) error {
	status := 0

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return coreerrors.ErrUnsupported
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError, status == 0:
		return coreerrors.ErrTransient
	default:
		return coreerrors.ErrNoData
	}
}
