package digest

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/platform/observability"
)

const (
	// MaxMessageSize is the Telegram text limit per message.
	MaxMessageSize = 4096

	statusSent   = "sent"
	statusFailed = "failed"
)

// Publisher delivers a weekly digest to readers.
type Publisher interface {
	Publish(ctx context.Context, d domain.WeeklyDigest) error
}

// TelegramPublisher posts the digest to a single chat through the Bot API.
type TelegramPublisher struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

// TelegramOption customises a TelegramPublisher.
type TelegramOption func(*telegramOptions)

type telegramOptions struct {
	endpoint string
	client   *http.Client
}

// WithAPIEndpoint overrides the Bot API endpoint format string.
func WithAPIEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) { o.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for Bot API calls.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(o *telegramOptions) { o.client = client }
}

// NewTelegramPublisher authenticates the bot token and returns a publisher.
func NewTelegramPublisher(cfg config.TelegramConfig, logger *zerolog.Logger, opts ...TelegramOption) (*TelegramPublisher, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram publisher: %w", coreerrors.ErrUnsupported)
	}

	o := telegramOptions{endpoint: tgbotapi.APIEndpoint, client: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &TelegramPublisher{api: api, chatID: cfg.ChatID, logger: logger}, nil
}

// Publish sends the digest, split into as many messages as needed.
func (p *TelegramPublisher) Publish(ctx context.Context, d domain.WeeklyDigest) error {
	parts := SplitMessage(RenderHTML(d), MaxMessageSize)

	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish digest: %w", err)
		}

		msg := tgbotapi.NewMessage(p.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := p.api.Send(msg); err != nil {
			observability.DigestsPublished.WithLabelValues(statusFailed).Inc()
			return fmt.Errorf("send digest part %d/%d: %w", i+1, len(parts), err)
		}
	}

	observability.DigestsPublished.WithLabelValues(statusSent).Inc()
	p.logger.Info().Int64("chat_id", p.chatID).Int("parts", len(parts)).Int("items", d.ItemCount).Msg("weekly digest published")

	return nil
}

// RenderHTML renders the digest with Telegram's HTML subset.
func RenderHTML(d domain.WeeklyDigest) string {
	var sb strings.Builder

	sb.WriteString("<b>Weekly Summary (last 7 days)</b>\n")
	fmt.Fprintf(&sb, "Items collected: <b>%d</b>\n", d.ItemCount)

	if len(d.Themes) > 0 {
		sb.WriteString("\n<b>Emerging themes</b>\n")
		for _, t := range d.Themes {
			fmt.Fprintf(&sb, "• %s × %d\n", html.EscapeString(t.Name), t.Count)
		}
	}

	if len(d.Highlights) > 0 {
		sb.WriteString("\n<b>Highlights</b>\n")
		for _, h := range d.Highlights {
			fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a> — %s (score %s)\n",
				html.EscapeString(h.URL), html.EscapeString(h.Title), html.EscapeString(h.Source), FormatScore(h.Score))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// SplitMessage splits text at line breaks into parts of at most limit
// characters. A single line longer than limit is cut hard.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			n = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			head, tail := splitRunes(line, limit)
			parts = append(parts, head)
			line = tail
		}

		size := utf8.RuneCountInString(line)

		sep := 0
		if n > 0 {
			sep = 1
		}

		if n+sep+size > limit {
			flush()
			sep = 0
		}

		if sep == 1 {
			cur.WriteByte('\n')
		}

		cur.WriteString(line)
		n += sep + size
	}

	flush()

	return parts
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}

	return s, ""
}
