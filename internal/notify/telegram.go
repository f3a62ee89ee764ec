package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/treasury/internal/digest"
)

// telegramLimit is the maximum length of one Telegram message
const telegramLimit = 4096

// TelegramConfig configures the Telegram Bot API channel
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string // Defaults to https://api.telegram.org
	Timeout time.Duration
}

// Telegram sends messages through the Bot API sendMessage method
type Telegram struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewTelegram creates a Telegram notifier
func NewTelegram(cfg TelegramConfig, log zerolog.Logger) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		// Bot API allows about one message per second per chat
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Name implements Notifier
func (t *Telegram) Name() string { return "telegram" }

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send implements Notifier. Long messages are split on line boundaries.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if t.cfg.Token == "" || t.cfg.ChatID == "" {
		return fmt.Errorf("telegram is not configured")
	}

	chunks := Split(msg.Text, telegramLimit)
	for i, chunk := range chunks {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limiter: %w", err)
		}
		if err := t.send(ctx, chunk, parseMode(msg.Mode)); err != nil {
			return fmt.Errorf("failed to send telegram message part %d/%d: %w", i+1, len(chunks), err)
		}
	}

	t.log.Debug().Int("parts", len(chunks)).Msg("Telegram message sent")
	return nil
}

func (t *Telegram) send(ctx context.Context, text, mode string) error {
	body, err := json.Marshal(telegramRequest{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		ParseMode:             mode,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var out telegramResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram error %d: %s", out.ErrorCode, out.Description)
	}
	return nil
}

func parseMode(mode digest.Mode) string {
	switch mode {
	case digest.ModeMarkdown:
		return "Markdown"
	case digest.ModeHTML:
		return "HTML"
	}
	return ""
}

// Split breaks text into parts of at most limit bytes, preferring line boundaries
func Split(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				parts = append(parts, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}
			cut := limit
			for cut > 0 && !utf8RuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimRight(current.String(), "\n"))
	}
	return parts
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
