// Package source fetches the raw holdings document handed to the pipeline.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFirecrawlEndpoint is the Firecrawl scrape API
const DefaultFirecrawlEndpoint = "https://api.firecrawl.dev/v1/scrape"

// DefaultURL is the public companies holdings page
const DefaultURL = "https://bitbo.io/public-companies-bitcoin/"

// Source returns the raw document text
type Source interface {
	Fetch(ctx context.Context) (string, error)
	Name() string
}

// File reads the document from disk
type File struct {
	Path string
}

// Name implements Source
func (f File) Name() string { return "file:" + f.Path }

// Fetch implements Source
func (f File) Fetch(_ context.Context) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read source file: %w", err)
	}
	return string(b), nil
}

// FirecrawlConfig configures the scrape client
type FirecrawlConfig struct {
	APIKey   string
	Endpoint string
	URL      string
	Timeout  time.Duration
}

// Firecrawl scrapes a page as markdown through the Firecrawl API
type Firecrawl struct {
	cfg    FirecrawlConfig
	client *http.Client
	log    zerolog.Logger
}

// NewFirecrawl creates a Firecrawl source
func NewFirecrawl(cfg FirecrawlConfig, log zerolog.Logger) *Firecrawl {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultFirecrawlEndpoint
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Firecrawl{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "firecrawl").Logger(),
	}
}

// Name implements Source
func (f *Firecrawl) Name() string { return "firecrawl:" + f.cfg.URL }

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Fetch implements Source
func (f *Firecrawl) Fetch(ctx context.Context) (string, error) {
	if f.cfg.APIKey == "" {
		return "", fmt.Errorf("firecrawl API key is not configured")
	}

	body, err := json.Marshal(scrapeRequest{URL: f.cfg.URL, Formats: []string{"markdown"}})
	if err != nil {
		return "", fmt.Errorf("failed to encode scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create scrape request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read scrape response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape failed with status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out scrapeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode scrape response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("scrape failed: %s", out.Error)
	}

	f.log.Info().
		Str("url", f.cfg.URL).
		Int("bytes", len(out.Data.Markdown)).
		Dur("took", time.Since(start)).
		Msg("Fetched source document")

	return out.Data.Markdown, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
