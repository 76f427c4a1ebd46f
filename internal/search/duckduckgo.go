// Package search provides the web search collaborator, scraping DuckDuckGo's
// HTML endpoint.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Unavailable is the fixed reply when the search channel is down. The core
// never sees an error from this collaborator.
const Unavailable = "My web sensors are offline, Friend! Search channels down."

// Config configures the DuckDuckGo scraper.
type Config struct {
	BaseURL    string // e.g., "https://html.duckduckgo.com/html"
	Timeout    time.Duration
	MaxResults int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://html.duckduckgo.com/html",
		Timeout:    8 * time.Second,
		MaxResults: 3,
	}
}

// DuckDuckGo scrapes result snippets from the HTML search endpoint.
type DuckDuckGo struct {
	client     *http.Client
	baseURL    string
	maxResults int
	logger     zerolog.Logger
}

// New creates a DuckDuckGo search collaborator.
func New(cfg *Config, logger zerolog.Logger) *DuckDuckGo {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &DuckDuckGo{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		logger:     logger.With().Str("component", "search").Logger(),
	}
}

// Search returns a plain-text summary of the top result snippets, or the
// fixed Unavailable string on any failure.
func (d *DuckDuckGo) Search(ctx context.Context, query string) string {
	d.logger.Info().Str("query", query).Msg("Web search")

	summaries, err := d.scrape(ctx, query)
	if err != nil || len(summaries) == 0 {
		if err != nil {
			d.logger.Warn().Err(err).Msg("Search failed")
		}
		return Unavailable
	}

	d.logger.Debug().Int("results", len(summaries)).Msg("Search results found")
	return strings.Join(summaries, "\n\n")
}

func (d *DuckDuckGo) scrape(ctx context.Context, query string) ([]string, error) {
	searchURL := fmt.Sprintf("%s/?q=%s", d.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var summaries []string
	doc.Find("div.result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Find("a.result__snippet").Text())
		// Skip ads and junk snippets
		if len(text) > 30 && !strings.HasPrefix(text, "http") {
			summaries = append(summaries, text)
		}
		return len(summaries) < d.maxResults
	})

	return summaries, nil
}
