// Package weather provides the atmospheric-conditions collaborator backed by
// wttr.in, which needs no API key.
package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Fixed replies for the failure modes; the core never sees an error.
const (
	Unavailable = "Unable to establish atmospheric link, Friend. Sensors offline."
	Interfered  = "My weather sensors are experiencing interference, Friend!"
)

var nonASCII = regexp.MustCompile(`[^\x00-\x7F]+`)

// Config configures the wttr.in client.
type Config struct {
	BaseURL string // e.g., "https://wttr.in"
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://wttr.in",
		Timeout: 10 * time.Second,
	}
}

// Client fetches one-line weather reports.
type Client struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// New creates a weather client.
func New(cfg *Config, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		logger:  logger.With().Str("component", "weather").Logger(),
	}
}

// Scan returns a plain-text conditions summary for city, or a fixed
// unavailable string on failure. Weather glyphs are stripped so the output
// is safe for voice synthesis.
func (c *Client) Scan(ctx context.Context, city string) string {
	c.logger.Info().Str("city", city).Msg("Atmospheric scan")

	reqURL := fmt.Sprintf("%s/%s?format=%s", c.baseURL, url.PathEscape(city), url.QueryEscape("%l: %c %t %C"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Interfered
	}
	req.Header.Set("User-Agent", "curl/7.68.0")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Weather scan failed")
		return Interfered
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unavailable
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Interfered
	}

	clean := strings.TrimSpace(nonASCII.ReplaceAllString(string(body), ""))
	return fmt.Sprintf("Atmospheric scan complete, Friend! %s", clean)
}
