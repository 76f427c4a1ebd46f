// Package chat provides the Ollama chat backend client and the persisted
// conversation memory.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrBackendUnavailable is returned when the chat backend cannot be reached
// even after the CPU fallback retry.
var ErrBackendUnavailable = errors.New("chat backend unavailable")

// ClientConfig holds Ollama client configuration
type ClientConfig struct {
	ServerURL string // e.g., "http://localhost:11434"
	Model     string
	Timeout   time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:11434",
		Model:     "llama3.2:1b",
		Timeout:   120 * time.Second,
	}
}

// Client is an Ollama chat client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Ollama chat client
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "chat").Logger(),
	}
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []Message      `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive int            `json:"keep_alive"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model     string  `json:"model"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
	EvalCount int     `json:"eval_count"`
}

// Chat sends the message list and returns the assistant reply. An
// acceleration failure (out-of-memory, CUDA allocation) is retried once with
// GPU offload disabled; only a failed retry propagates.
func (c *Client) Chat(ctx context.Context, messages []Message) (Message, error) {
	reply, err := c.send(ctx, messages, nil)
	if err == nil {
		return reply, nil
	}

	if !isResourceFailure(err) {
		return Message{}, err
	}

	c.logger.Warn().Err(err).Msg("Acceleration failure, retrying on CPU")
	reply, retryErr := c.send(ctx, messages, map[string]any{"num_gpu": 0})
	if retryErr != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, retryErr)
	}
	return reply, nil
}

// send performs one /api/chat round trip.
func (c *Client) send(ctx context.Context, messages []Message, options map[string]any) (Message, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		Stream:    false,
		KeepAlive: 0,
		Options:   options,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.config.ServerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Message{}, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Message{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return chatResp.Message, nil
}

// Health checks if Ollama is reachable
func (c *Client) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", c.config.ServerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

// isResourceFailure recognizes GPU memory exhaustion in backend errors.
func isResourceFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cuda") ||
		strings.Contains(msg, "allocate") ||
		strings.Contains(msg, "vram") ||
		strings.Contains(msg, "out of memory")
}
