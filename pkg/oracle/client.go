// Package oracle is the reasoning backend used by agents to process
// instructions. The engine composes the message list; the oracle only
// executes the completion call.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maulworks/maul/pkg/domain"
)

const (
	defaultModel   = "gpt-3.5-turbo"
	defaultTimeout = 30 * time.Second
)

// Message is one chat message of an oracle invocation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Oracle executes one completion over an assembled message list and
// returns the model text. Implementations must not retry; failures
// propagate to the caller as-is.
type Oracle interface {
	Invoke(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// Config configures the HTTP oracle client. Endpoint is the full
// chat-completions URL of an OpenAI-compatible API.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an oracle client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Invoke posts the messages to the completion endpoint. The temperature is
// passed through unclamped; callers deliberately push it past 1.0 as agent
// drift accrues. Every failure is wrapped in a domain.OracleError.
func (c *Client) Invoke(ctx context.Context, messages []Message, temperature float64) (string, error) {
	payload := map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.OracleError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &domain.OracleError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.OracleError{Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close oracle response body", slog.Any("error", closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &domain.OracleError{Err: fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, raw)}
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", &domain.OracleError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(completion.Choices) == 0 {
		return "", &domain.OracleError{Err: fmt.Errorf("no completion choices returned")}
	}

	return completion.Choices[0].Message.Content, nil
}
