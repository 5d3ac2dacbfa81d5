// Package ollama is the local chat-completion backend.
package ollama

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/domain/service"
	"github.com/niceassistant/assistant/internal/domain/valueobject"
	"github.com/niceassistant/assistant/internal/infrastructure/config"
)

const providerName = "ollama"

// Client calls the Ollama HTTP API.
type Client struct {
	client      *resty.Client
	listTimeout time.Duration
	breaker     *breaker
	logger      *zap.Logger
}

// Compile-time interface check
var _ service.ChatModel = (*Client)(nil)

// New creates an Ollama client from configuration.
func New(cfg config.OllamaConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = 5 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{
		client:      c,
		listTimeout: listTimeout,
		breaker:     newBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout),
		logger:      logger.With(zap.String("provider", providerName)),
	}
}

type chatRequest struct {
	Model    string                `json:"model"`
	Messages []service.ChatMessage `json:"messages"`
	Stream   bool                  `json:"stream"`
	Options  map[string]any        `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Chat sends the full message list and returns the assistant's reply text.
func (c *Client) Chat(ctx context.Context, model string, messages []service.ChatMessage, opts valueobject.SamplingOptions) (string, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opts.AsMap(),
	}

	if !c.breaker.allow() {
		return "", service.NewTransportError(providerName, "chat", errEngineDown)
	}
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/api/chat")
	if err != nil {
		c.recordFailure(ctx, err)
		return "", service.NewTransportError(providerName, "chat", err)
	}
	c.breaker.success()
	if resp.IsError() {
		return "", service.NewHTTPError(providerName, "chat", resp.StatusCode(), resp.Body())
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", service.NewProtocolError(providerName, "chat", "undecodable chat response", err)
	}
	if out.Error != "" {
		return "", service.NewProtocolError(providerName, "chat", out.Error, nil)
	}

	c.logger.Debug("Chat completed",
		zap.String("model", model),
		zap.Int("messages", len(messages)),
		zap.Duration("latency", time.Since(start)),
	)
	return out.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns installed model names in server order.
// A call cut off by the list timeout counts against the breaker; only the
// caller's own cancellation does not.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	if !c.breaker.allow() {
		return nil, service.NewTransportError(providerName, "tags", errEngineDown)
	}
	resp, err := c.client.R().SetContext(reqCtx).Get("/api/tags")
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, service.NewTransportError(providerName, "tags", err)
	}
	c.breaker.success()
	if resp.IsError() {
		return nil, service.NewHTTPError(providerName, "tags", resp.StatusCode(), resp.Body())
	}

	var tags tagsResponse
	if err := json.Unmarshal(resp.Body(), &tags); err != nil {
		return nil, service.NewProtocolError(providerName, "tags", "undecodable tags response", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// recordFailure counts a transport failure unless the caller gave up first.
// ctx must be the caller's context, not one derived for a request timeout.
func (c *Client) recordFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		c.breaker.success()
		return
	}
	if c.breaker.failure() {
		c.logger.Warn("Engine unreachable, pausing calls",
			zap.Duration("cooldown", c.breaker.cooldown),
			zap.Error(err),
		)
	}
}
