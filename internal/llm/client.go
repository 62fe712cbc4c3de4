// Package llm talks to an OpenAI-compatible chat-completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paperqa/internal/retry"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.0-flash"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// Config configures the chat-completions client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	Timeout      time.Duration
	RequestsPerS float64
	HTTPClient   *http.Client
}

// Client implements domain.Generator over go-openai.
type Client struct {
	api     *openai.Client
	model   string
	temp    float32
	timeout time.Duration
	limiter *rate.Limiter
	policy  retry.Policy
	log     *zap.Logger
}

// NewOpenAIClient builds a go-openai client for any OpenAI-compatible base URL.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration, hc *http.Client) *openai.Client {
	oaiCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oaiCfg.BaseURL = baseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	oaiCfg.HTTPClient = hc
	return openai.NewClientWithConfig(oaiCfg)
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		api:     NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.HTTPClient),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: cfg.Timeout,
		limiter: NewLimiter(cfg.RequestsPerS),
		policy:  retry.Once,
		log:     log.Named("llm"),
	}
}

// NewLimiter returns a token bucket allowing rps requests per second, or an
// unlimited one when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Generate sends prompt as a single user message and returns the trimmed reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	start := time.Now()
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: c.temp,
		})
		if err != nil {
			c.log.Warn("chat completion failed", zap.String("model", c.model), zap.Error(err))
			return Classify(err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		out = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.log.Debug("chat completion", zap.String("model", c.model), zap.Duration("took", time.Since(start)))
	return out, nil
}

// Classify marks network failures, 429 and 5xx responses as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isTransientStatus(apiErr.HTTPStatusCode) {
		return retry.MarkTransient(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isTransientStatus(reqErr.HTTPStatusCode) {
		return retry.MarkTransient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.MarkTransient(err)
	}
	return err
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
