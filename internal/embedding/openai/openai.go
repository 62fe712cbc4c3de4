package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"paperqa/internal/embedding"
	"paperqa/internal/llm"
	"paperqa/internal/retry"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	defaultDim     = 1536
	batchSize      = 64
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Dimension    int
	Timeout      time.Duration
	RequestsPerS float64
	HTTPClient   *http.Client
}

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	api       *goopenai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
	policy    retry.Policy
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embeddings: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultDim
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		api:       llm.NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.HTTPClient),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		limiter:   llm.NewLimiter(cfg.RequestsPerS),
		policy:    retry.Once,
	}, nil
}

// Name includes the model so that switching models invalidates old indexes.
func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", embedding.ErrEmptyInput)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", embedding.ErrEmptyInput)
	}
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	var resp goopenai.EmbeddingResponse
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input:      batch,
			Model:      goopenai.EmbeddingModel(c.model),
			Dimensions: c.dimension,
		})
		return llm.Classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", embedding.ErrEmbeddingFailed, len(resp.Data), len(batch))
	}
	out := make([][]float32, len(batch))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		if len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: dimension %d, want %d", embedding.ErrEmbeddingFailed, len(d.Embedding), c.dimension)
		}
		out[idx] = d.Embedding
	}
	return out, nil
}
