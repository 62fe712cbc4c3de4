// Package dictionary looks up English word definitions on dictionaryapi.dev.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paperqa/internal/retry"
)

const (
	DefaultBaseURL = "https://api.dictionaryapi.dev/api/v2/entries/en"
	maxDefinitions = 3
	maxBody        = 1 << 20
)

var errStatus = errors.New("unexpected status")

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RequestsPerS float64
	HTTPClient   *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerS), 1)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		limiter: limiter,
		policy:  retry.Once,
		log:     log.Named("dictionary"),
	}
}

type entry struct {
	Meanings []struct {
		Definitions []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// Define returns a display message for term. Failures are reported in the
// message rather than as an error.
func (c *Client) Define(ctx context.Context, term string) string {
	body, err := c.fetch(ctx, term)
	if err != nil {
		c.log.Warn("lookup failed", zap.String("term", term), zap.Error(err))
		return fmt.Sprintf("Failed to fetch definition for '%s'.", term)
	}
	defs := parseDefinitions(body)
	if len(defs) == 0 {
		c.log.Info("no definition", zap.String("term", term))
		return fmt.Sprintf("No definition found for '%s'.", term)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Definitions of '%s':", term)
	for _, d := range defs {
		b.WriteString("\n- ")
		b.WriteString(d)
	}
	return b.String()
}

func (c *Client) fetch(ctx context.Context, term string) ([]byte, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(term)
	var body []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) {
				return retry.MarkTransient(err)
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
			err := fmt.Errorf("%w: %s", errStatus, resp.Status)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.MarkTransient(err)
			}
			return err
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return err
	})
	return body, err
}

// parseDefinitions returns the first definitions of the first entry, across meanings.
func parseDefinitions(body []byte) []string {
	var entries []entry
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		return nil
	}
	var out []string
	for _, m := range entries[0].Meanings {
		for _, d := range m.Definitions {
			if strings.TrimSpace(d.Definition) == "" {
				continue
			}
			out = append(out, d.Definition)
			if len(out) == maxDefinitions {
				return out
			}
		}
	}
	return out
}
