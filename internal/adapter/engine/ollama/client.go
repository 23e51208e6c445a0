package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/orator/internal/adapter/engine"
	"github.com/bnema/orator/internal/port"
)

type Timeouts struct {
	Probe    time.Duration
	List     time.Duration
	Generate time.Duration
	Pull     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Probe:    5 * time.Second,
		List:     10 * time.Second,
		Generate: 30 * time.Second,
		Pull:     10 * time.Minute,
	}
}

type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client talks to the Ollama HTTP API. Every call is bounded by its own timeout
// on top of whatever deadline the caller's context carries.
type Client struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
	options  Options
}

func NewClient(baseURL string, timeouts Timeouts) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeouts: timeouts,
		options:  Options{Temperature: 0.3, TopP: 0.9},
	}
}

func (c *Client) Endpoint() string {
	return c.baseURL
}

// Available is the cheap health probe: the tags endpoint answering 200.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Probe)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.List)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, engine.StatusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, decodeError(ctx, "tags", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) PullModel(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Pull)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/api/pull", pullRequest{Name: model, Stream: false})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return engine.StatusError(resp)
	}
	return nil
}

// Generate runs a single non-streaming completion and returns the trimmed text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Generate)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/api/generate", generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", engine.StatusError(resp)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", decodeError(ctx, "generate", err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("%w: response field missing", port.ErrMalformedResponse)
	}
	return strings.TrimSpace(*out.Response), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, engine.Classify(err)
	}
	return resp, nil
}

// decodeError blames the deadline when the body was cut short by it.
func decodeError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return engine.Classify(ctx.Err())
	}
	return fmt.Errorf("%w: decode %s: %w", port.ErrMalformedResponse, what, err)
}

var _ port.TextGenerator = (*Client)(nil)
