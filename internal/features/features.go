package features

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
)

type Kind string

const (
	Chat    Kind = "chat"
	Speak   Kind = "speak"
	Imagine Kind = "imagine"
	Lipsync Kind = "lipsync"
)

var (
	ErrNotConfigured = errors.New("feature backend not configured")
	ErrEmptyResult   = errors.New("feature backend returned no output")
)

type Request struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url,omitempty"`
	UserID   string `json:"user_id"`
	GuildID  string `json:"guild_id"`
	Locale   string `json:"locale,omitempty"`
}

// Result is the backend output: text for chat, a media URL for the others.
type Result struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, kind Kind, req Request) (*Result, error)
}

type Config struct {
	APIKey     string
	URLs       map[Kind]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	apiKey string
	urls   map[Kind]string
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	urls := make(map[Kind]string, len(cfg.URLs))
	for k, v := range cfg.URLs {
		if v = strings.TrimSpace(v); v != "" {
			urls[k] = v
		}
	}
	return &Client{apiKey: cfg.APIKey, urls: urls, http: httpClient}
}

func (c *Client) Configured(kind Kind) bool {
	_, ok := c.urls[kind]
	return ok
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Run(ctx context.Context, kind Kind, req Request) (*Result, error) {
	endpoint, ok := c.urls[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotConfigured)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: status %d: %s", kind, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%s: status %d", kind, resp.StatusCode)
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", kind, err)
	}
	if strings.TrimSpace(out.Text) == "" && strings.TrimSpace(out.URL) == "" {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyResult)
	}
	return &out, nil
}
