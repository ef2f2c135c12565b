// Package anthropic is a minimal client for the Anthropic messages API.
// It returns the assistant's text and a typed error the caller can classify
// for retry decisions.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"options-trading-bot/internal/trace"
)

const defaultEndpoint = "https://api.anthropic.com/v1/messages"

// Error is an HTTP-level API failure. Status 0 means the request never got
// a response.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("anthropic request failed: %v", e.Err)
	}
	return fmt.Sprintf("anthropic http %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status of an API error, or -1 for other errors.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return -1
}

type Config struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
}

// NewClient reads the API key from ANTHROPIC_API_KEY at request time, so a
// process started without the key fails per-call rather than at startup.
// ANTHROPIC_API_ENDPOINT overrides the endpoint for proxies.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	endpoint := defaultEndpoint
	if ep := os.Getenv("ANTHROPIC_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one user turn and returns the assistant's text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "anthropic-api-call")
	defer span.End()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return "", &Error{Status: http.StatusUnauthorized, Body: "ANTHROPIC_API_KEY missing"}
	}

	body, _ := json.Marshal(request{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Err: err}
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return "", &Error{Status: resp.StatusCode, Body: string(respBytes)}
	}

	var r response
	if err := json.Unmarshal(respBytes, &r); err != nil {
		return "", &Error{Status: resp.StatusCode, Body: "unparsable response body", Err: err}
	}
	if r.Error != nil {
		return "", &Error{Status: resp.StatusCode, Body: r.Error.Message}
	}
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", &Error{Status: resp.StatusCode, Body: "response contained no text block"}
}
