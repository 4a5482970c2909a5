// Package client is the Go client of a field daemon: claims and round
// queries over HTTP, plus viewer sessions that keep a local copy of the grid.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/23skdu/field/internal/api"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/round"
)

// Client talks to one daemon as one user.
type Client struct {
	baseURL    string
	user       string
	httpClient *http.Client

	blobBaseURL string
	blobPrefix  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUser sets the identity sent with claims.
func WithUser(id string) Option {
	return func(c *Client) { c.user = id }
}

// WithBlobs points viewers at a blob host other than the daemon, such as a
// CDN in front of the bucket.
func WithBlobs(baseURL, prefix string) Option {
	return func(c *Client) {
		c.blobBaseURL = baseURL
		c.blobPrefix = prefix
	}
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.blobBaseURL == "" {
		c.blobBaseURL = c.baseURL + "/blobs"
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(api.UserHeader, c.user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var e struct {
			Error string `json:"error"`
			Type  string `json:"type"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Type = e.Error, e.Type
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func roundPath(id string, rest ...string) string {
	return "/v1/rounds/" + url.PathEscape(id) + strings.Join(rest, "")
}

// CreateRound starts a new round; zero fields take server defaults.
func (c *Client) CreateRound(ctx context.Context, cfg round.Config) (round.Config, error) {
	var out round.Config
	err := c.do(ctx, http.MethodPost, "/v1/rounds", cfg, &out)
	return out, err
}

// Round returns a round and its published sequence numbers. Use "current"
// for the latest round.
func (c *Client) Round(ctx context.Context, id string) (api.RoundResponse, error) {
	var out api.RoundResponse
	err := c.do(ctx, http.MethodGet, roundPath(id), nil, &out)
	return out, err
}

// Claim claims coords and returns the cells won in request order.
func (c *Client) Claim(ctx context.Context, roundID string, coords []core.XY) (api.ClaimResponse, error) {
	var out api.ClaimResponse
	err := c.do(ctx, http.MethodPost, roundPath(roundID, "/claims"), api.ClaimRequest{Coords: coords}, &out)
	return out, err
}

// Score returns the standing of a round, from the rolling leaderboard or,
// when precise, from the per-partition tallies.
func (c *Client) Score(ctx context.Context, roundID string, precise bool) (api.ScoreResponse, error) {
	p := roundPath(roundID, "/score")
	if precise {
		p += "?precise=1"
	}
	var out api.ScoreResponse
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

func (c *Client) wsURL(roundID string) string {
	u := c.baseURL + roundPath(roundID, "/ws")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
