package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Config wires a Client.
type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:8000/api.
	BaseURL string
	// Origin is the web origin used to build share links.
	Origin     string
	HTTPClient *http.Client
	Session    SessionStore
	Logger     *zap.Logger
	Navigator  Navigator
	// Location returns the caller's current route; nil means "/".
	Location func() string
	Rules    UnauthorizedRules
}

// Client talks to the document sharing API. Every failure it returns is an *APIError.
type Client struct {
	baseURL   string
	origin    string
	http      *http.Client
	session   SessionStore
	logger    *zap.Logger
	navigator Navigator
	location  func() string
	rules     UnauthorizedRules
}

// New builds a client with defaults for unset fields.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Session == nil {
		cfg.Session = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = func() string { return "/" }
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultUnauthorizedRules()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		origin:    strings.TrimRight(cfg.Origin, "/"),
		http:      cfg.HTTPClient,
		session:   cfg.Session,
		logger:    cfg.Logger,
		navigator: cfg.Navigator,
		location:  cfg.Location,
		rules:     cfg.Rules,
	}
}

// Session returns the stored session, or nil when anonymous.
func (c *Client) Session() (*Session, error) {
	return c.session.Load()
}

// ShareLink builds the public link for token using the configured origin.
func (c *Client) ShareLink(token string) string {
	return ShareLink(c.origin, token)
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, payload interface{}) (request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return request{}, ValidationError(fmt.Sprintf("encode request: %v", err))
	}
	return request{method: method, path: path, body: bytes.NewReader(raw), contentType: "application/json"}, nil
}

// envelope mirrors the server response wrapper. Older backends answer with the
// bare payload, which is decoded directly.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
}

// Pagination is returned by list endpoints.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// do sends req and decodes the data payload into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out interface{}) (*Pagination, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	payload, pagination := unwrap(body)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, &APIError{Kind: KindInternal, Status: resp.StatusCode, Message: "unexpected response payload", Err: err}
	}
	return pagination, nil
}

// Payload returns the data member of an enveloped success body, or the body
// itself when it is not enveloped.
func Payload(body []byte) []byte {
	payload, _ := unwrap(body)
	return payload
}

func unwrap(body []byte) ([]byte, *Pagination) {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		return env.Data, env.Pagination
	}
	return body, nil
}

// send executes req and returns the response when the status is 2xx. The
// caller owns the body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, &APIError{Kind: KindInternal, Message: "build request", Err: err}
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	session, err := c.session.Load()
	if err != nil {
		c.logger.Warn("failed to load session", zap.Error(err))
	}
	if session != nil && session.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", req.method), zap.String("path", req.path), zap.Error(err))
		return nil, networkError(err)
	}
	c.logger.Debug("request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := normalizeError(resp.StatusCode, body)
	if apiErr.Kind == KindUnauthorized {
		c.handleUnauthorized(req.path)
	}
	return nil, apiErr
}

func (c *Client) handleUnauthorized(apiPath string) {
	class := ClassifyRoute(apiPath, c.location())
	if c.rules.Action(class) != ActionClearAndRedirect {
		return
	}
	if err := c.session.Clear(); err != nil {
		c.logger.Warn("failed to clear session", zap.Error(err))
	}
	if c.navigator != nil {
		c.navigator.Navigate(LandingRoute)
	}
}
