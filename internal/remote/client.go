package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/cadence/internal/model"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept in Error.Message.
const maxErrorBody = 4 << 10

// Client talks to the REST service.
// Safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HTTPClient exposes the underlying client so tests can intercept it.
func (c *Client) HTTPClient() *http.Client { return c.http }

// List fetches every record of kind. query is appended verbatim and may be nil.
func (c *Client) List(ctx context.Context, kind model.Kind, query url.Values) ([]model.Record, error) {
	endpoint, err := kind.Endpoint()
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, query, nil, &raw); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(raw))
	for _, item := range raw {
		rec, err := decodeRecord(kind, item)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get fetches one record by server id.
func (c *Client) Get(ctx context.Context, kind model.Kind, id model.ID) (model.Record, error) {
	path, err := itemPath(kind, id)
	if err != nil {
		return model.Record{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return model.Record{}, err
	}
	return decodeRecord(kind, raw)
}

// Create posts a new entity and returns the server's record with its id.
func (c *Client) Create(ctx context.Context, kind model.Kind, entity model.Entity) (model.Record, error) {
	endpoint, err := kind.Endpoint()
	if err != nil {
		return model.Record{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, endpoint, nil, entity, &raw); err != nil {
		return model.Record{}, err
	}
	rec, err := decodeRecord(kind, raw)
	if err != nil {
		return model.Record{}, fmt.Errorf("create %s: %w", kind, err)
	}
	if rec.ID.IsZero() {
		return model.Record{}, fmt.Errorf("create %s: response carries no id", kind)
	}
	return rec, nil
}

// Update replaces the entity under id. An empty response body keeps the
// entity that was sent.
func (c *Client) Update(ctx context.Context, kind model.Kind, id model.ID, entity model.Entity) (model.Record, error) {
	path, err := itemPath(kind, id)
	if err != nil {
		return model.Record{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, path, nil, entity, &raw); err != nil {
		return model.Record{}, err
	}
	if len(raw) == 0 {
		return model.Record{ID: id, Entity: entity, Synced: true}, nil
	}
	rec, err := decodeRecord(kind, raw)
	if err != nil {
		return model.Record{}, fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if rec.ID.IsZero() {
		rec.ID = id
	}
	return rec, nil
}

// Delete removes the record under id.
func (c *Client) Delete(ctx context.Context, kind model.Kind, id model.ID) error {
	path, err := itemPath(kind, id)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func itemPath(kind model.Kind, id model.ID) (string, error) {
	endpoint, err := kind.Endpoint()
	if err != nil {
		return "", err
	}
	if id.IsPending() {
		return "", fmt.Errorf("%s %s: pending id has no server counterpart", kind, id)
	}
	if id.IsZero() {
		return "", errors.New("empty id")
	}
	return endpoint + "/" + url.PathEscape(id.ServerID()), nil
}

// do issues one request. out may be nil; a *json.RawMessage receives the raw
// body, anything else is JSON-decoded.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	op := method + " " + path

	u := *c.baseURL
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return transportError(op, fmt.Errorf("bearer token: %w", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "op", op, "error", err)
		return transportError(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, bytes.TrimSpace(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, fmt.Errorf("read body: %w", err))
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *json.RawMessage:
		*dst = bytes.TrimSpace(data)
		return nil
	default:
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("%s: decode body: %w", op, err)
		}
		return nil
	}
}

// decodeRecord reads a server representation: the entity fields plus "id".
func decodeRecord(kind model.Kind, data []byte) (model.Record, error) {
	var head struct {
		ID model.ID `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return model.Record{}, fmt.Errorf("decode id: %w", err)
	}
	entity, err := model.DecodeEntity(kind, data)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{ID: head.ID, Entity: entity, Synced: true}, nil
}
