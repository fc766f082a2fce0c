// Package ultradar is a client for the ultradar HTTP API.
package ultradar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/analytics"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/resilience"
	"github.com/sells-group/ultradar/internal/server"
	"github.com/sells-group/ultradar/internal/shape"
	"github.com/sells-group/ultradar/internal/validation"
)

// APIError is a non-2xx answer carrying the server's {error} message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ultradar: status %d: %s", e.Status, e.Message)
}

// MalformedResponseError is a body that should have been JSON and was not.
// An empty body is not malformed; it means no data.
type MalformedResponseError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ultradar: malformed response from %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetry replaces the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// Client calls one ultradar API.
type Client struct {
	base  string
	http  *http.Client
	retry resilience.RetryConfig
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: SanitizeBaseURL(baseURL),
		http: &http.Client{
			Timeout: 3 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the sanitized base URL.
func (c *Client) BaseURL() string { return c.base }

// SanitizeBaseURL trims whitespace and trailing slashes.
func SanitizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// BuildURL joins base and path and encodes params, leaving out empty values.
// Parameters are emitted in key order.
func BuildURL(base, path string, params map[string]string) string {
	u := SanitizeBaseURL(base) + "/" + strings.TrimLeft(path, "/")

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return u
	}
	sort.Strings(keys)
	q := make([]string, 0, len(keys))
	for _, k := range keys {
		q = append(q, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return u + "?" + strings.Join(q, "&")
}

// Health returns the /health payload.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stores lists store names.
func (c *Client) Stores(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := c.get(ctx, "/stores", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SlotOfDay returns one store's slots on day. A malformed day is rejected
// before any request is sent.
func (c *Client) SlotOfDay(ctx context.Context, store, day string) ([]shape.SlotRecord, error) {
	if strings.TrimSpace(store) == "" {
		return nil, validation.Required("store", "store and day required")
	}
	if err := analytics.CheckDay(day); err != nil {
		return nil, err
	}
	out := []shape.SlotRecord{}
	if err := c.get(ctx, "/slot-of-day", map[string]string{"store": store, "day": day}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CurvesByDay returns the chart series for day.
func (c *Client) CurvesByDay(ctx context.Context, day string) (shape.Curves, error) {
	if err := analytics.CheckDay(day); err != nil {
		return shape.Curves{}, err
	}
	out := shape.Curves{Labels: []string{}, Datasets: []shape.Dataset{}}
	if err := c.get(ctx, "/curves-by-day", map[string]string{"day": day}, &out); err != nil {
		return shape.Curves{}, err
	}
	return out, nil
}

// ByWeek returns the flat weekly records.
func (c *Client) ByWeek(ctx context.Context, week int) ([]shape.WeekRecord, error) {
	if err := analytics.CheckWeek(week); err != nil {
		return nil, err
	}
	out := []shape.WeekRecord{}
	if err := c.get(ctx, "/by-week", map[string]string{"weeknum": strconv.Itoa(week)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Heatmap returns the weekly records grouped by the server.
func (c *Client) Heatmap(ctx context.Context, week int) (shape.Heatmap, error) {
	if err := analytics.CheckWeek(week); err != nil {
		return shape.Heatmap{}, err
	}
	var out shape.Heatmap
	params := map[string]string{"weeknum": strconv.Itoa(week), "view": "heatmap"}
	if err := c.get(ctx, "/by-week", params, &out); err != nil {
		return shape.Heatmap{}, err
	}
	return out, nil
}

// Strategies lists stored strategies.
func (c *Client) Strategies(ctx context.Context, prefix string, summary bool) ([]docstore.Entry, error) {
	return c.list(ctx, "/strategies", prefix, summary)
}

// Exclusions lists stored exclusions.
func (c *Client) Exclusions(ctx context.Context, prefix string, summary bool) ([]docstore.Entry, error) {
	return c.list(ctx, "/exclusions", prefix, summary)
}

// Strategy fetches one strategy document.
func (c *Client) Strategy(ctx context.Context, key string) (*docstore.Object, error) {
	if strings.TrimSpace(key) == "" {
		return nil, docstore.ErrNoObjectKey
	}
	var out docstore.Object
	if err := c.get(ctx, "/strategy", map[string]string{"key": key}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutStrategy creates or edits a strategy.
func (c *Client) PutStrategy(ctx context.Context, req server.StrategyRequest) (*server.PutResponse, error) {
	var out server.PutResponse
	if err := c.post(ctx, "/strategies", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewStrategy asks the server what a strategy would do.
func (c *Client) PreviewStrategy(ctx context.Context, req server.StrategyRequest) (*server.PreviewResponse, error) {
	var out server.PreviewResponse
	if err := c.post(ctx, "/strategies/preview", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutExclusion creates an exclusion.
func (c *Client) PutExclusion(ctx context.Context, form validation.ExclusionForm) (*server.PutResponse, error) {
	var out server.PutResponse
	if err := c.post(ctx, "/exclusions", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) list(ctx context.Context, path, prefix string, summary bool) ([]docstore.Entry, error) {
	params := map[string]string{"prefix": prefix}
	if summary {
		params["summary"] = "true"
	}
	target := BuildURL(c.base, path, params)
	body, status, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	items, err := NormalizeList(body)
	if err != nil {
		return nil, &MalformedResponseError{URL: target, Status: status, Body: snippet(body), Err: err}
	}
	out := make([]docstore.Entry, 0, len(items))
	for _, item := range items {
		var e docstore.Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, &MalformedResponseError{URL: target, Status: status, Body: snippet(item), Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	return c.call(ctx, http.MethodGet, BuildURL(c.base, path, params), nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "ultradar: marshal request")
	}
	return c.call(ctx, http.MethodPost, BuildURL(c.base, path, nil), b, out)
}

// call sends one request and decodes its body into out. An empty body leaves
// out untouched.
func (c *Client) call(ctx context.Context, method, target string, body []byte, out any) error {
	resp, status, err := c.do(ctx, method, target, body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return &MalformedResponseError{URL: target, Status: status, Body: snippet(resp), Err: err}
	}
	return nil
}

// do sends the request, retrying transient failures, and turns non-2xx
// answers into *APIError.
func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, int, error) {
	type result struct {
		body   []byte
		status int
	}
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return result{}, eris.Wrap(err, "ultradar: create request")
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return result{}, eris.Wrapf(err, "ultradar: %s %s", method, target)
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, eris.Wrap(err, "ultradar: read response body")
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return result{body: b, status: resp.StatusCode}, nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(b)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return result{}, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return result{}, apiErr
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}

func errorMessage(b []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return snippet(b)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
