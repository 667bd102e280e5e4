// Package supabase provides a client for the Supabase REST (PostgREST),
// Auth, Storage and Realtime APIs used as the marketplace's remote database.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	maxResponseBytes = 16 << 20 // 16 MiB
	defaultTimeout   = 30 * time.Second
)

// Client is a Supabase API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	transport  *ResilientTransport
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// HTTPClient overrides the default client. Resilience is ignored when set.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Resilience enables retries and the circuit breaker when non-nil.
	Resilience *ResilienceConfig
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("supabase URL %q is invalid", cfg.URL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch {
	case cfg.HTTPClient != nil:
		c.httpClient = cfg.HTTPClient
	case cfg.Resilience != nil:
		c.transport = NewResilientTransport(nil, *cfg.Resilience)
		c.httpClient = &http.Client{Timeout: timeout, Transport: c.transport}
	default:
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// URL returns the project base URL.
func (c *Client) URL() string {
	return c.baseURL
}

// APIKey returns the project key used for requests.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Transport returns the resilient transport, or nil when resilience is off.
func (c *Client) Transport() *ResilientTransport {
	return c.transport
}

// =============================================================================
// Access tokens
// =============================================================================

type accessTokenKey struct{}

// WithAccessToken attaches a user access token to ctx. Requests made with
// that context are executed as the user so Supabase RLS policies apply.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the user access token in ctx, if any.
func AccessTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(accessTokenKey{}).(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client:  c,
		table:   table,
		columns: "*",
	}
}

// QueryBuilder builds PostgREST queries. Builders are single use.
type QueryBuilder struct {
	client     *Client
	table      string
	columns    string
	filters    url.Values
	orders     []string
	limit      int
	offset     int
	single     bool
	count      string
	onConflict string
}

func (q *QueryBuilder) addFilter(column, op string, value any) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, op+"."+FormatValue(value))
	return q
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder  { return q.addFilter(column, "eq", value) }
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder { return q.addFilter(column, "neq", value) }
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder  { return q.addFilter(column, "gt", value) }
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder { return q.addFilter(column, "gte", value) }
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder  { return q.addFilter(column, "lt", value) }
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder { return q.addFilter(column, "lte", value) }

// ILike adds a case-insensitive pattern filter. Use * as the wildcard.
func (q *QueryBuilder) ILike(column string, pattern string) *QueryBuilder {
	return q.addFilter(column, "ilike", pattern)
}

// Is adds an IS filter (null, true, false).
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.addFilter(column, "is", value)
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values []any) *QueryBuilder {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = quoteListValue(FormatValue(v))
	}
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, "in.("+strings.Join(parts, ",")+")")
	return q
}

// Contains adds an array containment filter (cs).
func (q *QueryBuilder) Contains(column string, values []string) *QueryBuilder {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = quoteListValue(v)
	}
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, "cs.{"+strings.Join(parts, ",")+"}")
	return q
}

// Or adds a raw PostgREST or=(...) expression.
func (q *QueryBuilder) Or(expr string) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add("or", "("+expr+")")
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Single expects exactly one row; zero rows yields a not-found error.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count asks PostgREST for a row count (exact, planned or estimated).
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

// OnConflict sets the conflict target for Upsert.
func (q *QueryBuilder) OnConflict(columns string) *QueryBuilder {
	q.onConflict = columns
	return q
}

func (q *QueryBuilder) tableURL(withSelect bool) string {
	params := url.Values{}
	if withSelect && q.columns != "" {
		params.Set("select", q.columns)
	}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if withSelect {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}
	if q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}

	u := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Execute runs a SELECT.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := q.client.newRequest(ctx, http.MethodGet, q.tableURL(true), nil)
	if err != nil {
		return nil, err
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if q.count != "" {
		req.Header.Set("Prefer", "count="+q.count)
	}
	return q.client.do(req)
}

// Insert inserts one row or a slice of rows and returns the representation.
func (q *QueryBuilder) Insert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, data, "return=representation")
}

// Upsert inserts or merges rows on the OnConflict target.
func (q *QueryBuilder) Upsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, data, "resolution=merge-duplicates,return=representation")
}

// Update patches the rows matched by the filters.
func (q *QueryBuilder) Update(ctx context.Context, data any) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("update on %s requires at least one filter", q.table)
	}
	return q.write(ctx, http.MethodPatch, data, "return=representation")
}

// Delete removes the rows matched by the filters.
func (q *QueryBuilder) Delete(ctx context.Context) (*Response, error) {
	if len(q.filters) == 0 {
		return nil, fmt.Errorf("delete on %s requires at least one filter", q.table)
	}
	req, err := q.client.newRequest(ctx, http.MethodDelete, q.tableURL(false), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

func (q *QueryBuilder) write(ctx context.Context, method string, data any, prefer string) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	reqURL := q.tableURL(false)
	if method == http.MethodPost || method == http.MethodPatch {
		// Ask for the columns back so callers can decode the representation.
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + "select=" + url.QueryEscape(q.columns)
	}
	req, err := q.client.newRequest(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)
	return q.client.do(req)
}

// RPC calls a Postgres function.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	var body []byte
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = data
	}
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Err returns an *Error when the response indicates failure.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	return parseError(r.Body, r.StatusCode)
}

// Total returns the row count from a Content-Range header ("0-9/42").
func (r *Response) Total() (int, bool) {
	cr := r.Headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Error is a Supabase API error.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Message)
}

// NotFound reports whether the error means "no matching row".
func (e *Error) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "PGRST116" ||
		(e.StatusCode == http.StatusNotAcceptable && e.Code == "")
}

// Conflict reports a unique-constraint violation.
func (e *Error) Conflict() bool {
	return e.StatusCode == http.StatusConflict || e.Code == "23505"
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func parseError(body []byte, statusCode int) error {
	e := &Error{StatusCode: statusCode}
	if !gjson.ValidBytes(body) {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(statusCode)
		}
		return e
	}
	parsed := gjson.ParseBytes(body)
	e.Code = parsed.Get("code").String()
	e.Details = parsed.Get("details").String()
	e.Hint = parsed.Get("hint").String()
	for _, field := range []string{"message", "msg", "error_description", "error"} {
		if v := parsed.Get(field).String(); v != "" {
			e.Message = v
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}
	return e
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, reqURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(ctx, req)
	return req, nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := AccessTokenFromContext(ctx)
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", req.URL.Path, maxResponseBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// FormatValue renders a filter value the way PostgREST expects it.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func quoteListValue(v string) string {
	if strings.ContainsAny(v, ",()\" ") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
