package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/searchterm-cli/internal/resilience"
)

const (
	defaultBaseURL    = "https://googleads.googleapis.com"
	defaultAPIVersion = "v18"
)

// Client performs Google Ads API query operations. The pipeline depends only
// on this request/response shape, never on transport detail, so tests swap
// in a fake.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Row, error)
}

// SearchRequest identifies the target account and the GAQL query to run.
type SearchRequest struct {
	CustomerID      string
	LoginCustomerID string
	Query           string
}

// Row is a single result row. Field values are addressed by their REST
// field path (e.g. "searchTermView.searchTerm", "metrics.impressions").
type Row struct {
	data gjson.Result
}

// Get returns the string form of the value at the given field path, or ""
// when the field is absent.
func (r Row) Get(path string) string {
	return r.data.Get(path).String()
}

// GetInt returns the integer value at the given field path, or 0.
func (r Row) GetInt(path string) int64 {
	return r.data.Get(path).Int()
}

// GetFloat returns the float value at the given field path, or 0.
func (r Row) GetFloat(path string) float64 {
	return r.data.Get(path).Float()
}

// RowFromJSON builds a Row from a raw JSON object. Used by tests and by
// fake clients.
func RowFromJSON(raw string) Row {
	return Row{data: gjson.Parse(raw)}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithAPIVersion overrides the default API version.
func WithAPIVersion(version string) Option {
	return func(c *httpClient) {
		c.apiVersion = version
	}
}

// WithHTTPClient overrides the default http.Client. This also bypasses the
// OAuth transport, so it is primarily useful for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the default retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	creds      Credentials
	baseURL    string
	apiVersion string
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a Google Ads API client authenticated with the given
// credentials via the OAuth2 refresh-token flow.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:      creds,
		baseURL:    defaultBaseURL,
		apiVersion: defaultAPIVersion,
		// Google Ads enforces per-developer-token QPS; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: creds.transport(),
			Timeout:   120 * time.Second,
		}
	}
	return c
}

type searchStreamRequest struct {
	Query string `json:"query"`
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]Row, error) {
	body, err := json.Marshal(searchStreamRequest{Query: req.Query})
	if err != nil {
		return nil, eris.Wrap(err, "googleads: marshal request")
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("googleads", "searchStream")

	return resilience.Do(ctx, retry, func(ctx context.Context) ([]Row, error) {
		return c.searchOnce(ctx, req, body)
	})
}

func (c *httpClient) searchOnce(ctx context.Context, req SearchRequest, body []byte) ([]Row, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "googleads: rate limit wait")
	}

	url := c.baseURL + "/" + c.apiVersion + "/customers/" + req.CustomerID + "/googleAds:searchStream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "googleads: create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("developer-token", c.creds.DeveloperToken)
	if req.LoginCustomerID != "" {
		httpReq.Header.Set("login-customer-id", req.LoginCustomerID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("googleads: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	// searchStream responds with an array of batches, each holding a
	// "results" array of rows.
	var rows []Row
	for _, batch := range gjson.ParseBytes(respBody).Array() {
		for _, result := range batch.Get("results").Array() {
			rows = append(rows, Row{data: result})
		}
	}
	return rows, nil
}
