// Package fiscaldata is a minimal client for the FiscalData auctions_query
// endpoint: one GET per page, no retries.
package fiscaldata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Source identifies captured pages in their sidecars.
const Source = "FISCALDATA_AUCTIONS_QUERY"

// Fields is the fixed projection requested from the API.
var Fields = []string{
	"cusip",
	"security_type",
	"security_term",
	"auction_date",
	"issue_date",
	"maturity_date",
	"reopening",
	"bid_to_cover_ratio",
	"high_yield",
	"high_discnt_rate",
	"avg_med_discnt_rate",
	"high_investment_rate",
	"avg_med_investment_rate",
	"avg_med_yield",
	"indirect_bidder_accepted",
	"total_accepted",
}

// RequestParams are the query parameters of a single page request. The JSON
// form is what page sidecars record.
type RequestParams struct {
	Format     string `json:"format"`
	Fields     string `json:"fields"`
	Filter     string `json:"filter"`
	Sort       string `json:"sort"`
	PageNumber int    `json:"page[number]"`
	PageSize   int    `json:"page[size]"`
}

// NewRequestParams builds the parameters for page n (1-based) of the
// inclusive auction_date range [start, end].
func NewRequestParams(start, end string, page, pageSize int) RequestParams {
	return RequestParams{
		Format:     "json",
		Fields:     strings.Join(Fields, ","),
		Filter:     fmt.Sprintf("auction_date:gte:%s,auction_date:lte:%s", start, end),
		Sort:       "auction_date,security_term",
		PageNumber: page,
		PageSize:   pageSize,
	}
}

// Values encodes the parameters for a URL query string.
func (p RequestParams) Values() url.Values {
	v := url.Values{}
	v.Set("format", p.Format)
	v.Set("fields", p.Fields)
	v.Set("filter", p.Filter)
	v.Set("sort", p.Sort)
	v.Set("page[number]", strconv.Itoa(p.PageNumber))
	v.Set("page[size]", strconv.Itoa(p.PageSize))
	return v
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables spacing
	HTTPClient        *http.Client
}

// Client issues page requests against the auctions endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a new client.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		http:     hc,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Response is a successful page response.
type Response struct {
	URL  string
	Body []byte
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Get performs exactly one GET for the given parameters.
func (c *Client) Get(ctx context.Context, params RequestParams) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u.RawQuery = params.Values().Encode()
	reqURL := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", reqURL, err)
	}

	return &Response{URL: reqURL, Body: body}, nil
}
