// Package pricing talks to the external token symbol and price services.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// errNotFound is returned by get when the service answers 404.
var errNotFound = errors.New("not found")

type httpClient struct {
	base    string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(baseURL, apiKey string, ratePerSec float64) (*httpClient, error) {
	if baseURL == "" {
		return nil, errors.New("base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &httpClient{
		base:    strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 8 * time.Second},
		limiter: rate.NewLimiter(limit, 10),
	}, nil
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SymbolClient resolves token metadata over HTTP:
// GET {base}/symbol/{protocol}/{token} -> {"symbol":"USDC","decimals":6}.
type SymbolClient struct {
	http *httpClient
}

// NewSymbolClient builds a symbol service client. ratePerSec <= 0 disables limiting.
func NewSymbolClient(baseURL, apiKey string, ratePerSec float64) (*SymbolClient, error) {
	c, err := newHTTPClient(baseURL, apiKey, ratePerSec)
	if err != nil {
		return nil, fmt.Errorf("symbol client: %w", err)
	}
	return &SymbolClient{http: c}, nil
}

// Metadata returns nil, nil for tokens the service does not know.
func (c *SymbolClient) Metadata(ctx context.Context, token, protocol string) (*sale.TokenMetadata, error) {
	var body struct {
		Symbol   string `json:"symbol"`
		Decimals *uint8 `json:"decimals"`
	}
	path := "/symbol/" + url.PathEscape(protocol) + "/" + url.PathEscape(token)
	err := c.http.get(ctx, path, nil, &body)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol %s/%s: %w", protocol, token, err)
	}
	if body.Decimals == nil {
		return nil, nil
	}
	return &sale.TokenMetadata{Symbol: body.Symbol, Decimals: *body.Decimals}, nil
}

// PriceClient resolves historical USD prices over HTTP:
// GET {base}/price/{protocol}/{token}?timestamp=N -> {"price":"2.50"}.
type PriceClient struct {
	http *httpClient
}

// NewPriceClient builds a price service client. ratePerSec <= 0 disables limiting.
func NewPriceClient(baseURL, apiKey string, ratePerSec float64) (*PriceClient, error) {
	c, err := newHTTPClient(baseURL, apiKey, ratePerSec)
	if err != nil {
		return nil, fmt.Errorf("price client: %w", err)
	}
	return &PriceClient{http: c}, nil
}

// Quote returns nil, nil when the service has no price for the token at timestamp.
func (c *PriceClient) Quote(ctx context.Context, token, protocol string, timestamp uint64) (*sale.PriceQuote, error) {
	var body struct {
		Price *decimal.Decimal `json:"price"`
	}
	path := "/price/" + url.PathEscape(protocol) + "/" + url.PathEscape(token)
	q := url.Values{"timestamp": {strconv.FormatUint(timestamp, 10)}}
	err := c.http.get(ctx, path, q, &body)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("price %s/%s@%d: %w", protocol, token, timestamp, err)
	}
	if body.Price == nil {
		return nil, nil
	}
	return &sale.PriceQuote{Price: *body.Price}, nil
}
