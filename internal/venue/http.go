package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"YieldKeeper/internal/conversion"
)

// HTTPVenue implements Venue against a venue adapter's REST API.
//
// The adapter reports amounts in the venue asset's own decimals; they are
// rescaled to pool base units before being returned.
type HTTPVenue struct {
	VenueName string
	BaseURL   string
	APIKey    string
	Decimals  uint8
	Policy    conversion.Policy
	Client    *http.Client
}

// NewHTTPVenue creates a venue client with optional proxy support.
func NewHTTPVenue(name, baseURL, apiKey, proxyURL string, decimals, baseDecimals uint8) *HTTPVenue {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPVenue{
		VenueName: name,
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Decimals:  decimals,
		Policy:    conversion.Policy{BaseDecimals: baseDecimals},
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (v *HTTPVenue) Name() string { return v.VenueName }

// amountResponse is the JSON shape returned by the adapter.
type amountResponse struct {
	Amount uint64 `json:"amount"`
}

func (v *HTTPVenue) Harvest(ctx context.Context) (uint64, error) {
	return v.amount(ctx, http.MethodPost, "/api/v1/harvest")
}

func (v *HTTPVenue) Holdings(ctx context.Context) (uint64, error) {
	return v.amount(ctx, http.MethodGet, "/api/v1/holdings")
}

func (v *HTTPVenue) amount(ctx context.Context, method, path string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, method, v.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if v.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.APIKey)
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", v.VenueName, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%s %s: status %d, body: %s", v.VenueName, path, resp.StatusCode, string(body))
	}
	var out amountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%s %s: decode: %w", v.VenueName, path, err)
	}
	amount, err := v.Policy.ToBase(out.Amount, v.Decimals)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", v.VenueName, path, err)
	}
	return amount, nil
}
