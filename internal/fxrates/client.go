// Package fxrates fetches spot conversion rates used to convert addon
// prices (USD) into the booking currency. Callers treat a failed lookup as
// rate 1 rather than aborting checkout.
package fxrates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/domain"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(cfg config.FXConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the latest base→quote conversion rate.
func (c *Client) Rate(ctx context.Context, base, quote string) (float64, error) {
	params := url.Values{}
	params.Set("base", base)
	params.Set("symbols", quote)
	if c.apiKey != "" {
		params.Set("access_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.UpstreamError{Provider: "fx", Msg: "rate request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, domain.UpstreamError{Provider: "fx", Msg: fmt.Sprintf("rate request returned %s", resp.Status)}
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, domain.UpstreamError{Provider: "fx", Msg: "decode rate response", Err: err}
	}

	rate, ok := body.Rates[quote]
	if !ok || rate <= 0 {
		return 0, domain.UpstreamError{Provider: "fx", Msg: fmt.Sprintf("no rate for %s/%s", base, quote)}
	}
	return rate, nil
}
