// Package amadeus is the typed HTTP client for the upstream GDS. The OAuth
// bearer token is cached (redis in production) and re-fetched on miss; order
// creation goes through a circuit breaker so a flapping upstream fails fast
// instead of tying up request handlers.
package amadeus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/domain"
)

type TokenCache interface {
	GetToken(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string, ttl time.Duration) error
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	tokens     TokenCache
	expirySkew time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg config.AmadeusConfig, tokens TokenCache, expirySkew time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		clientID:   cfg.ClientID,
		secret:     cfg.ClientSecret,
		tokens:     tokens,
		expirySkew: expirySkew,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "amadeus-orders",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
		}),
	}
}

// Token returns a bearer token, from cache when present, otherwise via the
// client-credentials grant. The cached TTL is the upstream expiry minus a
// safety skew.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if token, err := c.tokens.GetToken(ctx); err == nil && token != "" {
			return token, nil
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/security/oauth2/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.UpstreamError{Provider: "amadeus", Msg: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.UpstreamError{Provider: "amadeus", Msg: fmt.Sprintf("token request returned %s", resp.Status)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", domain.UpstreamError{Provider: "amadeus", Msg: "decode token response", Err: err}
	}

	if c.tokens != nil {
		ttl := time.Duration(tok.ExpiresIn)*time.Second - c.expirySkew
		if ttl > 0 {
			_ = c.tokens.SetToken(ctx, tok.AccessToken, ttl)
		}
	}
	return tok.AccessToken, nil
}

// SearchFlightOffers returns the raw offer elements from the offers search
// endpoint. Callers apply margin and airline filtering.
func (c *Client) SearchFlightOffers(ctx context.Context, q FlightSearchQuery) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.Date)
	if q.ReturnDate != "" {
		params.Set("returnDate", q.ReturnDate)
	}
	params.Set("adults", strconv.Itoa(q.Adults))
	if q.Currency != "" {
		params.Set("currencyCode", q.Currency)
	}
	if q.Max > 0 {
		params.Set("max", strconv.Itoa(q.Max))
	}

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/v2/shopping/flight-offers?"+params.Encode(), &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// PriceFlightOffer re-prices a chosen offer before booking.
func (c *Client) PriceFlightOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	payload := orderPayload{Data: orderData{Type: "flight-offers-pricing", FlightOffers: []json.RawMessage{offer}}}

	var env dataEnvelope
	if err := c.post(ctx, "/v1/shopping/flight-offers/pricing", payload, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CreateFlightOrder books the offer for the given travelers. The verbatim
// response is retained on the returned order for audit.
func (c *Client) CreateFlightOrder(ctx context.Context, offer json.RawMessage, travelers []Traveler) (*FlightOrder, error) {
	payload := orderPayload{Data: orderData{Type: "flight-order", FlightOffers: []json.RawMessage{offer}, Travelers: travelers}}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var body json.RawMessage
		if err := c.post(ctx, "/v1/booking/flight-orders", payload, &body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.UpstreamError{Provider: "amadeus", Msg: "order endpoint unavailable", Err: err}
		}
		return nil, err
	}

	body := raw.(json.RawMessage)
	var parsed orderResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.UpstreamError{Provider: "amadeus", Msg: "decode order response", Err: err}
	}
	if len(parsed.Data.FlightOffers) == 0 {
		return nil, domain.UpstreamError{Provider: "amadeus", Msg: "order response contains no flight offers"}
	}

	first := parsed.Data.FlightOffers[0]
	totalStr := first.Price.GrandTotal
	if totalStr == "" {
		totalStr = first.Price.Total
	}
	base, err := strconv.ParseFloat(totalStr, 64)
	if err != nil {
		return nil, domain.UpstreamError{Provider: "amadeus", Msg: fmt.Sprintf("unparsable order price %q", totalStr), Err: err}
	}

	reference := parsed.Data.ID
	if len(parsed.Data.AssociatedRecords) > 0 && parsed.Data.AssociatedRecords[0].Reference != "" {
		reference = parsed.Data.AssociatedRecords[0].Reference
	}

	return &FlightOrder{
		Raw:       body,
		Reference: reference,
		OfferID:   first.ID,
		BasePrice: base,
		Currency:  first.Price.Currency,
	}, nil
}

// SearchLocations looks up airports and cities by keyword.
func (c *Client) SearchLocations(ctx context.Context, keyword, subType string) ([]Location, error) {
	params := url.Values{}
	params.Set("keyword", keyword)
	if subType != "" {
		params.Set("subType", subType)
	}

	var res locationsResult
	if err := c.get(ctx, "/v1/reference-data/locations?"+params.Encode(), &res); err != nil {
		return nil, err
	}

	locations := make([]Location, 0, len(res.Data))
	for _, d := range res.Data {
		locations = append(locations, Location{
			IataCode: d.IataCode,
			Name:     d.Name,
			CityName: d.Address.CityName,
			Country:  d.Address.CountryName,
		})
	}
	return locations, nil
}

// AirlineName resolves an IATA airline code to a display name.
func (c *Client) AirlineName(ctx context.Context, code string) (string, error) {
	var res airlinesResult
	if err := c.get(ctx, "/v1/reference-data/airlines?airlineCodes="+url.QueryEscape(code), &res); err != nil {
		return "", err
	}
	if len(res.Data) == 0 {
		return "", domain.UpstreamError{Provider: "amadeus", Msg: fmt.Sprintf("unknown airline code %q", code)}
	}
	if res.Data[0].BusinessName != "" {
		return res.Data[0].BusinessName, nil
	}
	return res.Data[0].CommonName, nil
}

// SearchHotelOffers returns raw hotel offer elements for a city.
func (c *Client) SearchHotelOffers(ctx context.Context, q HotelSearchQuery) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("cityCode", q.CityCode)
	params.Set("checkInDate", q.CheckInDate)
	params.Set("checkOutDate", q.CheckOutDate)
	params.Set("adults", strconv.Itoa(q.Adults))
	if q.Currency != "" {
		params.Set("currency", q.Currency)
	}

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/v3/shopping/hotel-offers?"+params.Encode(), &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SearchTransfers returns raw car-transfer offer elements.
func (c *Client) SearchTransfers(ctx context.Context, q TransferQuery) ([]json.RawMessage, error) {
	body := map[string]interface{}{
		"startLocationCode": q.StartLocationCode,
		"endAddressLine":    q.EndAddressLine,
		"startDateTime":     q.StartDateTime,
		"passengers":        q.Passengers,
	}
	if q.Currency != "" {
		body["currencyCode"] = q.Currency
	}

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.post(ctx, "/v1/shopping/transfer-offers", body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.UpstreamError{Provider: "amadeus", Msg: fmt.Sprintf("%s %s failed", method, path), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.UpstreamError{Provider: "amadeus", Msg: fmt.Sprintf("%s %s returned %s: %s", method, path, resp.Status, payload)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.UpstreamError{Provider: "amadeus", Msg: "decode response", Err: err}
	}
	return nil
}
