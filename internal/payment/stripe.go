package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/domain"
)

// StripeClient talks to the PaymentIntents API. Stripe amounts are integer
// minor units, so conversion to and from the decimal totals happens here.
type StripeClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	breaker    *gobreaker.CircuitBreaker
}

func NewStripeClient(cfg config.PaymentsConfig) *StripeClient {
	return &StripeClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.StripeBaseURL,
		secretKey:  cfg.StripeSecretKey,
		breaker:    newPaymentBreaker("stripe"),
	}
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       float64
	Currency     string
}

// Successful reports whether the intent settled.
func (p PaymentIntent) Successful() bool {
	return p.Status == "succeeded"
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CreatePaymentIntent opens an intent for the given decimal amount.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, amount float64, currency, reference string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", int64(amount*100)))
	form.Set("currency", strings.ToLower(currency))
	form.Set("metadata[reference]", reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.send(req)
}

// RetrievePaymentIntent fetches an intent by id for verification.
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment_intents/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		return c.send(req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.UpstreamError{Provider: "stripe", Msg: "intents endpoint unavailable", Err: err}
		}
		return nil, err
	}
	return result.(*PaymentIntent), nil
}

func (c *StripeClient) send(req *http.Request) (*PaymentIntent, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.UpstreamError{Provider: "stripe", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.UpstreamError{Provider: "stripe", Msg: fmt.Sprintf("request returned %s", resp.Status)}
	}

	var parsed stripeIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.UpstreamError{Provider: "stripe", Msg: "decode intent response", Err: err}
	}
	return &PaymentIntent{
		ID:           parsed.ID,
		ClientSecret: parsed.ClientSecret,
		Status:       parsed.Status,
		Amount:       float64(parsed.Amount) / 100,
		Currency:     strings.ToUpper(parsed.Currency),
	}, nil
}
