// Package payment holds the Flutterwave and Stripe clients. They are kept
// as separate clients rather than one interface: verification semantics and
// reference shapes differ between the two providers.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/domain"
)

type FlutterwaveClient struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	breaker    *gobreaker.CircuitBreaker
}

func NewFlutterwaveClient(cfg config.PaymentsConfig) *FlutterwaveClient {
	return &FlutterwaveClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.FlutterwaveBaseURL,
		secretKey:  cfg.FlutterwaveSecretKey,
		breaker:    newPaymentBreaker("flutterwave"),
	}
}

func newPaymentBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

type CheckoutRequest struct {
	Reference   string  `json:"tx_ref"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	RedirectURL string  `json:"redirect_url"`
	Email       string  `json:"customer_email"`
}

type VerifiedTransaction struct {
	Reference string
	Status    string
	Amount    float64
	Currency  string
}

// Successful reports whether the provider settled the transaction.
func (v VerifiedTransaction) Successful() bool {
	return v.Status == "successful"
}

type flwCheckoutResponse struct {
	Status string `json:"status"`
	Data   struct {
		Link string `json:"link"`
	} `json:"data"`
}

type flwVerifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		TxRef    string  `json:"tx_ref"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"data"`
}

// CreateCheckout returns a hosted payment link for the given reference.
func (c *FlutterwaveClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	payload := map[string]interface{}{
		"tx_ref":       req.Reference,
		"amount":       fmt.Sprintf("%.2f", req.Amount),
		"currency":     req.Currency,
		"redirect_url": req.RedirectURL,
		"customer": map[string]string{
			"email": req.Email,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.UpstreamError{Provider: "flutterwave", Msg: "checkout request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.UpstreamError{Provider: "flutterwave", Msg: fmt.Sprintf("checkout returned %s", resp.Status)}
	}

	var parsed flwCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.UpstreamError{Provider: "flutterwave", Msg: "decode checkout response", Err: err}
	}
	if parsed.Status != "success" || parsed.Data.Link == "" {
		return "", domain.UpstreamError{Provider: "flutterwave", Msg: "checkout link missing from response"}
	}
	return parsed.Data.Link, nil
}

// VerifyTransaction looks up a transaction by merchant reference.
func (c *FlutterwaveClient) VerifyTransaction(ctx context.Context, reference string) (*VerifiedTransaction, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/transactions/verify_by_reference?tx_ref="+url.QueryEscape(reference), nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, domain.UpstreamError{Provider: "flutterwave", Msg: "verify request failed", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, domain.UpstreamError{Provider: "flutterwave", Msg: fmt.Sprintf("verify returned %s", resp.Status)}
		}

		var parsed flwVerifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, domain.UpstreamError{Provider: "flutterwave", Msg: "decode verify response", Err: err}
		}
		return &VerifiedTransaction{
			Reference: parsed.Data.TxRef,
			Status:    parsed.Data.Status,
			Amount:    parsed.Data.Amount,
			Currency:  parsed.Data.Currency,
		}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.UpstreamError{Provider: "flutterwave", Msg: "verify endpoint unavailable", Err: err}
		}
		return nil, err
	}
	return result.(*VerifiedTransaction), nil
}
