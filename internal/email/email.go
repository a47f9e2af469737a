// Package email dispatches transactional mail through the provider's REST
// API. Sends retry up to three times with exponential backoff, but only for
// transient network failures; a 4xx/5xx from the provider is not retried.
// Email failure never aborts the owning booking; events arrive over Kafka
// and are acknowledged regardless of outcome.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/kafka"
)

const maxAttempts = 3

type Sender struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       address
	logger     *logrus.Logger
	backoff    func(attempt int) time.Duration
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	Sender      address   `json:"sender"`
	To          []address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

func NewSender(cfg config.EmailConfig, logger *logrus.Logger) *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		from:       address{Email: cfg.FromAddress, Name: cfg.FromName},
		logger:     logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Send renders a confirmation email for the event and posts it to the
// provider, retrying transient network errors.
func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		return nil
	}

	req := sendRequest{
		Sender:      s.from,
		To:          []address{{Email: event.Email, Name: event.FirstName}},
		Subject:     fmt.Sprintf("Your %s booking %s is confirmed", event.BookingType, event.Reference),
		HTMLContent: renderConfirmation(event),
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.post(ctx, req)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			break
		}
		s.logger.WithError(lastErr).WithField("reference", event.Reference).
			Warnf("transient email failure, attempt %d/%d", attempt+1, maxAttempts)
	}
	return lastErr
}

func (s *Sender) post(ctx context.Context, req sendRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("api-key", s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email provider returned %s", resp.Status)
	}
	return nil
}

// isTransient classifies DNS failures, connection resets/refusals and
// timeouts as retryable.
func isTransient(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

func renderConfirmation(event kafka.BookingEvent) string {
	name := event.FirstName
	if name == "" {
		name = "traveler"
	}
	return fmt.Sprintf(
		`<html><body><p>Hi %s,</p><p>Your %s booking is confirmed.</p><p>Reference: <b>%s</b><br>Total: %s %.2f</p><p>Safe travels,<br>The Travoya team</p></body></html>`,
		name, event.BookingType, event.Reference, event.Currency, event.TotalAmount,
	)
}
