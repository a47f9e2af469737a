package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/travoya/travoya/internal/payment"
)

type checkoutLinker interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (string, error)
}

type intentOpener interface {
	CreatePaymentIntent(ctx context.Context, amount float64, currency, reference string) (*payment.PaymentIntent, error)
}

// PaymentHandler opens a checkout with the selected provider before the
// client returns to /bookings/reconcile with the transaction reference.
type PaymentHandler struct {
	flutterwave checkoutLinker
	stripe      intentOpener
	currency    string
}

func NewPaymentHandler(flutterwave checkoutLinker, stripe intentOpener, currency string) *PaymentHandler {
	return &PaymentHandler{flutterwave: flutterwave, stripe: stripe, currency: currency}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/checkout", h.checkout)
}

type checkoutRequest struct {
	Provider    string  `json:"provider" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Currency    string  `json:"currency"`
	Email       string  `json:"email"`
	RedirectURL string  `json:"redirect_url"`
}

type checkoutResponse struct {
	Reference    string `json:"reference"`
	PaymentLink  string `json:"payment_link,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

func (h *PaymentHandler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid checkout payload", Error: err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	reference := "TRV-" + uuid.NewString()

	switch strings.ToLower(req.Provider) {
	case "flutterwave":
		link, err := h.flutterwave.CreateCheckout(c.Request.Context(), payment.CheckoutRequest{
			Reference:   reference,
			Amount:      req.Amount,
			Currency:    currency,
			RedirectURL: req.RedirectURL,
			Email:       req.Email,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusCreated, "checkout created", checkoutResponse{Reference: reference, PaymentLink: link})
	case "stripe":
		intent, err := h.stripe.CreatePaymentIntent(c.Request.Context(), req.Amount, currency, reference)
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusCreated, "checkout created", checkoutResponse{Reference: intent.ID, ClientSecret: intent.ClientSecret})
	default:
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "unknown payment provider"})
	}
}
