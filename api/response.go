package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/internal/domain"
)

// envelope is the uniform response body. Error detail is included only
// outside release mode; production responses carry the message alone.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondError translates the domain error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var (
		validationErr domain.ValidationError
		notFoundErr   domain.NotFoundError
		upstreamErr   domain.UpstreamError
		paymentErr    domain.PaymentError
		rateErr       domain.RateLimitError
		authErr       domain.AuthError
	)
	switch {
	case errors.As(err, &validationErr):
		status, message = http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &notFoundErr):
		status, message = http.StatusNotFound, notFoundErr.Error()
	case errors.As(err, &paymentErr):
		status, message = http.StatusPaymentRequired, paymentErr.Error()
	case errors.As(err, &rateErr):
		status, message = http.StatusTooManyRequests, rateErr.Error()
		seconds := int(rateErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	case errors.As(err, &upstreamErr):
		status, message = http.StatusBadGateway, "upstream provider error"
	case errors.As(err, &authErr):
		status, message = http.StatusUnauthorized, authErr.Error()
	}

	body := envelope{Success: false, Message: message}
	if gin.Mode() != gin.ReleaseMode {
		body.Error = err.Error()
	}
	c.JSON(status, body)
}

// respondOwnerError keeps the observed booking-path behavior where an owner
// reference that does not resolve is a 400, not a 404.
func respondOwnerError(c *gin.Context, err error) {
	var notFoundErr domain.NotFoundError
	if errors.As(err, &notFoundErr) {
		body := envelope{Success: false, Message: notFoundErr.Error()}
		if gin.Mode() != gin.ReleaseMode {
			body.Error = err.Error()
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	respondError(c, err)
}
