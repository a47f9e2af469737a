package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

// Register mounts the authenticated booking routes.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/flights", h.bookFlight)
	router.POST("/reconcile", h.reconcile)
	router.GET("/", h.list)
}

// RegisterGuest mounts the unauthenticated guest-checkout routes.
func (h *BookingHandler) RegisterGuest(router *gin.RouterGroup) {
	router.POST("/flights", h.bookFlightGuest)
	router.POST("/reconcile", h.reconcileGuest)
}

type guestPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type bookFlightRequest struct {
	FlightOffer json.RawMessage          `json:"flight_offer"`
	Travelers   []booking.TravelerInput  `json:"travelers"`
	AddonIDs    []int64                  `json:"addon_ids"`
}

type bookFlightGuestRequest struct {
	bookFlightRequest
	Guest guestPayload `json:"guest"`
}

type bookFlightResponse struct {
	Booking   bookingResponse       `json:"booking"`
	Addons    []addonResponse       `json:"addons"`
	Breakdown domain.PriceBreakdown `json:"price_breakdown"`
	Provider  json.RawMessage       `json:"provider_response"`
}

type bookingResponse struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Verified    bool            `json:"verified"`
	Reference   string          `json:"reference"`
	Provider    string          `json:"provider"`
	TotalAmount float64         `json:"total_amount"`
	Currency    string          `json:"currency"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

type addonResponse struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	PriceUSD float64 `json:"price_usd"`
}

func (h *BookingHandler) bookFlight(c *gin.Context) {
	var req bookFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid booking payload", Error: err.Error()})
		return
	}

	userID := currentUserID(c)
	result, err := h.service.BookFlight(c.Request.Context(), booking.BookFlightInput{
		Offer:     req.FlightOffer,
		Travelers: req.Travelers,
		AddonIDs:  req.AddonIDs,
		Owner:     domain.OwnerRef{UserID: userID},
	})
	if err != nil {
		respondOwnerError(c, err)
		return
	}
	respond(c, http.StatusCreated, "flight booked", toBookFlightResponse(result))
}

func (h *BookingHandler) bookFlightGuest(c *gin.Context) {
	var req bookFlightGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid booking payload", Error: err.Error()})
		return
	}

	guest, err := h.service.EnsureGuest(c.Request.Context(), booking.GuestInput{
		Email:     req.Guest.Email,
		FirstName: req.Guest.FirstName,
		LastName:  req.Guest.LastName,
		Phone:     req.Guest.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.BookFlight(c.Request.Context(), booking.BookFlightInput{
		Offer:     req.FlightOffer,
		Travelers: req.Travelers,
		AddonIDs:  req.AddonIDs,
		Owner:     domain.OwnerRef{GuestUserID: &guest.ID},
	})
	if err != nil {
		respondOwnerError(c, err)
		return
	}
	respond(c, http.StatusCreated, "flight booked", toBookFlightResponse(result))
}

type reconcileRequest struct {
	TransactionRef string                  `json:"transaction_ref"`
	FlightOffer    json.RawMessage         `json:"flight_offer"`
	Travelers      []booking.TravelerInput `json:"travelers"`
}

type reconcileGuestRequest struct {
	reconcileRequest
	Guest guestPayload `json:"guest"`
}

type reconcileResponse struct {
	Bookings      []bookingResponse `json:"bookings"`
	AlreadyBooked bool              `json:"already_booked"`
}

func (h *BookingHandler) reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid reconcile payload", Error: err.Error()})
		return
	}

	result, err := h.service.ReconcileBooking(c.Request.Context(), booking.ReconcileInput{
		TransactionRef: req.TransactionRef,
		Travelers:      req.Travelers,
		Offer:          req.FlightOffer,
		Owner:          domain.OwnerRef{UserID: currentUserID(c)},
	})
	if err != nil {
		respondOwnerError(c, err)
		return
	}
	respond(c, http.StatusOK, "payment reconciled", toReconcileResponse(result))
}

func (h *BookingHandler) reconcileGuest(c *gin.Context) {
	var req reconcileGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid reconcile payload", Error: err.Error()})
		return
	}

	guest, err := h.service.EnsureGuest(c.Request.Context(), booking.GuestInput{
		Email:     req.Guest.Email,
		FirstName: req.Guest.FirstName,
		LastName:  req.Guest.LastName,
		Phone:     req.Guest.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.ReconcileBooking(c.Request.Context(), booking.ReconcileInput{
		TransactionRef: req.TransactionRef,
		Travelers:      req.Travelers,
		Offer:          req.FlightOffer,
		Owner:          domain.OwnerRef{GuestUserID: &guest.ID},
	})
	if err != nil {
		respondOwnerError(c, err)
		return
	}
	respond(c, http.StatusOK, "payment reconciled", toReconcileResponse(result))
}

func (h *BookingHandler) list(c *gin.Context) {
	bookings, err := h.service.ListBookings(c.Request.Context(), domain.OwnerRef{UserID: currentUserID(c)})
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	respond(c, http.StatusOK, "bookings retrieved", out)
}

func toBookFlightResponse(result *booking.BookFlightResult) bookFlightResponse {
	addons := make([]addonResponse, 0, len(result.Addons))
	for _, a := range result.Addons {
		addons = append(addons, addonResponse{ID: a.ID, Name: a.Name, PriceUSD: a.PriceUSD})
	}
	return bookFlightResponse{
		Booking:   toBookingResponse(result.Booking),
		Addons:    addons,
		Breakdown: result.Breakdown,
		Provider:  result.Raw,
	}
}

func toReconcileResponse(result *booking.ReconcileResult) reconcileResponse {
	out := reconcileResponse{AlreadyBooked: result.AlreadyBooked, Bookings: make([]bookingResponse, 0, len(result.Bookings))}
	for i := range result.Bookings {
		out.Bookings = append(out.Bookings, toBookingResponse(&result.Bookings[i]))
	}
	return out
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		Type:        string(b.Type),
		Status:      string(b.Status),
		Verified:    b.Verified,
		Reference:   b.Reference,
		Provider:    b.Provider,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		Details:     b.Details,
		CreatedAt:   b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
