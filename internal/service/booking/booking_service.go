package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/kafka"
	"github.com/travoya/travoya/internal/payment"
	"github.com/travoya/travoya/internal/pricing"
	"github.com/travoya/travoya/internal/repository"
)

type BookingUseCase interface {
	BookFlight(ctx context.Context, input BookFlightInput) (*BookFlightResult, error)
	ReconcileBooking(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
	ListBookings(ctx context.Context, owner domain.OwnerRef) ([]domain.Booking, error)
	EnsureGuest(ctx context.Context, input GuestInput) (*domain.GuestUser, error)
	SweepUnverified(ctx context.Context, window time.Duration) (*SweepReport, error)
}

// GDS is the slice of the upstream client the orchestrator needs.
type GDS interface {
	CreateFlightOrder(ctx context.Context, offer json.RawMessage, travelers []amadeus.Traveler) (*amadeus.FlightOrder, error)
	SearchLocations(ctx context.Context, keyword, subType string) ([]amadeus.Location, error)
	AirlineName(ctx context.Context, code string) (string, error)
}

type PaymentVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*payment.VerifiedTransaction, error)
}

type FXRates interface {
	Rate(ctx context.Context, base, quote string) (float64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	users              repository.UserRepository
	addons             repository.AddonRepository
	carts              repository.CartRepository
	margins            repository.MarginRepository
	gds                GDS
	payments           PaymentVerifier
	fx                 FXRates
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	currency           string
	logger             *logrus.Logger
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	users repository.UserRepository,
	addons repository.AddonRepository,
	carts repository.CartRepository,
	margins repository.MarginRepository,
	gds GDS,
	payments PaymentVerifier,
	fx FXRates,
	producer Producer,
	bookingTopic string,
	currency string,
	logger *logrus.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		users:        users,
		addons:       addons,
		carts:        carts,
		margins:      margins,
		gds:          gds,
		payments:     payments,
		fx:           fx,
		producer:     producer,
		bookingTopic: bookingTopic,
		currency:     currency,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

type BookFlightInput struct {
	Offer     json.RawMessage
	Travelers []TravelerInput
	AddonIDs  []int64
	Owner     domain.OwnerRef
}

type BookFlightResult struct {
	Booking   *domain.Booking
	Travelers []domain.Traveler
	Addons    []domain.FlightAddon
	Raw       json.RawMessage
	Breakdown domain.PriceBreakdown
}

// bookingDetails is the versioned structured summary stored on the booking
// next to the verbatim provider payload.
type bookingDetails struct {
	Schema        string            `json:"schema"`
	Reference     string            `json:"reference"`
	OfferID       string            `json:"offer_id"`
	BasePrice     float64           `json:"base_price"`
	MarginPercent float64           `json:"margin_percent"`
	AddonTotal    float64           `json:"addon_total"`
	Airlines      map[string]string `json:"airlines,omitempty"`
	Airports      map[string]string `json:"airports,omitempty"`
}

const detailsSchemaFlightV1 = "flight-booking/v1"

// BookFlight runs the full checkout pipeline: validate, normalize travelers,
// create the upstream order, price with margin and converted addons, and
// persist the aggregate in one transaction. A failed upstream call aborts
// the attempt; there is no retry and no compensation once the order is
// placed upstream.
func (s *BookingService) BookFlight(ctx context.Context, input BookFlightInput) (*BookFlightResult, error) {
	if len(input.Offer) == 0 {
		return nil, domain.NewValidationError("flight_offer", "is required")
	}
	if len(input.Travelers) == 0 {
		return nil, domain.NewValidationError("travelers", "at least one traveler is required")
	}
	if input.Owner.IsZero() {
		return nil, domain.NewValidationError("owner", "a user or guest reference is required")
	}

	email, firstName, err := s.resolveOwner(ctx, input.Owner)
	if err != nil {
		return nil, err
	}

	gdsTravelers, rows, err := NormalizeTravelers(input.Travelers)
	if err != nil {
		return nil, err
	}

	// addon ids are resolved against the catalog before anything is charged
	// or persisted: an unknown id fails the whole attempt.
	var resolvedAddons []domain.FlightAddon
	if len(input.AddonIDs) > 0 {
		resolvedAddons, err = s.addons.GetByIDs(ctx, input.AddonIDs)
		if err != nil {
			return nil, err
		}
		if len(resolvedAddons) != len(input.AddonIDs) {
			return nil, domain.NewValidationError("addon_ids", "one or more addons do not exist")
		}
	}

	order, err := s.gds.CreateFlightOrder(ctx, input.Offer, gdsTravelers)
	if err != nil {
		return nil, err
	}

	margin := s.currentMargin(ctx)

	var addonTotal float64
	if len(resolvedAddons) > 0 {
		prices := make([]float64, 0, len(resolvedAddons))
		for _, a := range resolvedAddons {
			prices = append(prices, a.PriceUSD)
		}
		addonTotal = pricing.AddonTotal(prices, s.fxRateOrOne(ctx))
	}

	breakdown := domain.PriceBreakdown{
		OriginalTotal: pricing.Displayed(order.BasePrice, margin),
		AddonTotal:    addonTotal,
		GrandTotal:    pricing.GrandTotal(order.BasePrice, margin, addonTotal),
		Currency:      s.currency,
	}

	details, _ := json.Marshal(bookingDetails{
		Schema:        detailsSchemaFlightV1,
		Reference:     order.Reference,
		OfferID:       order.OfferID,
		BasePrice:     order.BasePrice,
		MarginPercent: margin,
		AddonTotal:    addonTotal,
	})

	booking := &domain.Booking{
		Type:        domain.BookingTypeFlight,
		Status:      domain.BookingStatusConfirmed,
		Verified:    true,
		Reference:   order.Reference,
		Provider:    "amadeus",
		OfferID:     order.OfferID,
		APIResponse: order.Raw,
		Details:     details,
		TotalAmount: breakdown.GrandTotal,
		Currency:    s.currency,
		UserID:      input.Owner.UserID,
		GuestUserID: input.Owner.GuestUserID,
	}

	if err := s.bookings.Create(ctx, booking, rows, input.AddonIDs); err != nil {
		return nil, err
	}

	linked, err := s.addons.ListByBooking(ctx, booking.ID)
	if err != nil {
		s.logger.WithError(err).Warn("failed to re-fetch booking addons")
		linked = resolvedAddons
	}

	s.publish(ctx, "booking_confirmed", booking, email, firstName)

	return &BookFlightResult{
		Booking:   booking,
		Travelers: rows,
		Addons:    linked,
		Raw:       order.Raw,
		Breakdown: breakdown,
	}, nil
}

type GuestInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// EnsureGuest upserts the guest identity for an unauthenticated checkout,
// reusing the existing row for a repeated email.
func (s *BookingService) EnsureGuest(ctx context.Context, input GuestInput) (*domain.GuestUser, error) {
	if input.Email == "" {
		return nil, domain.NewValidationError("guest.email", "is required")
	}
	guest := &domain.GuestUser{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
	}
	if err := s.users.UpsertGuestByEmail(ctx, guest); err != nil {
		return nil, err
	}
	return guest, nil
}

func (s *BookingService) ListBookings(ctx context.Context, owner domain.OwnerRef) ([]domain.Booking, error) {
	if owner.IsZero() {
		return nil, domain.NewValidationError("owner", "a user or guest reference is required")
	}
	return s.bookings.ListByOwner(ctx, owner)
}

// resolveOwner checks the reference against the store and returns the
// contact used for the confirmation email.
func (s *BookingService) resolveOwner(ctx context.Context, owner domain.OwnerRef) (email, firstName string, err error) {
	switch {
	case owner.UserID != nil:
		user, err := s.users.GetUserByID(ctx, *owner.UserID)
		if err != nil {
			return "", "", err
		}
		return user.Email, user.FirstName, nil
	case owner.GuestUserID != nil:
		guest, err := s.users.GetGuestByID(ctx, *owner.GuestUserID)
		if err != nil {
			return "", "", err
		}
		return guest.Email, guest.FirstName, nil
	}
	return "", "", domain.NewValidationError("owner", "a user or guest reference is required")
}

// currentMargin reads the single margin row, treating an absent row as 0%.
func (s *BookingService) currentMargin(ctx context.Context) float64 {
	setting, err := s.margins.GetCurrent(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("margin lookup failed, defaulting to 0%")
		return 0
	}
	if setting == nil {
		s.logger.Warn("margin setting not configured, defaulting to 0%")
		return 0
	}
	return setting.Percent
}

// fxRateOrOne converts addon USD prices into the booking currency,
// defaulting to 1 when the rate lookup fails.
func (s *BookingService) fxRateOrOne(ctx context.Context) float64 {
	rate, err := s.fx.Rate(ctx, "USD", s.currency)
	if err != nil {
		s.logger.WithError(err).Warn("fx lookup failed, defaulting addon rate to 1")
		return 1
	}
	return rate
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking, email, firstName string) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:        eventType,
		Reference:   booking.Reference,
		BookingType: string(booking.Type),
		Email:       email,
		FirstName:   firstName,
		TotalAmount: booking.TotalAmount,
		Currency:    booking.Currency,
		Status:      string(booking.Status),
		CreatedAt:   booking.CreatedAt,
	}
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.Reference, event); err != nil {
		s.logger.WithError(err).WithField("reference", booking.Reference).Warn("failed to publish booking event")
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.Reference, event); err != nil {
			s.logger.WithError(err).WithField("reference", booking.Reference).Warn("failed to publish notification event")
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
