package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/pricing"
)

type ReconcileInput struct {
	TransactionRef string
	Travelers      []TravelerInput
	// Offer carries the single chosen offer for guest checkout; when empty
	// and Owner is a registered user, every cart item is booked.
	Offer json.RawMessage
	Owner domain.OwnerRef
}

type ReconcileResult struct {
	Bookings []domain.Booking
	// AlreadyBooked is set when the transaction reference was reconciled by
	// an earlier call and the existing booking is returned untouched.
	AlreadyBooked bool
}

// offerIdentity pulls out the fields needed for the per-offer idempotence
// guard and the best-effort display-name enrichment.
type offerIdentity struct {
	ID                     string   `json:"id"`
	ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
	Itineraries            []struct {
		Segments []struct {
			Departure struct {
				IataCode string `json:"iataCode"`
			} `json:"departure"`
			Arrival struct {
				IataCode string `json:"iataCode"`
			} `json:"arrival"`
		} `json:"segments"`
	} `json:"itineraries"`
}

// ReconcileBooking confirms a payment and ensures exactly one booking exists
// per (transaction, offer). A failed upstream booking for one offer in a
// batch is logged and skipped, so the result can be a partial success.
func (s *BookingService) ReconcileBooking(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	if input.TransactionRef == "" {
		return nil, domain.NewValidationError("transaction_ref", "is required")
	}

	existing, err := s.bookings.GetByTransactionRef(ctx, input.TransactionRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ReconcileResult{Bookings: []domain.Booking{*existing}, AlreadyBooked: true}, nil
	}

	verified, err := s.payments.VerifyTransaction(ctx, input.TransactionRef)
	if err != nil {
		return nil, err
	}
	if !verified.Successful() {
		return nil, domain.PaymentError{Reference: input.TransactionRef, Status: verified.Status}
	}

	offers, err := s.collectOffers(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(input.Travelers) == 0 {
		return nil, domain.NewValidationError("travelers", "at least one traveler is required")
	}
	gdsTravelers, rows, err := NormalizeTravelers(input.Travelers)
	if err != nil {
		return nil, err
	}

	email, firstName, err := s.resolveOwner(ctx, input.Owner)
	if err != nil {
		return nil, err
	}

	margin := s.currentMargin(ctx)
	result := &ReconcileResult{}

	for _, offer := range offers {
		var identity offerIdentity
		_ = json.Unmarshal(offer, &identity)

		if identity.ID != "" {
			guard, err := s.bookings.GetByTransactionRefAndOffer(ctx, input.TransactionRef, identity.ID)
			if err != nil {
				return nil, err
			}
			if guard != nil {
				result.Bookings = append(result.Bookings, *guard)
				continue
			}
		}

		order, err := s.gds.CreateFlightOrder(ctx, offer, gdsTravelers)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"transaction_ref": input.TransactionRef,
				"offer_id":        identity.ID,
			}).Error("upstream booking failed for offer, skipping")
			continue
		}

		details, _ := json.Marshal(bookingDetails{
			Schema:        detailsSchemaFlightV1,
			Reference:     order.Reference,
			OfferID:       order.OfferID,
			BasePrice:     order.BasePrice,
			MarginPercent: margin,
			Airlines:      s.airlineNames(ctx, identity),
			Airports:      s.airportNames(ctx, identity),
		})

		// reconciled bookings start unverified; the worker sweep re-checks
		// the payment later and flips the flag once it still stands.
		booking := &domain.Booking{
			Type:           domain.BookingTypeFlight,
			Status:         domain.BookingStatusConfirmed,
			Verified:       false,
			Reference:      order.Reference,
			Provider:       "amadeus",
			TransactionRef: input.TransactionRef,
			OfferID:        identity.ID,
			APIResponse:    order.Raw,
			Details:        details,
			TotalAmount:    pricing.Displayed(order.BasePrice, margin),
			Currency:       s.currency,
			UserID:         input.Owner.UserID,
			GuestUserID:    input.Owner.GuestUserID,
		}
		if err := s.bookings.Create(ctx, booking, rows, nil); err != nil {
			return nil, err
		}

		s.publish(ctx, "booking_reconciled", booking, email, firstName)
		result.Bookings = append(result.Bookings, *booking)
	}

	return result, nil
}

// SweepReport separates the bookings the sweep settled from the orphan
// candidates that need operator attention.
type SweepReport struct {
	Settled []domain.Booking
	Orphans []domain.Booking
}

// SweepUnverified re-checks recent unverified bookings against the payment
// provider, marking the settled ones verified. Bookings with no transaction
// reference or an unsettled payment are returned as orphan candidates; a
// transient verification failure is skipped and retried on the next pass.
// No automatic cancellation is attempted.
func (s *BookingService) SweepUnverified(ctx context.Context, window time.Duration) (*SweepReport, error) {
	pending, err := s.bookings.ListUnverifiedSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	for _, b := range pending {
		if b.TransactionRef == "" {
			s.logger.WithField("reference", b.Reference).Warn("unverified booking has no transaction reference, orphan candidate")
			report.Orphans = append(report.Orphans, b)
			continue
		}
		verified, err := s.payments.VerifyTransaction(ctx, b.TransactionRef)
		if err != nil {
			s.logger.WithError(err).WithField("transaction_ref", b.TransactionRef).Warn("sweep verification failed")
			continue
		}
		if !verified.Successful() {
			s.logger.WithFields(map[string]interface{}{
				"transaction_ref": b.TransactionRef,
				"status":          verified.Status,
			}).Warn("booking held against unsettled payment, orphan candidate")
			report.Orphans = append(report.Orphans, b)
			continue
		}
		if err := s.bookings.SetVerified(ctx, b.ID, true); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("failed to mark booking verified")
			continue
		}
		b.Verified = true
		report.Settled = append(report.Settled, b)
	}
	return report, nil
}

func (s *BookingService) collectOffers(ctx context.Context, input ReconcileInput) ([]json.RawMessage, error) {
	if len(input.Offer) > 0 {
		return []json.RawMessage{input.Offer}, nil
	}
	if input.Owner.UserID == nil {
		return nil, domain.NewValidationError("flight_offer", "is required for guest checkout")
	}
	carts, err := s.carts.ListByUser(ctx, *input.Owner.UserID)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, domain.NewValidationError("cart", "is empty")
	}
	offers := make([]json.RawMessage, 0, len(carts))
	for _, c := range carts {
		offers = append(offers, c.Offer)
	}
	return offers, nil
}

// airlineNames resolves validating airline codes to display names, keeping
// the raw code when the lookup fails.
func (s *BookingService) airlineNames(ctx context.Context, identity offerIdentity) map[string]string {
	if len(identity.ValidatingAirlineCodes) == 0 {
		return nil
	}
	names := make(map[string]string, len(identity.ValidatingAirlineCodes))
	for _, code := range identity.ValidatingAirlineCodes {
		name, err := s.gds.AirlineName(ctx, code)
		if err != nil || name == "" {
			name = code
		}
		names[code] = name
	}
	return names
}

func (s *BookingService) airportNames(ctx context.Context, identity offerIdentity) map[string]string {
	codes := make(map[string]struct{})
	for _, itinerary := range identity.Itineraries {
		for _, segment := range itinerary.Segments {
			if segment.Departure.IataCode != "" {
				codes[segment.Departure.IataCode] = struct{}{}
			}
			if segment.Arrival.IataCode != "" {
				codes[segment.Arrival.IataCode] = struct{}{}
			}
		}
	}
	if len(codes) == 0 {
		return nil
	}

	names := make(map[string]string, len(codes))
	for code := range codes {
		name := code
		if locations, err := s.gds.SearchLocations(ctx, code, "AIRPORT"); err == nil {
			for _, loc := range locations {
				if loc.IataCode == code && loc.Name != "" {
					name = loc.Name
					break
				}
			}
		}
		names[code] = name
	}
	return names
}
