package search

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/cache"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/pricing"
	"github.com/travoya/travoya/internal/repository"
)

type SearchUseCase interface {
	SearchFlights(ctx context.Context, q amadeus.FlightSearchQuery) ([]json.RawMessage, error)
	SearchHotels(ctx context.Context, q amadeus.HotelSearchQuery) ([]json.RawMessage, error)
	SearchTransfers(ctx context.Context, q amadeus.TransferQuery) ([]json.RawMessage, error)
	PriceFlight(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	Locations(ctx context.Context, keyword, subType string) ([]amadeus.Location, error)
}

type GDS interface {
	SearchFlightOffers(ctx context.Context, q amadeus.FlightSearchQuery) ([]json.RawMessage, error)
	SearchHotelOffers(ctx context.Context, q amadeus.HotelSearchQuery) ([]json.RawMessage, error)
	SearchTransfers(ctx context.Context, q amadeus.TransferQuery) ([]json.RawMessage, error)
	PriceFlightOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	SearchLocations(ctx context.Context, keyword, subType string) ([]amadeus.Location, error)
}

type Cache interface {
	GetSearch(ctx context.Context, key string) ([]byte, error)
	SetSearch(ctx context.Context, key string, payload []byte) error
}

type Limiter interface {
	Allow(key string) bool
	RetryAfter(key string) time.Duration
}

// SearchService gates every upstream search behind the fixed-window limiter,
// memoizes results per normalized query, filters excluded airlines and
// applies the current margin to offer prices before they are cached.
type SearchService struct {
	gds     GDS
	cache   Cache
	limiter Limiter
	margins repository.MarginRepository
	logger  *logrus.Logger
}

func NewSearchService(gds GDS, cache Cache, limiter Limiter, margins repository.MarginRepository, logger *logrus.Logger) *SearchService {
	return &SearchService{gds: gds, cache: cache, limiter: limiter, margins: margins, logger: logger}
}

func (s *SearchService) SearchFlights(ctx context.Context, q amadeus.FlightSearchQuery) ([]json.RawMessage, error) {
	if q.Origin == "" || q.Destination == "" || q.Date == "" {
		return nil, domain.NewValidationError("search", "origin, destination and date are required")
	}
	if q.Adults <= 0 {
		q.Adults = 1
	}

	key := cache.SearchKey("flights", q.Origin, q.Destination, q.Date, q.ReturnDate, strconv.Itoa(q.Adults), q.Currency)
	if cached := s.cached(ctx, key); cached != nil {
		return cached, nil
	}

	if err := s.gate("flights"); err != nil {
		return nil, err
	}

	offers, err := s.gds.SearchFlightOffers(ctx, q)
	if err != nil {
		return nil, err
	}

	offers, err = s.filterExcluded(ctx, offers)
	if err != nil {
		return nil, err
	}
	offers = s.priceOffers(ctx, offers)

	s.fill(ctx, key, offers)
	return offers, nil
}

func (s *SearchService) SearchHotels(ctx context.Context, q amadeus.HotelSearchQuery) ([]json.RawMessage, error) {
	if q.CityCode == "" || q.CheckInDate == "" {
		return nil, domain.NewValidationError("search", "city code and check-in date are required")
	}
	if q.Adults <= 0 {
		q.Adults = 1
	}

	key := cache.SearchKey("hotels", q.CityCode, q.CheckInDate, q.CheckOutDate, strconv.Itoa(q.Adults), q.Currency)
	if cached := s.cached(ctx, key); cached != nil {
		return cached, nil
	}

	if err := s.gate("hotels"); err != nil {
		return nil, err
	}

	offers, err := s.gds.SearchHotelOffers(ctx, q)
	if err != nil {
		return nil, err
	}
	offers = s.priceOffers(ctx, offers)

	s.fill(ctx, key, offers)
	return offers, nil
}

func (s *SearchService) SearchTransfers(ctx context.Context, q amadeus.TransferQuery) ([]json.RawMessage, error) {
	if q.StartLocationCode == "" || q.StartDateTime == "" {
		return nil, domain.NewValidationError("search", "start location and start time are required")
	}
	if q.Passengers <= 0 {
		q.Passengers = 1
	}

	key := cache.SearchKey("transfers", q.StartLocationCode, q.EndAddressLine, q.StartDateTime, strconv.Itoa(q.Passengers), q.Currency)
	if cached := s.cached(ctx, key); cached != nil {
		return cached, nil
	}

	if err := s.gate("transfers"); err != nil {
		return nil, err
	}

	offers, err := s.gds.SearchTransfers(ctx, q)
	if err != nil {
		return nil, err
	}
	offers = s.priceOffers(ctx, offers)

	s.fill(ctx, key, offers)
	return offers, nil
}

// PriceFlight re-confirms an offer's price upstream and returns the priced
// payload with the margin applied. Pricing is never cached: it is the
// authoritative quote right before checkout.
func (s *SearchService) PriceFlight(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	if len(offer) == 0 {
		return nil, domain.NewValidationError("flight_offer", "is required")
	}

	if err := s.gate("pricing"); err != nil {
		return nil, err
	}

	priced, err := s.gds.PriceFlightOffer(ctx, offer)
	if err != nil {
		return nil, err
	}

	adjusted := s.priceOffers(ctx, []json.RawMessage{priced})
	return adjusted[0], nil
}

func (s *SearchService) Locations(ctx context.Context, keyword, subType string) ([]amadeus.Location, error) {
	if keyword == "" {
		return nil, domain.NewValidationError("keyword", "is required")
	}

	key := cache.SearchKey("locations", keyword, subType)
	if data, err := s.cache.GetSearch(ctx, key); err == nil && data != nil {
		var locations []amadeus.Location
		if json.Unmarshal(data, &locations) == nil {
			return locations, nil
		}
	}

	if err := s.gate("locations"); err != nil {
		return nil, err
	}

	locations, err := s.gds.SearchLocations(ctx, keyword, subType)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(locations); err == nil {
		if err := s.cache.SetSearch(ctx, key, payload); err != nil {
			s.logger.WithError(err).Warn("failed to fill location cache")
		}
	}
	return locations, nil
}

func (s *SearchService) gate(key string) error {
	if s.limiter == nil {
		return nil
	}
	if !s.limiter.Allow(key) {
		return domain.RateLimitError{RetryAfter: s.limiter.RetryAfter(key)}
	}
	return nil
}

func (s *SearchService) cached(ctx context.Context, key string) []json.RawMessage {
	data, err := s.cache.GetSearch(ctx, key)
	if err != nil || data == nil {
		return nil
	}
	var offers []json.RawMessage
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil
	}
	return offers
}

func (s *SearchService) fill(ctx context.Context, key string, offers []json.RawMessage) {
	payload, err := json.Marshal(offers)
	if err != nil {
		return
	}
	if err := s.cache.SetSearch(ctx, key, payload); err != nil {
		s.logger.WithError(err).Warn("failed to fill search cache")
	}
}

// filterExcluded drops offers validated by an excluded airline.
func (s *SearchService) filterExcluded(ctx context.Context, offers []json.RawMessage) ([]json.RawMessage, error) {
	excluded, err := s.margins.ListExcludedAirlines(ctx)
	if err != nil {
		return nil, err
	}
	if len(excluded) == 0 {
		return offers, nil
	}

	blocked := make(map[string]struct{}, len(excluded))
	for _, a := range excluded {
		blocked[a.Code] = struct{}{}
	}

	kept := make([]json.RawMessage, 0, len(offers))
	for _, offer := range offers {
		var probe struct {
			ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
		}
		_ = json.Unmarshal(offer, &probe)

		drop := false
		for _, code := range probe.ValidatingAirlineCodes {
			if _, ok := blocked[code]; ok {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, offer)
		}
	}
	return kept, nil
}

// priceOffers rewrites each offer's price fields with the margin applied.
// Offers that cannot be parsed are passed through unchanged.
func (s *SearchService) priceOffers(ctx context.Context, offers []json.RawMessage) []json.RawMessage {
	margin := s.currentMargin(ctx)
	if margin == 0 {
		return offers
	}

	priced := make([]json.RawMessage, 0, len(offers))
	for _, offer := range offers {
		var decoded map[string]interface{}
		if err := json.Unmarshal(offer, &decoded); err != nil {
			priced = append(priced, offer)
			continue
		}
		applyMargin(decoded, margin)
		adjusted, err := json.Marshal(decoded)
		if err != nil {
			priced = append(priced, offer)
			continue
		}
		priced = append(priced, adjusted)
	}
	return priced
}

func (s *SearchService) currentMargin(ctx context.Context) float64 {
	setting, err := s.margins.GetCurrent(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("margin lookup failed, serving unadjusted prices")
		return 0
	}
	if setting == nil {
		s.logger.Warn("margin setting not configured, serving unadjusted prices")
		return 0
	}
	return setting.Percent
}

// applyMargin walks the decoded offer and adjusts every price-bearing node:
// "price" objects with total/grandTotal strings (flights, hotels) and
// "quotation" objects with monetaryAmount (transfers).
func applyMargin(node interface{}, margin float64) {
	switch v := node.(type) {
	case map[string]interface{}:
		if price, ok := v["price"].(map[string]interface{}); ok {
			adjustAmount(price, "total", margin)
			adjustAmount(price, "grandTotal", margin)
		}
		if quotation, ok := v["quotation"].(map[string]interface{}); ok {
			adjustAmount(quotation, "monetaryAmount", margin)
		}
		for _, child := range v {
			applyMargin(child, margin)
		}
	case []interface{}:
		for _, child := range v {
			applyMargin(child, margin)
		}
	}
}

func adjustAmount(m map[string]interface{}, field string, margin float64) {
	raw, ok := m[field].(string)
	if !ok || raw == "" {
		return
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	m[field] = strconv.FormatFloat(pricing.Displayed(amount, margin), 'f', 2, 64)
}
