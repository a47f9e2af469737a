package domain

import (
	"encoding/json"
	"time"
)

type BookingType string

const (
	BookingTypeFlight BookingType = "FLIGHT"
	BookingTypeHotel  BookingType = "HOTEL"
	BookingTypeCar    BookingType = "CAR"
	BookingTypeTour   BookingType = "TOUR"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Booking is the persisted aggregate for a confirmed reservation. APIResponse
// holds the provider payload verbatim for audit; Details is the
// provider-shaped booking summary served back to clients.
type Booking struct {
	ID        int64
	Type      BookingType
	Status    BookingStatus
	Verified  bool
	Reference string
	Provider  string
	// TransactionRef ties the booking to the payment-provider transaction
	// that funded it; OfferID is the provider offer the booking was created
	// from. Together they key the reconciliation idempotence guards.
	TransactionRef string
	OfferID        string
	APIResponse    json.RawMessage
	Details        json.RawMessage
	TotalAmount    float64
	Currency       string
	UserID         *int64
	GuestUserID    *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Traveler is one passenger row on a booking, denormalized from the
// provider traveler shape at persist time.
type Traveler struct {
	ID             int64
	BookingID      int64
	FirstName      string
	LastName       string
	DateOfBirth    string
	Gender         string
	Email          string
	Phone          string
	PassportNumber string
	PassportExpiry string
	Nationality    string
	CreatedAt      time.Time
}

// PriceBreakdown is returned alongside a booking so clients can show the
// margin-adjusted base total and the converted addon total separately.
type PriceBreakdown struct {
	OriginalTotal float64 `json:"original_total"`
	AddonTotal    float64 `json:"addon_total"`
	GrandTotal    float64 `json:"grand_total"`
	Currency      string  `json:"currency"`
}
