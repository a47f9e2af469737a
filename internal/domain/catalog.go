package domain

import (
	"encoding/json"
	"time"
)

// FlightAddon is an admin-managed extra (insurance, lounge access) priced in
// USD and converted to the booking currency at checkout.
type FlightAddon struct {
	ID          int64
	Name        string
	Description string
	PriceUSD    float64
	BookingID   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FlightCart holds a chosen flight offer for a registered user until
// checkout. Offer is the provider offer payload, stored opaque.
type FlightCart struct {
	ID        int64
	UserID    int64
	Offer     json.RawMessage
	CreatedAt time.Time
}

// MarginSetting is the single markup record applied to all base prices at
// read time. At most one row exists by convention.
type MarginSetting struct {
	ID        int64
	Percent   float64
	UpdatedAt time.Time
}

type ExcludedAirline struct {
	ID   int64
	Code string
}
