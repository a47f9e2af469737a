package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Verified     bool
	FailedLogins int
	LockedUntil  *time.Time
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GuestUser identifies an unauthenticated customer, keyed by email and
// upserted on repeated use.
type GuestUser struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	Phone     string
	CreatedAt time.Time
}

// OwnerRef points a booking at exactly one of a registered user or a guest.
type OwnerRef struct {
	UserID      *int64
	GuestUserID *int64
}

func (o OwnerRef) IsZero() bool {
	return o.UserID == nil && o.GuestUserID == nil
}
