package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travoya/travoya/internal/domain"
)

type BookingRepository interface {
	// Create persists the booking, its travelers, the addon links and the
	// owner's cart clear in one transaction.
	Create(ctx context.Context, booking *domain.Booking, travelers []domain.Traveler, addonIDs []int64) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByTransactionRef(ctx context.Context, ref string) (*domain.Booking, error)
	GetByTransactionRefAndOffer(ctx context.Context, ref, offerID string) (*domain.Booking, error)
	ListByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Booking, error)
	ListUnverifiedSince(ctx context.Context, since time.Time) ([]domain.Booking, error)
	SetVerified(ctx context.Context, id int64, verified bool) error
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, type, status, verified, reference, provider, transaction_ref, offer_id, api_response, details, total_amount, currency, user_id, guest_user_id, created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking, travelers []domain.Traveler, addonIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO bookings (type, status, verified, reference, provider, transaction_ref, offer_id, api_response, details, total_amount, currency, user_id, guest_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		booking.Type, booking.Status, booking.Verified, booking.Reference, booking.Provider,
		booking.TransactionRef, booking.OfferID, booking.APIResponse, booking.Details,
		booking.TotalAmount, booking.Currency, booking.UserID, booking.GuestUserID).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	for i := range travelers {
		t := &travelers[i]
		t.BookingID = booking.ID
		if err := tx.QueryRow(ctx, `INSERT INTO travelers (booking_id, first_name, last_name, date_of_birth, gender, email, phone, passport_number, passport_expiry, nationality)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at`,
			t.BookingID, t.FirstName, t.LastName, t.DateOfBirth, t.Gender, t.Email, t.Phone,
			t.PassportNumber, t.PassportExpiry, t.Nationality).
			Scan(&t.ID, &t.CreatedAt); err != nil {
			return err
		}
	}

	if len(addonIDs) > 0 {
		cmd, err := tx.Exec(ctx, `UPDATE flight_addons SET booking_id=$1, updated_at=now() WHERE id = ANY($2) AND booking_id IS NULL`, booking.ID, addonIDs)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() != int64(len(addonIDs)) {
			return errors.New("one or more addons could not be linked")
		}
	}

	if booking.UserID != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM flight_carts WHERE user_id=$1`, *booking.UserID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := r.scanOne(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "booking", Err: err}
	}
	return b, err
}

// GetByTransactionRef returns (nil, nil) when no booking carries the
// reference; reconciliation uses the nil result as its idempotence probe.
func (r *PGBookingRepository) GetByTransactionRef(ctx context.Context, ref string) (*domain.Booking, error) {
	b, err := r.scanOne(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE transaction_ref=$1 ORDER BY id LIMIT 1`, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *PGBookingRepository) GetByTransactionRefAndOffer(ctx context.Context, ref, offerID string) (*domain.Booking, error) {
	b, err := r.scanOne(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE transaction_ref=$1 AND offer_id=$2`, ref, offerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *PGBookingRepository) ListByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case owner.UserID != nil:
		rows, err = r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, *owner.UserID)
	case owner.GuestUserID != nil:
		rows, err = r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE guest_user_id=$1 ORDER BY created_at DESC`, *owner.GuestUserID)
	default:
		return nil, errors.New("owner reference is empty")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PGBookingRepository) ListUnverifiedSince(ctx context.Context, since time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE verified=false AND created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *PGBookingRepository) SetVerified(ctx context.Context, id int64, verified bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET verified=$1, updated_at=now() WHERE id=$2`, verified, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NotFoundError{Resource: "booking"}
	}
	return nil
}

func (r *PGBookingRepository) scanOne(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.Type, &b.Status, &b.Verified, &b.Reference, &b.Provider,
		&b.TransactionRef, &b.OfferID, &b.APIResponse, &b.Details, &b.TotalAmount, &b.Currency,
		&b.UserID, &b.GuestUserID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) scanMany(rows pgx.Rows) ([]domain.Booking, error) {
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
