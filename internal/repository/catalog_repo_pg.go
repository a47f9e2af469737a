package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travoya/travoya/internal/domain"
)

type AddonRepository interface {
	List(ctx context.Context) ([]domain.FlightAddon, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightAddon, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.FlightAddon, error)
	Create(ctx context.Context, addon *domain.FlightAddon) error
	Update(ctx context.Context, addon *domain.FlightAddon) error
	Delete(ctx context.Context, id int64) error
}

type CartRepository interface {
	Add(ctx context.Context, cart *domain.FlightCart) error
	ListByUser(ctx context.Context, userID int64) ([]domain.FlightCart, error)
	ClearByUser(ctx context.Context, userID int64) error
}

type MarginRepository interface {
	// GetCurrent returns (nil, nil) when no margin has been configured.
	GetCurrent(ctx context.Context) (*domain.MarginSetting, error)
	Upsert(ctx context.Context, percent float64) (*domain.MarginSetting, error)
	ListExcludedAirlines(ctx context.Context) ([]domain.ExcludedAirline, error)
	AddExcludedAirline(ctx context.Context, code string) (*domain.ExcludedAirline, error)
	RemoveExcludedAirline(ctx context.Context, code string) error
}

type PGCatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) *PGCatalogRepository {
	return &PGCatalogRepository{db: db}
}

const addonColumns = `id, name, description, price_usd, booking_id, created_at, updated_at`

func (r *PGCatalogRepository) List(ctx context.Context) ([]domain.FlightAddon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+addonColumns+` FROM flight_addons ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddons(rows)
}

func (r *PGCatalogRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightAddon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+addonColumns+` FROM flight_addons WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddons(rows)
}

func (r *PGCatalogRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.FlightAddon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+addonColumns+` FROM flight_addons WHERE booking_id=$1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddons(rows)
}

func (r *PGCatalogRepository) Create(ctx context.Context, addon *domain.FlightAddon) error {
	return r.db.QueryRow(ctx, `INSERT INTO flight_addons (name, description, price_usd)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		addon.Name, addon.Description, addon.PriceUSD).
		Scan(&addon.ID, &addon.CreatedAt, &addon.UpdatedAt)
}

func (r *PGCatalogRepository) Update(ctx context.Context, addon *domain.FlightAddon) error {
	cmd, err := r.db.Exec(ctx, `UPDATE flight_addons SET name=$1, description=$2, price_usd=$3, updated_at=now() WHERE id=$4`,
		addon.Name, addon.Description, addon.PriceUSD, addon.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NotFoundError{Resource: "addon"}
	}
	return nil
}

func (r *PGCatalogRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM flight_addons WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NotFoundError{Resource: "addon"}
	}
	return nil
}

func (r *PGCatalogRepository) Add(ctx context.Context, cart *domain.FlightCart) error {
	return r.db.QueryRow(ctx, `INSERT INTO flight_carts (user_id, offer) VALUES ($1, $2) RETURNING id, created_at`,
		cart.UserID, cart.Offer).
		Scan(&cart.ID, &cart.CreatedAt)
}

func (r *PGCatalogRepository) ListByUser(ctx context.Context, userID int64) ([]domain.FlightCart, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, offer, created_at FROM flight_carts WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	carts := make([]domain.FlightCart, 0)
	for rows.Next() {
		var c domain.FlightCart
		var offer []byte
		if err := rows.Scan(&c.ID, &c.UserID, &offer, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Offer = json.RawMessage(offer)
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

func (r *PGCatalogRepository) ClearByUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM flight_carts WHERE user_id=$1`, userID)
	return err
}

func (r *PGCatalogRepository) GetCurrent(ctx context.Context) (*domain.MarginSetting, error) {
	row := r.db.QueryRow(ctx, `SELECT id, percent, updated_at FROM margin_settings ORDER BY id LIMIT 1`)
	var m domain.MarginSetting
	if err := row.Scan(&m.ID, &m.Percent, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Upsert keeps margin_settings single-row: the first write inserts, every
// later write updates that row.
func (r *PGCatalogRepository) Upsert(ctx context.Context, percent float64) (*domain.MarginSetting, error) {
	current, err := r.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}

	var m domain.MarginSetting
	if current == nil {
		err = r.db.QueryRow(ctx, `INSERT INTO margin_settings (percent) VALUES ($1) RETURNING id, percent, updated_at`, percent).
			Scan(&m.ID, &m.Percent, &m.UpdatedAt)
	} else {
		err = r.db.QueryRow(ctx, `UPDATE margin_settings SET percent=$1, updated_at=now() WHERE id=$2 RETURNING id, percent, updated_at`, percent, current.ID).
			Scan(&m.ID, &m.Percent, &m.UpdatedAt)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PGCatalogRepository) ListExcludedAirlines(ctx context.Context) ([]domain.ExcludedAirline, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code FROM excluded_airlines ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	airlines := make([]domain.ExcludedAirline, 0)
	for rows.Next() {
		var a domain.ExcludedAirline
		if err := rows.Scan(&a.ID, &a.Code); err != nil {
			return nil, err
		}
		airlines = append(airlines, a)
	}
	return airlines, rows.Err()
}

func (r *PGCatalogRepository) AddExcludedAirline(ctx context.Context, code string) (*domain.ExcludedAirline, error) {
	var a domain.ExcludedAirline
	if err := r.db.QueryRow(ctx, `INSERT INTO excluded_airlines (code) VALUES ($1) ON CONFLICT (code) DO UPDATE SET code=EXCLUDED.code RETURNING id, code`, code).
		Scan(&a.ID, &a.Code); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PGCatalogRepository) RemoveExcludedAirline(ctx context.Context, code string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM excluded_airlines WHERE code=$1`, code)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.NotFoundError{Resource: "excluded airline"}
	}
	return nil
}

func scanAddons(rows pgx.Rows) ([]domain.FlightAddon, error) {
	addons := make([]domain.FlightAddon, 0)
	for rows.Next() {
		var a domain.FlightAddon
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.PriceUSD, &a.BookingID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

var (
	_ AddonRepository  = (*PGCatalogRepository)(nil)
	_ CartRepository   = (*PGCatalogRepository)(nil)
	_ MarginRepository = (*PGCatalogRepository)(nil)
)
