package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/travoya/travoya/internal/domain"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLoginState(ctx context.Context, id int64, failedLogins int, lockedUntil *time.Time) error
	UpdateRefreshToken(ctx context.Context, id int64, token string) error
	UpsertGuestByEmail(ctx context.Context, guest *domain.GuestUser) error
	GetGuestByID(ctx context.Context, id int64) (*domain.GuestUser, error)
}

type PGUserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &PGUserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, verified, failed_logins, locked_until, refresh_token, created_at, updated_at`

func (r *PGUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	return r.db.QueryRow(ctx, `INSERT INTO users (email, password_hash, first_name, last_name, role, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.Verified).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *PGUserRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *PGUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (r *PGUserRepository) UpdateLoginState(ctx context.Context, id int64, failedLogins int, lockedUntil *time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET failed_logins=$1, locked_until=$2, updated_at=now() WHERE id=$3`, failedLogins, lockedUntil, id)
	return err
}

func (r *PGUserRepository) UpdateRefreshToken(ctx context.Context, id int64, token string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET refresh_token=$1, updated_at=now() WHERE id=$2`, token, id)
	return err
}

// UpsertGuestByEmail reuses the existing guest row for an email, refreshing
// the name and phone when provided.
func (r *PGUserRepository) UpsertGuestByEmail(ctx context.Context, guest *domain.GuestUser) error {
	return r.db.QueryRow(ctx, `INSERT INTO guest_users (email, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), guest_users.first_name),
			last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), guest_users.last_name),
			phone      = COALESCE(NULLIF(EXCLUDED.phone, ''), guest_users.phone)
		RETURNING id, created_at`,
		guest.Email, guest.FirstName, guest.LastName, guest.Phone).
		Scan(&guest.ID, &guest.CreatedAt)
}

func (r *PGUserRepository) GetGuestByID(ctx context.Context, id int64) (*domain.GuestUser, error) {
	row := r.db.QueryRow(ctx, `SELECT id, email, first_name, last_name, phone, created_at FROM guest_users WHERE id=$1`, id)
	var g domain.GuestUser
	if err := row.Scan(&g.ID, &g.Email, &g.FirstName, &g.LastName, &g.Phone, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "guest user", Err: err}
		}
		return nil, err
	}
	return &g, nil
}

func (r *PGUserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.Verified, &u.FailedLogins, &u.LockedUntil, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFoundError{Resource: "user", Err: err}
		}
		return nil, err
	}
	return &u, nil
}

var _ UserRepository = (*PGUserRepository)(nil)
