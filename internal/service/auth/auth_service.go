package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type AuthUseCase interface {
	Signup(ctx context.Context, input SignupInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	ParseAccessToken(token string) (*Claims, error)
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *domain.User
}

type Claims struct {
	UserID int64       `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues JWT pairs and enforces the failed-login lockout. The
// refresh token is stored on the user row and rotated on every refresh.
type AuthService struct {
	users       repository.UserRepository
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxAttempts int
	lockout     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewAuthService(users repository.UserRepository, cfg config.AuthConfig, logger *logrus.Logger) *AuthService {
	return &AuthService{
		users:       users,
		secret:      []byte(cfg.JWTSecret),
		accessTTL:   time.Duration(cfg.AccessTTLMinutes) * time.Minute,
		refreshTTL:  time.Duration(cfg.RefreshTTLHours) * time.Hour,
		maxAttempts: cfg.MaxLoginAttempts,
		lockout:     time.Duration(cfg.LockoutMinutes) * time.Minute,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, domain.NewValidationError("email", "is required")
	}
	if len(input.Password) < 8 {
		return nil, domain.NewValidationError("password", "must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		var notFound domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.AuthError{Msg: "invalid credentials"}
		}
		return nil, err
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, domain.AuthError{Msg: "account locked, try again later"}
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		failed := user.FailedLogins + 1
		var lockedUntil *time.Time
		if failed >= s.maxAttempts {
			until := now.Add(s.lockout)
			lockedUntil = &until
			failed = 0
			s.logger.WithField("user_id", user.ID).Warn("account locked after repeated failed logins")
		}
		if err := s.users.UpdateLoginState(ctx, user.ID, failed, lockedUntil); err != nil {
			s.logger.WithError(err).Warn("failed to record login attempt")
		}
		return nil, domain.AuthError{Msg: "invalid credentials"}
	}

	if err := s.users.UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
		s.logger.WithError(err).Warn("failed to reset login attempts")
	}
	return s.issue(ctx, user)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return nil, domain.AuthError{Msg: "invalid refresh token"}
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.AuthError{Msg: "invalid refresh token"}
	}
	if user.RefreshToken != refreshToken {
		return nil, domain.AuthError{Msg: "refresh token has been rotated"}
	}
	return s.issue(ctx, user)
}

func (s *AuthService) ParseAccessToken(token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, domain.AuthError{Msg: "invalid access token"}
	}
	return claims, nil
}

func (s *AuthService) issue(ctx context.Context, user *domain.User) (*TokenPair, error) {
	now := s.now()

	access, err := s.sign(user, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

func (s *AuthService) sign(user *domain.User, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("token validation failed")
	}
	return &claims, nil
}

var _ AuthUseCase = (*AuthService)(nil)
