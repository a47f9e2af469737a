package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/travoya/travoya/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpdateLoginState(ctx context.Context, id int64, failedLogins int, lockedUntil *time.Time) error {
	args := m.Called(ctx, id, failedLogins, lockedUntil)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateRefreshToken(ctx context.Context, id int64, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUserRepository) UpsertGuestByEmail(ctx context.Context, guest *domain.GuestUser) error {
	args := m.Called(ctx, guest)
	return args.Error(0)
}

func (m *MockUserRepository) GetGuestByID(ctx context.Context, id int64) (*domain.GuestUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GuestUser), args.Error(1)
}

func newTestAuthService(users *MockUserRepository) *AuthService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &AuthService{
		users:       users,
		secret:      []byte("test-secret"),
		accessTTL:   15 * time.Minute,
		refreshTTL:  24 * time.Hour,
		maxAttempts: 3,
		lockout:     30 * time.Minute,
		logger:      logger,
		now:         time.Now,
	}
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(hash)
}

func TestAuthService_Signup(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	users.On("CreateUser", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

	user, err := service.Signup(ctx, SignupInput{Email: "ada@example.com", Password: "long-enough", FirstName: "Ada"})

	assert.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.NotEqual(t, "long-enough", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long-enough")))
}

func TestAuthService_Signup_ShortPassword(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)

	user, err := service.Signup(context.Background(), SignupInput{Email: "ada@example.com", Password: "short"})

	assert.Error(t, err)
	assert.Nil(t, user)
	users.AssertNotCalled(t, "CreateUser")
}

func TestAuthService_Login_Success(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse"), Role: domain.RoleUser}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
	users.On("UpdateLoginState", ctx, int64(7), 0, (*time.Time)(nil)).Return(nil).Once()
	users.On("UpdateRefreshToken", ctx, int64(7), mock.AnythingOfType("string")).Return(nil).Once()

	pair, err := service.Login(ctx, "ada@example.com", "correct-horse")

	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := service.ParseAccessToken(pair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, domain.RoleUser, claims.Role)

	users.AssertExpectations(t)
}

func TestAuthService_Login_WrongPasswordCountsAttempt(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse"), FailedLogins: 0}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
	users.On("UpdateLoginState", ctx, int64(7), 1, (*time.Time)(nil)).Return(nil).Once()

	pair, err := service.Login(ctx, "ada@example.com", "wrong")

	assert.Error(t, err)
	assert.Nil(t, pair)
	users.AssertExpectations(t)
}

func TestAuthService_Login_LockoutOnFinalAttempt(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse"), FailedLogins: 2}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
	users.On("UpdateLoginState", ctx, int64(7), 0, mock.AnythingOfType("*time.Time")).Return(nil).Once()

	pair, err := service.Login(ctx, "ada@example.com", "wrong")

	assert.Error(t, err)
	assert.Nil(t, pair)
	users.AssertExpectations(t)
}

func TestAuthService_Login_LockedAccountRejected(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	until := time.Now().Add(10 * time.Minute)
	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse"), LockedUntil: &until}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()

	pair, err := service.Login(ctx, "ada@example.com", "correct-horse")

	assert.Error(t, err)
	assert.Nil(t, pair)
	assert.Contains(t, err.Error(), "locked")
	users.AssertNotCalled(t, "UpdateRefreshToken")
}

func TestAuthService_Login_UnknownEmailHidesExistence(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	users.On("GetUserByEmail", ctx, "nobody@example.com").
		Return(nil, domain.NotFoundError{Resource: "user"}).Once()

	pair, err := service.Login(ctx, "nobody@example.com", "whatever")

	assert.Error(t, err)
	assert.Nil(t, pair)
	assert.Equal(t, "invalid credentials", err.Error())
}

func TestAuthService_Refresh_RotationMismatch(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse")}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
	users.On("UpdateLoginState", ctx, int64(7), 0, (*time.Time)(nil)).Return(nil).Once()
	users.On("UpdateRefreshToken", ctx, int64(7), mock.AnythingOfType("string")).Return(nil)

	pair, err := service.Login(ctx, "ada@example.com", "correct-horse")
	assert.NoError(t, err)

	// the stored token was rotated by a later login on another device
	stored.RefreshToken = "a-newer-token"
	users.On("GetUserByID", ctx, int64(7)).Return(stored, nil).Once()

	refreshed, err := service.Refresh(ctx, pair.RefreshToken)

	assert.Error(t, err)
	assert.Nil(t, refreshed)
	assert.Contains(t, err.Error(), "rotated")
}

func TestAuthService_Refresh_Success(t *testing.T) {
	users := &MockUserRepository{}
	service := newTestAuthService(users)
	ctx := context.Background()

	stored := &domain.User{ID: 7, Email: "ada@example.com", PasswordHash: hashOf(t, "correct-horse")}
	users.On("GetUserByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
	users.On("UpdateLoginState", ctx, int64(7), 0, (*time.Time)(nil)).Return(nil).Once()
	users.On("UpdateRefreshToken", ctx, int64(7), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { stored.RefreshToken = args.String(2) }).Return(nil)

	pair, err := service.Login(ctx, "ada@example.com", "correct-horse")
	assert.NoError(t, err)

	users.On("GetUserByID", ctx, int64(7)).Return(stored, nil).Once()

	refreshed, err := service.Refresh(ctx, pair.RefreshToken)

	assert.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestAuthService_ParseAccessToken_BadToken(t *testing.T) {
	service := newTestAuthService(&MockUserRepository{})

	claims, err := service.ParseAccessToken("not-a-jwt")

	assert.Error(t, err)
	assert.Nil(t, claims)
}
