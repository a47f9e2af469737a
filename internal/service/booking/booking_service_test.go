package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/payment"
)

// Mock implementations

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking, travelers []domain.Traveler, addonIDs []int64) error {
	args := m.Called(ctx, booking, travelers, addonIDs)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByTransactionRef(ctx context.Context, ref string) (*domain.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByTransactionRefAndOffer(ctx context.Context, ref, offerID string) (*domain.Booking, error) {
	args := m.Called(ctx, ref, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Booking, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListUnverifiedSince(ctx context.Context, since time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) SetVerified(ctx context.Context, id int64, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}

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

type MockAddonRepository struct {
	mock.Mock
}

func (m *MockAddonRepository) List(ctx context.Context) ([]domain.FlightAddon, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.FlightAddon), args.Error(1)
}

func (m *MockAddonRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.FlightAddon, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.FlightAddon), args.Error(1)
}

func (m *MockAddonRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.FlightAddon, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.FlightAddon), args.Error(1)
}

func (m *MockAddonRepository) Create(ctx context.Context, addon *domain.FlightAddon) error {
	args := m.Called(ctx, addon)
	return args.Error(0)
}

func (m *MockAddonRepository) Update(ctx context.Context, addon *domain.FlightAddon) error {
	args := m.Called(ctx, addon)
	return args.Error(0)
}

func (m *MockAddonRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) Add(ctx context.Context, cart *domain.FlightCart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *MockCartRepository) ListByUser(ctx context.Context, userID int64) ([]domain.FlightCart, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.FlightCart), args.Error(1)
}

func (m *MockCartRepository) ClearByUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockMarginRepository struct {
	mock.Mock
}

func (m *MockMarginRepository) GetCurrent(ctx context.Context) (*domain.MarginSetting, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MarginSetting), args.Error(1)
}

func (m *MockMarginRepository) Upsert(ctx context.Context, percent float64) (*domain.MarginSetting, error) {
	args := m.Called(ctx, percent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MarginSetting), args.Error(1)
}

func (m *MockMarginRepository) ListExcludedAirlines(ctx context.Context) ([]domain.ExcludedAirline, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.ExcludedAirline), args.Error(1)
}

func (m *MockMarginRepository) AddExcludedAirline(ctx context.Context, code string) (*domain.ExcludedAirline, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExcludedAirline), args.Error(1)
}

func (m *MockMarginRepository) RemoveExcludedAirline(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type MockGDS struct {
	mock.Mock
}

func (m *MockGDS) CreateFlightOrder(ctx context.Context, offer json.RawMessage, travelers []amadeus.Traveler) (*amadeus.FlightOrder, error) {
	args := m.Called(ctx, offer, travelers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*amadeus.FlightOrder), args.Error(1)
}

func (m *MockGDS) SearchLocations(ctx context.Context, keyword, subType string) ([]amadeus.Location, error) {
	args := m.Called(ctx, keyword, subType)
	return args.Get(0).([]amadeus.Location), args.Error(1)
}

func (m *MockGDS) AirlineName(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

type MockPaymentVerifier struct {
	mock.Mock
}

func (m *MockPaymentVerifier) VerifyTransaction(ctx context.Context, reference string) (*payment.VerifiedTransaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.VerifiedTransaction), args.Error(1)
}

type MockFXRates struct {
	mock.Mock
}

func (m *MockFXRates) Rate(ctx context.Context, base, quote string) (float64, error) {
	args := m.Called(ctx, base, quote)
	return args.Get(0).(float64), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type serviceMocks struct {
	bookings *MockBookingRepository
	users    *MockUserRepository
	addons   *MockAddonRepository
	carts    *MockCartRepository
	margins  *MockMarginRepository
	gds      *MockGDS
	payments *MockPaymentVerifier
	fx       *MockFXRates
	producer *MockProducer
}

func newTestService() (*BookingService, *serviceMocks) {
	m := &serviceMocks{
		bookings: &MockBookingRepository{},
		users:    &MockUserRepository{},
		addons:   &MockAddonRepository{},
		carts:    &MockCartRepository{},
		margins:  &MockMarginRepository{},
		gds:      &MockGDS{},
		payments: &MockPaymentVerifier{},
		fx:       &MockFXRates{},
		producer: &MockProducer{},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	service := &BookingService{
		bookings:     m.bookings,
		users:        m.users,
		addons:       m.addons,
		carts:        m.carts,
		margins:      m.margins,
		gds:          m.gds,
		payments:     m.payments,
		fx:           m.fx,
		producer:     m.producer,
		bookingTopic: "booking_events",
		currency:     "NGN",
		logger:       logger,
	}
	return service, m
}

func userID(id int64) *int64 { return &id }

var testOffer = json.RawMessage(`{"id":"OFFER-1","price":{"grandTotal":"1000.00"}}`)

func testTravelers() []TravelerInput {
	return []TravelerInput{{FirstName: "Ada", LastName: "Obi", Email: "ada@example.com"}}
}

// Test 1: successful flight booking with margin applied
func TestBookingService_BookFlight_AppliesMargin(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com", FirstName: "Ada"}, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, testOffer, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR123", OfferID: "OFFER-1", BasePrice: 1000, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(&domain.MarginSetting{Percent: 10}, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64(nil)).Return(nil).Once()
	m.addons.On("ListByBooking", ctx, mock.Anything).Return([]domain.FlightAddon{}, nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.BookFlight(ctx, BookFlightInput{
		Offer:     testOffer,
		Travelers: testTravelers(),
		Owner:     domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 1100.0, result.Breakdown.OriginalTotal)
	assert.Equal(t, 1100.0, result.Breakdown.GrandTotal)
	assert.Equal(t, 1100.0, result.Booking.TotalAmount)
	assert.Equal(t, "NGN", result.Booking.Currency)
	assert.True(t, result.Booking.Verified)

	m.gds.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
	m.fx.AssertNotCalled(t, "Rate")
}

// Test 2: addon prices converted from USD and added after margin
func TestBookingService_BookFlight_AddonConversion(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.addons.On("GetByIDs", ctx, []int64{3}).Return([]domain.FlightAddon{{ID: 3, Name: "Lounge", PriceUSD: 5}}, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, testOffer, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR124", OfferID: "OFFER-1", BasePrice: 1000, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(&domain.MarginSetting{Percent: 10}, nil).Once()
	m.fx.On("Rate", ctx, "USD", "NGN").Return(1500.0, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64{3}).Return(nil).Once()
	m.addons.On("ListByBooking", ctx, mock.Anything).Return([]domain.FlightAddon{{ID: 3, Name: "Lounge", PriceUSD: 5}}, nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.BookFlight(ctx, BookFlightInput{
		Offer:     testOffer,
		Travelers: testTravelers(),
		AddonIDs:  []int64{3},
		Owner:     domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.Equal(t, 1100.0, result.Breakdown.OriginalTotal)
	assert.Equal(t, 7500.0, result.Breakdown.AddonTotal)
	assert.Equal(t, 8600.0, result.Breakdown.GrandTotal)

	m.fx.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
}

// Test 3: validation failures never reach the provider or the store
func TestBookingService_BookFlight_ValidationShortCircuits(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name  string
		input BookFlightInput
		field string
	}{
		{
			name:  "missing offer",
			input: BookFlightInput{Travelers: testTravelers(), Owner: domain.OwnerRef{UserID: userID(7)}},
			field: "flight_offer",
		},
		{
			name:  "missing travelers",
			input: BookFlightInput{Offer: testOffer, Owner: domain.OwnerRef{UserID: userID(7)}},
			field: "travelers",
		},
		{
			name:  "missing owner",
			input: BookFlightInput{Offer: testOffer, Travelers: testTravelers()},
			field: "owner",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, m := newTestService()

			result, err := service.BookFlight(ctx, tc.input)

			assert.Error(t, err)
			assert.Nil(t, result)
			var verr domain.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)

			m.gds.AssertNotCalled(t, "CreateFlightOrder")
			m.bookings.AssertNotCalled(t, "Create")
		})
	}
}

// Test 4: unknown addon id fails before the upstream order
func TestBookingService_BookFlight_UnknownAddon(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.addons.On("GetByIDs", ctx, []int64{3, 99}).Return([]domain.FlightAddon{{ID: 3}}, nil).Once()

	result, err := service.BookFlight(ctx, BookFlightInput{
		Offer:     testOffer,
		Travelers: testTravelers(),
		AddonIDs:  []int64{3, 99},
		Owner:     domain.OwnerRef{UserID: userID(7)},
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	var verr domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	m.gds.AssertNotCalled(t, "CreateFlightOrder")
	m.bookings.AssertNotCalled(t, "Create")
}

// Test 5: an absent margin row prices with 0%
func TestBookingService_BookFlight_MissingMarginDefaultsToZero(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, testOffer, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR125", BasePrice: 1000, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(nil, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64(nil)).Return(nil).Once()
	m.addons.On("ListByBooking", ctx, mock.Anything).Return([]domain.FlightAddon{}, nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.BookFlight(ctx, BookFlightInput{
		Offer:     testOffer,
		Travelers: testTravelers(),
		Owner:     domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.Equal(t, 1000.0, result.Breakdown.GrandTotal)
}

// Test 6: a failed FX lookup falls back to a rate of 1
func TestBookingService_BookFlight_FXFailOpen(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.addons.On("GetByIDs", ctx, []int64{3}).Return([]domain.FlightAddon{{ID: 3, PriceUSD: 5}}, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, testOffer, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR126", BasePrice: 1000, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(&domain.MarginSetting{Percent: 0}, nil).Once()
	m.fx.On("Rate", ctx, "USD", "NGN").Return(0.0, errors.New("rates api down")).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64{3}).Return(nil).Once()
	m.addons.On("ListByBooking", ctx, mock.Anything).Return([]domain.FlightAddon{}, nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.BookFlight(ctx, BookFlightInput{
		Offer:     testOffer,
		Travelers: testTravelers(),
		AddonIDs:  []int64{3},
		Owner:     domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.Equal(t, 5.0, result.Breakdown.AddonTotal)
	assert.Equal(t, 1005.0, result.Breakdown.GrandTotal)
}

// Test 7: a second reconcile for the same transaction returns the existing booking
func TestBookingService_Reconcile_Idempotent(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	existing := &domain.Booking{ID: 42, TransactionRef: "tx-1", Reference: "PNR42"}
	m.bookings.On("GetByTransactionRef", ctx, "tx-1").Return(existing, nil).Once()

	result, err := service.ReconcileBooking(ctx, ReconcileInput{
		TransactionRef: "tx-1",
		Offer:          testOffer,
		Travelers:      testTravelers(),
		Owner:          domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.True(t, result.AlreadyBooked)
	assert.Len(t, result.Bookings, 1)
	assert.Equal(t, int64(42), result.Bookings[0].ID)

	m.payments.AssertNotCalled(t, "VerifyTransaction")
	m.gds.AssertNotCalled(t, "CreateFlightOrder")
	m.bookings.AssertNotCalled(t, "Create")
}

// Test 8: an unsettled payment is rejected with a payment error
func TestBookingService_Reconcile_UnsettledPayment(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.bookings.On("GetByTransactionRef", ctx, "tx-2").Return(nil, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-2").
		Return(&payment.VerifiedTransaction{Reference: "tx-2", Status: "failed"}, nil).Once()

	result, err := service.ReconcileBooking(ctx, ReconcileInput{
		TransactionRef: "tx-2",
		Offer:          testOffer,
		Travelers:      testTravelers(),
		Owner:          domain.OwnerRef{UserID: userID(7)},
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	var perr domain.PaymentError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, "tx-2", perr.Reference)

	m.gds.AssertNotCalled(t, "CreateFlightOrder")
	m.bookings.AssertNotCalled(t, "Create")
}

// Test 9: a verified payment books the offer and persists exactly once
func TestBookingService_Reconcile_Success(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	m.bookings.On("GetByTransactionRef", ctx, "tx-3").Return(nil, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-3").
		Return(&payment.VerifiedTransaction{Reference: "tx-3", Status: "successful", Amount: 1100, Currency: "NGN"}, nil).Once()
	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(&domain.MarginSetting{Percent: 10}, nil).Once()
	m.bookings.On("GetByTransactionRefAndOffer", ctx, "tx-3", "OFFER-1").Return(nil, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, testOffer, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR300", OfferID: "OFFER-1", BasePrice: 1000, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64(nil)).Return(nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.ReconcileBooking(ctx, ReconcileInput{
		TransactionRef: "tx-3",
		Offer:          testOffer,
		Travelers:      testTravelers(),
		Owner:          domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.False(t, result.AlreadyBooked)
	assert.Len(t, result.Bookings, 1)
	assert.Equal(t, "tx-3", result.Bookings[0].TransactionRef)
	assert.Equal(t, 1100.0, result.Bookings[0].TotalAmount)
	assert.False(t, result.Bookings[0].Verified, "reconciled bookings stay unverified until the sweep settles them")

	m.bookings.AssertExpectations(t)
	m.payments.AssertExpectations(t)
}

// Test 10: cart items are booked one by one, a failed offer is skipped
func TestBookingService_Reconcile_CartPartialSuccess(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	offerA := json.RawMessage(`{"id":"A"}`)
	offerB := json.RawMessage(`{"id":"B"}`)

	m.bookings.On("GetByTransactionRef", ctx, "tx-4").Return(nil, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-4").
		Return(&payment.VerifiedTransaction{Reference: "tx-4", Status: "successful"}, nil).Once()
	m.carts.On("ListByUser", ctx, int64(7)).
		Return([]domain.FlightCart{{UserID: 7, Offer: offerA}, {UserID: 7, Offer: offerB}}, nil).Once()
	m.users.On("GetUserByID", ctx, int64(7)).Return(&domain.User{ID: 7, Email: "ada@example.com"}, nil).Once()
	m.margins.On("GetCurrent", ctx).Return(&domain.MarginSetting{Percent: 0}, nil).Once()
	m.bookings.On("GetByTransactionRefAndOffer", ctx, "tx-4", "A").Return(nil, nil).Once()
	m.bookings.On("GetByTransactionRefAndOffer", ctx, "tx-4", "B").Return(nil, nil).Once()
	m.gds.On("CreateFlightOrder", ctx, offerA, mock.Anything).
		Return(nil, domain.UpstreamError{Provider: "amadeus", Msg: "sold out"}).Once()
	m.gds.On("CreateFlightOrder", ctx, offerB, mock.Anything).
		Return(&amadeus.FlightOrder{Reference: "PNR-B", OfferID: "B", BasePrice: 500, Raw: json.RawMessage(`{}`)}, nil).Once()
	m.bookings.On("Create", ctx, mock.AnythingOfType("*domain.Booking"), mock.Anything, []int64(nil)).Return(nil).Once()
	m.producer.On("Publish", ctx, "booking_events", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.ReconcileBooking(ctx, ReconcileInput{
		TransactionRef: "tx-4",
		Travelers:      testTravelers(),
		Owner:          domain.OwnerRef{UserID: userID(7)},
	})

	assert.NoError(t, err)
	assert.Len(t, result.Bookings, 1)
	assert.Equal(t, "PNR-B", result.Bookings[0].Reference)

	m.gds.AssertExpectations(t)
	m.bookings.AssertExpectations(t)
}

// Test 11: the sweep verifies settled bookings and leaves the rest alone
func TestBookingService_SweepUnverified(t *testing.T) {
	service, m := newTestService()
	ctx := context.Background()

	pending := []domain.Booking{
		{ID: 1, TransactionRef: "tx-settled"},
		{ID: 2, TransactionRef: "tx-failed"},
		{ID: 3, TransactionRef: ""},
		{ID: 4, TransactionRef: "tx-flaky"},
	}
	m.bookings.On("ListUnverifiedSince", ctx, mock.AnythingOfType("time.Time")).Return(pending, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-settled").
		Return(&payment.VerifiedTransaction{Status: "successful"}, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-failed").
		Return(&payment.VerifiedTransaction{Status: "failed"}, nil).Once()
	m.payments.On("VerifyTransaction", ctx, "tx-flaky").
		Return(nil, errors.New("provider timeout")).Once()
	m.bookings.On("SetVerified", ctx, int64(1), true).Return(nil).Once()

	report, err := service.SweepUnverified(ctx, 24*time.Hour)

	assert.NoError(t, err)
	assert.Len(t, report.Settled, 1)
	assert.Equal(t, int64(1), report.Settled[0].ID)
	assert.True(t, report.Settled[0].Verified)

	// the unsettled payment and the ref-less booking are the orphan
	// candidates; the transient verification failure is neither and waits
	// for the next pass
	assert.Len(t, report.Orphans, 2)
	assert.Equal(t, int64(2), report.Orphans[0].ID)
	assert.Equal(t, int64(3), report.Orphans[1].ID)

	m.bookings.AssertExpectations(t)
	m.payments.AssertExpectations(t)
}
