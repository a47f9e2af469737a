package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/travoya/travoya/api"
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/bootstrap"
	"github.com/travoya/travoya/internal/cache"
	"github.com/travoya/travoya/internal/fxrates"
	"github.com/travoya/travoya/internal/kafka"
	"github.com/travoya/travoya/internal/payment"
	"github.com/travoya/travoya/internal/ratelimit"
	"github.com/travoya/travoya/internal/repository"
	"github.com/travoya/travoya/internal/service/auth"
	"github.com/travoya/travoya/internal/service/booking"
	"github.com/travoya/travoya/internal/service/search"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.SearchCacheTTL)*time.Second)
	limiter := ratelimit.NewLimiter(cfg.Booking.SearchPerMinute, cfg.Booking.SearchPerHour)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	gds := amadeus.NewClient(cfg.Amadeus, redisCache, time.Duration(cfg.Booking.TokenExpirySkew)*time.Second)
	fxClient := fxrates.NewClient(cfg.FX)
	flutterwave := payment.NewFlutterwaveClient(cfg.Payments)
	stripe := payment.NewStripeClient(cfg.Payments)

	bookingRepo := repository.NewBookingRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	authService := auth.NewAuthService(userRepo, cfg.Auth, logger)
	searchService := search.NewSearchService(gds, redisCache, limiter, catalogRepo, logger)
	bookingService := booking.NewBookingService(
		bookingRepo,
		userRepo,
		catalogRepo,
		catalogRepo,
		catalogRepo,
		gds,
		flutterwave,
		fxClient,
		producer,
		cfg.Kafka.BookingTopic,
		cfg.Booking.Currency,
		logger,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	handlers := bootstrap.Handlers{
		Auth:     api.NewAuthHandler(authService),
		Search:   api.NewSearchHandler(searchService),
		Bookings: api.NewBookingHandler(bookingService),
		Catalog:  api.NewCatalogHandler(catalogRepo, catalogRepo, catalogRepo),
		Payments: api.NewPaymentHandler(flutterwave, stripe, cfg.Booking.Currency),
		AuthSvc:  authService,
	}

	if err := bootstrap.Run(ctx, cfg, handlers); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
