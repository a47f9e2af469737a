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
	"github.com/travoya/travoya/config"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/cache"
	"github.com/travoya/travoya/internal/email"
	"github.com/travoya/travoya/internal/fxrates"
	"github.com/travoya/travoya/internal/kafka"
	"github.com/travoya/travoya/internal/payment"
	"github.com/travoya/travoya/internal/repository"
	"github.com/travoya/travoya/internal/service/booking"
)

type sweeper interface {
	SweepUnverified(ctx context.Context, window time.Duration) (*booking.SweepReport, error)
}

// runSweep executes one reconciliation pass. Orphan candidates are the
// alert condition; settled bookings are routine.
func runSweep(ctx context.Context, svc sweeper, window time.Duration, logger *logrus.Logger) {
	report, err := svc.SweepUnverified(ctx, window)
	if err != nil {
		logger.WithError(err).Error("reconciliation sweep failed")
		return
	}
	if len(report.Settled) > 0 {
		logger.WithField("count", len(report.Settled)).Info("bookings settled by sweep")
	}
	if len(report.Orphans) > 0 {
		logger.WithField("count", len(report.Orphans)).Warn("unverified bookings need attention")
	}
}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.SearchCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	gds := amadeus.NewClient(cfg.Amadeus, redisCache, time.Duration(cfg.Booking.TokenExpirySkew)*time.Second)
	fxClient := fxrates.NewClient(cfg.FX)
	flutterwave := payment.NewFlutterwaveClient(cfg.Payments)

	bookingRepo := repository.NewBookingRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

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
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()

	emailSender := email.NewSender(cfg.Email, logger)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, event kafka.BookingEvent) error {
			// the event is acked regardless: a dead email never blocks the stream
			if err := emailSender.Send(ctx, event); err != nil {
				logger.WithError(err).WithField("reference", event.Reference).Error("send confirmation email")
			}
			return nil
		}); err != nil {
			logger.WithError(err).Info("consumer stopped")
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute)
	defer sweepTicker.Stop()

	orphanWindow := time.Duration(cfg.Worker.OrphanWindowHours) * time.Hour

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			runSweep(ctx, bookingService, orphanWindow, logger)
		case s := <-sig:
			logger.WithField("signal", s.String()).Info("shutting down")
			return
		}
	}
}
