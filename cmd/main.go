package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/api"
	"github.com/shiramwangi/gawa/internal/config"
	"github.com/shiramwangi/gawa/internal/db"
	"github.com/shiramwangi/gawa/internal/events"
	"github.com/shiramwangi/gawa/internal/idempotency"
	"github.com/shiramwangi/gawa/internal/metrics"
	"github.com/shiramwangi/gawa/internal/provider"
	"github.com/shiramwangi/gawa/internal/repository"
	"github.com/shiramwangi/gawa/internal/service"
	"github.com/shiramwangi/gawa/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Info().Str("config", cfg.String()).Msg("starting gawa")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, dialect, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer conn.Close()

	if err := migrations.AutoMigrate(ctx, dialect, cfg.Database.Retries, conn); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	var idem idempotency.Store = idempotency.Nop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
	}

	orderWriter := config.NewKafkaWriter(cfg.Kafka, cfg.Kafka.OrderTopic)
	deliveryWriter := config.NewKafkaWriter(cfg.Kafka, cfg.Kafka.DeliveryTopic)
	for _, w := range []*kafka.Writer{orderWriter, deliveryWriter} {
		if w != nil {
			defer w.Close()
		}
	}
	publisher := events.NewKafkaPublisher(orderWriter)

	m := metrics.New()
	repo := repository.NewRepository(conn, dialect)

	deliveryService := service.NewDeliveryService(repo, service.FlatFee{Amount: cfg.Delivery.Fee}, events.NewKafkaDispatcher(deliveryWriter), m)
	orderService := service.NewOrderService(repo, service.NewHTTPMealCatalog(cfg.Catalog.URL, cfg.Catalog.Timeout), deliveryService, publisher, idem, m)
	paymentService := service.NewPaymentService(repo, provider.NewRegistry(provider.NewMpesa()), publisher, m)

	e := api.NewRouter(cfg, api.Handlers{
		Orders:     api.NewOrderHandler(orderService, deliveryService),
		Deliveries: api.NewDeliveryHandler(deliveryService),
		Payments:   api.NewPaymentHandler(paymentService),
	}, m)

	go func() {
		if err := e.Start(cfg.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}
