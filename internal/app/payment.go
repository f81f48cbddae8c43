package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/domain/payment"
	"github.com/xenking/commerce-saga/internal/event"
	"github.com/xenking/commerce-saga/internal/httpapi"
	"github.com/xenking/commerce-saga/internal/postgres"
	"github.com/xenking/commerce-saga/pkg/health"
)

// ConsumerGroup is the fixed consumer group id for the payment service's
// order-created subscription.
const ConsumerGroup = "payment-service-group"

// RunPayment starts the payment service: the order-created consumer loop and
// the payment query HTTP API, supervised together.
func RunPayment(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing payment service", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	publisher := bus.NewKafkaPublisher(cfg.Kafka.Brokers, event.TopicPaymentProcessed)
	defer func() { _ = publisher.Close() }()

	consumer := bus.NewKafkaConsumer(cfg.Kafka.Brokers, ConsumerGroup, event.TopicOrderCreated)
	defer func() { _ = consumer.Close() }()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.TCPDialCheck(cfg.Kafka.Brokers[0]))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	svc := payment.NewService(postgres.NewPaymentRepository(pool), publisher)
	handler := httpapi.NewPaymentHandler(svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Starting consumer",
			zap.String("topic", event.TopicOrderCreated),
			zap.String("group", ConsumerGroup),
		)
		return consumer.Run(zctx.Base(gctx, lg), svc.OnOrderCreated)
	})
	g.Go(func() error {
		return serveHTTP(gctx, lg, m, cfg, "payment-service", healthSvc, func(mux *http.ServeMux) {
			handler.Register(mux)
		})
	})
	return g.Wait()
}
