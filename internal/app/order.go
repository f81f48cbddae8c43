// Package app wires the services together: configuration, storage, broker,
// HTTP surface, health probes, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/commerce-saga/internal/bus"
	"github.com/xenking/commerce-saga/internal/domain/order"
	"github.com/xenking/commerce-saga/internal/event"
	"github.com/xenking/commerce-saga/internal/httpapi"
	"github.com/xenking/commerce-saga/internal/postgres"
	"github.com/xenking/commerce-saga/pkg/health"
)

// RunOrder starts the order service: HTTP API plus the OrderCreated
// publisher.
func RunOrder(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing order service", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	publisher := bus.NewKafkaPublisher(cfg.Kafka.Brokers, event.TopicOrderCreated)
	defer func() { _ = publisher.Close() }()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.TCPDialCheck(cfg.Kafka.Brokers[0]))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	svc := order.NewService(postgres.NewOrderRepository(pool), publisher)
	handler := httpapi.NewOrderHandler(svc)

	return serveHTTP(ctx, lg, m, cfg, "order-service", healthSvc, func(mux *http.ServeMux) {
		handler.Register(mux)
	})
}
