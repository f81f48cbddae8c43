package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/commerce-saga/internal/domain/product"
	"github.com/xenking/commerce-saga/internal/httpapi"
	"github.com/xenking/commerce-saga/internal/postgres"
	"github.com/xenking/commerce-saga/pkg/health"
)

// RunProduct starts the product service. It is independent of the saga: no
// broker connection, catalog CRUD only.
func RunProduct(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing product service", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	svc := product.NewService(postgres.NewProductRepository(pool))
	handler := httpapi.NewProductHandler(svc)

	return serveHTTP(ctx, lg, m, cfg, "product-service", healthSvc, func(mux *http.ServeMux) {
		handler.Register(mux)
	})
}
