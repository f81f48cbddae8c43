package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-saga/internal/domain/product"
	"github.com/xenking/commerce-saga/internal/postgres"
)

// catalogEntry is one record from the seed file.
type catalogEntry struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func main() {
	var (
		catalogPath string
		databaseURL string
	)

	flag.StringVar(&catalogPath, "catalog", "data/catalog.json", "path to product catalog JSON (optionally .gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, catalogPath, databaseURL); err != nil {
		slog.Error("catalog seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog seed completed successfully")
}

func run(ctx context.Context, catalogPath, databaseURL string) error {
	entries, err := readCatalog(catalogPath)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}

	slog.Info("catalog loaded", slog.Int("products", len(entries)))

	if len(entries) == 0 {
		slog.Info("no products to insert")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc := product.NewService(postgres.NewProductRepository(pool))
	for i, e := range entries {
		if _, err := svc.CreateProduct(ctx, product.CreateProductRequest{
			Name:  e.Name,
			Price: e.Price,
			Stock: e.Stock,
		}); err != nil {
			return errors.Wrapf(err, "seed product %q", e.Name)
		}

		if (i+1)%100 == 0 || i+1 == len(entries) {
			slog.Info("seed progress", slog.Int("written", i+1), slog.Int("total", len(entries)))
		}
	}

	return nil
}

// readCatalog decodes a JSON array of products. Files ending in .gz are
// decompressed on the fly.
func readCatalog(path string) ([]catalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var entries []catalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	return entries, nil
}
