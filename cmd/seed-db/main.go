// Command seed-db loads catalog files, the launch coupons and a default API
// key into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/vendor-kart/internal/catalogjson"
	"github.com/xenking/vendor-kart/internal/dataset"
	"github.com/xenking/vendor-kart/internal/domain/auth"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/coupon"
	"github.com/xenking/vendor-kart/internal/repository"
)

func main() {
	var (
		databaseURL  string
		catalogFiles string
		defaultStock string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFiles, "catalog", "db/seed/catalog.json", "comma-separated catalog files (JSON, optionally gzip compressed)")
	flag.StringVar(&defaultStock, "default-stock", "100", "stock for vendors that report none")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}
	stock, err := decimal.NewFromString(defaultStock)
	if err != nil {
		slog.Error("invalid default stock", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files := strings.Split(catalogFiles, ",")
	opts := catalogjson.Options{DefaultStock: stock}
	if err := run(ctx, databaseURL, files, opts, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, opts catalogjson.Options, apiKey, pepper string) error {
	products, err := loadCatalogs(ctx, files, opts)
	if err != nil {
		return errors.Wrap(err, "load catalogs")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))
	if err := repository.NewCatalogRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// loadCatalogs decodes every file concurrently. A product ID found in more
// than one file keeps the entry of the last file listed.
func loadCatalogs(ctx context.Context, files []string, opts catalogjson.Options) ([]catalog.Product, error) {
	loaded := make([][]catalog.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		path = strings.TrimSpace(path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			products, err := loadCatalog(path, opts)
			if err != nil {
				return err
			}
			slog.Info("read catalog file", slog.String("path", path), slog.Int("products", len(products)))
			loaded[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		out   []catalog.Product
		index = make(map[string]int)
	)
	for _, products := range loaded {
		for _, p := range products {
			if i, ok := index[p.ID]; ok {
				out[i] = p
				continue
			}
			index[p.ID] = len(out)
			out = append(out, p)
		}
	}
	return out, nil
}

func loadCatalog(path string, opts catalogjson.Options) ([]catalog.Product, error) {
	rc, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	products, err := catalogjson.DecodeCatalog(jx.Decode(rc, 64*1024), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return products, nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding launch coupons")

	coupons := []coupon.Rule{
		{
			Code:         "HAPPYHOURS",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(18),
			Description:  "Happy Hours: 18% off the whole basket",
		},
		{
			Code:         "BUYGETONE",
			DiscountType: coupon.DiscountFreeLowest,
			MinItems:     decimal.NewFromInt(2),
			Description:  "Buy one get one: lowest priced unit free",
		},
		{
			Code:         "MARKET50",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(50),
			MinItems:     decimal.NewFromInt(5),
			Description:  "50 off baskets of 5 or more items",
			MaxUses:      1000,
		},
	}

	for i := range coupons {
		c := &coupons[i]
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default storefront key",
		Scopes:  []string{auth.ScopeCheckout},
	}
	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
