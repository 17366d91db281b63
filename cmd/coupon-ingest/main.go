// Command coupon-ingest loads partner promo code lists and stores the codes
// that appear in at least two of them as coupons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/vendor-kart/internal/couponingest"
	"github.com/xenking/vendor-kart/internal/repository"
)

func main() {
	var (
		pattern     string
		databaseURL string
		minSources  int
		capacity    uint
		dryRun      bool
	)

	flag.StringVar(&pattern, "lists", "data/codes*.gz", "glob of promo code list files (plain or gzip)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&minSources, "min-lists", 2, "number of lists a code must appear in")
	flag.UintVar(&capacity, "capacity", 120_000_000, "expected codes per list, sizes the bloom filters")
	flag.BoolVar(&dryRun, "dry-run", false, "print the matching codes instead of storing them")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := couponingest.Options{
		Capacity:          capacity,
		FalsePositiveRate: 0.001,
		MinLen:            8,
		MaxLen:            10,
		MinSources:        minSources,
		ProgressEvery:     10_000_000,
		Logger:            slog.Default(),
	}
	if err := run(ctx, pattern, databaseURL, dryRun, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool, opts couponingest.Options) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match code lists")
	}
	if len(files) == 0 {
		return errors.Errorf("no code lists match %q", pattern)
	}

	codes, err := couponingest.Scan(ctx, files, opts)
	if err != nil {
		return err
	}
	slog.Info("shared codes found", slog.Int("count", len(codes)), slog.Int("lists", len(files)))

	if dryRun {
		for _, code := range codes {
			_, _ = os.Stdout.WriteString(code + "\n")
		}
		return nil
	}
	if len(codes) == 0 {
		slog.Info("no codes to store")
		return nil
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if _, err := couponingest.Write(ctx, repository.NewCouponRepository(pool), couponingest.DefaultRules(), codes, slog.Default()); err != nil {
		return errors.Wrap(err, "write coupons")
	}
	return nil
}
