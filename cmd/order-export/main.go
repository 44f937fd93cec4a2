package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-gateway/internal/export"
	"github.com/xenking/checkout-gateway/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		out         string
		pageSize    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&out, "out", "orders.jsonl.gz", "output file for gzip-compressed JSON lines")
	flag.IntVar(&pageSize, "page-size", export.DefaultPageSize, "orders fetched per query")
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

	if err := run(ctx, databaseURL, out, pageSize); err != nil {
		slog.Error("order export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, out string, pageSize int) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	start := time.Now()
	n, err := export.WriteFile(ctx, postgres.NewOrderRepository(pool), out, pageSize)
	if err != nil {
		return errors.Wrap(err, "export orders")
	}

	slog.Info("order export completed",
		slog.Int("orders", n),
		slog.String("file", out),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
