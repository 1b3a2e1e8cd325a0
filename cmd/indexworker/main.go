package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendure-ecommerce/vendure-sub026/internal/database"
	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
	"github.com/vendure-ecommerce/vendure-sub026/internal/ipc"
	"github.com/vendure-ecommerce/vendure-sub026/internal/logger"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository/postgres"
)

// The index worker speaks the message protocol on stdin/stdout and opens its
// own database connection from the CONNECTION_OPTIONS it receives. All logs
// go to stderr; stdout carries only protocol frames.
func main() {
	log := logger.NewWithWriter("index-worker", os.Getenv("LOG_LEVEL"), os.Stderr)

	var pool *pgxpool.Pool
	builder := indexer.New(func(ctx context.Context, opts domain.ConnectionOptions) (repository.CatalogRepository, repository.IndexItemRepository, error) {
		cfg := database.PostgresConfig{
			Host:            opts.Host,
			Port:            opts.Port,
			User:            opts.User,
			Password:        opts.Password,
			DBName:          opts.Database,
			SSLMode:         opts.SSLMode,
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		}
		p, err := database.NewPostgresPoolWithLogger(ctx, &cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pool = p
		return postgres.NewCatalogRepository(p), postgres.NewIndexItemRepository(p), nil
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("index worker started")

	worker := ipc.NewWorker(builder, log, os.Stdin, os.Stdout)
	err := worker.Run(ctx)

	if pool != nil {
		pool.Close()
	}
	if err != nil {
		log.Error("index worker stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("index worker stopped")
}
