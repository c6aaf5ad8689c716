// Package main runs the ledger API that records credits and debits of accounts.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/db"
	"github.com/go-petr/pet-ledger/internal/ledgerevents"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"

	_ "github.com/lib/pq"
)

const shutdownTimeout = 10 * time.Second

type publisher interface {
	Publish(ctx context.Context, event ledgerevents.TransactionCommitted) error
	Close() error
}

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)
	ctx := logger.WithContext(context.Background())

	deps := httpserver.Deps{}

	if config.StoreDriver == configpkg.StorePostgres {
		deps.DB = setupDB(ctx, logger, config)
		defer closeWith(logger, "db", deps.DB.Close)
	}

	if config.Coordination == configpkg.CoordinationRedis {
		client := setupRedis(ctx, logger, config)
		defer closeWith(logger, "redis", client.Close)

		deps.Redis = client
	}

	pub := newPublisher(logger, config)
	defer closeWith(logger, "publisher", pub.Close)

	deps.Publisher = pub

	server, err := httpserver.New(deps, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	srv := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("address", config.ServerAddress).
			Str("store", config.StoreDriver).
			Str("coordination", config.Coordination).
			Msg("LEDGER API SERVER HAS STARTED")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("cannot start server")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("cannot shutdown server gracefully")
	}
}

func setupDB(ctx context.Context, logger zerolog.Logger, config configpkg.Config) *sql.DB {
	conn, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}

	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal().Err(err).Msg("cannot migrate database")
	}

	return conn
}

func setupRedis(ctx context.Context, logger zerolog.Logger, config configpkg.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddress,
		Password:     config.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to redis")
	}

	return client
}

func newPublisher(logger zerolog.Logger, config configpkg.Config) publisher {
	brokers := config.KafkaBrokerList()
	if len(brokers) == 0 {
		logger.Info().Msg("no kafka brokers configured, transaction events are dropped")
		return ledgerevents.NewNop()
	}

	return ledgerevents.NewKafka(brokers, config.KafkaTopic)
}

func closeWith(logger zerolog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error().Err(err).Str("resource", name).Msg("cannot close")
	}
}
