// Package httpserver manages server creation and api routing.
package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountlock"
	"github.com/go-petr/pet-ledger/internal/accountregistry"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerdelivery"
	"github.com/go-petr/pet-ledger/internal/ledgerevents"
	"github.com/go-petr/pet-ledger/internal/ledgerrepo"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/internal/statementservice"
	"github.com/go-petr/pet-ledger/internal/transactionservice"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

const provisionTimeout = 10 * time.Second

type ledgerStore interface {
	transactionservice.Store
	statementservice.Store
	ledgerdelivery.HealthChecker
	Provision(ctx context.Context, accounts []domain.Account) error
}

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB       *sql.DB
	Engine   *gin.Engine
	Config   configpkg.Config
	Registry *accountregistry.Registry
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// Deps are the external connections the server is built on.
//
// DB is required for the postgres store and Redis for redis coordination.
// A nil Publisher drops transaction events.
type Deps struct {
	DB        *sql.DB
	Redis     redis.UniversalClient
	Publisher transactionservice.Publisher
}

// New creates Server type with provisioned accounts, instantiated domains and routes.
func New(deps Deps, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	registry, err := accountregistry.Parse(config.Accounts)
	if err != nil {
		return nil, fmt.Errorf("cannot parse accounts: %w", err)
	}

	store, err := newStore(deps, config)
	if err != nil {
		return nil, err
	}

	return newServer(store, registry, deps, logger, config)
}

func newServer(store ledgerStore, registry *accountregistry.Registry, deps Deps, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), provisionTimeout)
	defer cancel()

	if err := store.Provision(ctx, registry.All()); err != nil {
		return nil, fmt.Errorf("cannot provision accounts: %w", err)
	}

	locker, err := newLocker(deps, config)
	if err != nil {
		return nil, err
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = ledgerevents.NewNop()
	}

	transactionService := transactionservice.New(store, registry, locker, publisher, config)
	statementService := statementservice.New(store, registry, config)

	ledgerHandler := ledgerdelivery.NewHandler(transactionService, statementService, store)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.POST("/accounts/:id/transactions", ledgerHandler.CreateTransaction)
	engine.GET("/accounts/:id/statement", ledgerHandler.GetStatement)
	engine.GET("/health", ledgerHandler.Health)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("description", ledgerdelivery.ValidDescription)
		if err != nil {
			return nil, errors.New("cannot register description validator")
		}
	}

	server := &Server{
		DB:       deps.DB,
		Engine:   engine,
		Config:   config,
		Registry: registry,
	}

	return server, nil
}

func newStore(deps Deps, config configpkg.Config) (ledgerStore, error) {
	switch config.StoreDriver {
	case configpkg.StoreMemory:
		return ledgerrepo.NewRepoMem(), nil
	case configpkg.StorePostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres store requires a db connection")
		}

		return ledgerrepo.NewRepoPGS(deps.DB), nil
	}

	return nil, fmt.Errorf("unsupported store driver %q", config.StoreDriver)
}

func newLocker(deps Deps, config configpkg.Config) (transactionservice.Locker, error) {
	switch config.Coordination {
	case configpkg.CoordinationOptimistic:
		return accountlock.NewNone(), nil
	case configpkg.CoordinationLocal:
		return accountlock.NewLocal(config.LockTimeout), nil
	case configpkg.CoordinationRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis coordination requires a redis client")
		}

		return accountlock.NewRedis(deps.Redis, config.LockTTL, config.LockTimeout), nil
	}

	return nil, fmt.Errorf("unsupported coordination %q", config.Coordination)
}
