// Package httpserver manages server creation and api routing.
package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountdelivery"
	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/accountservice"
	"github.com/go-petr/pet-ledger/internal/memstore"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/internal/moneydelivery"
	"github.com/go-petr/pet-ledger/internal/moneyservice"
	"github.com/go-petr/pet-ledger/internal/transactionrepo"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/metricspkg"
	"github.com/go-petr/pet-ledger/pkg/redispkg"
	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// DriverMemory selects the in-memory store instead of a database.
const DriverMemory = "memory"

// Server holds store connections, handlers router and configuration.
type Server struct {
	DB      *sql.DB
	Cache   *redis.Client
	Engine  *gin.Engine
	Config  configpkg.Config
	Metrics *metricspkg.Collector
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// Close releases database and cache connections.
func (s *Server) Close() error {
	var errs []error

	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}

	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}

	return errors.Join(errs...)
}

type accountStore interface {
	accountservice.Repo
	moneyservice.AccountRepo
}

type stores struct {
	tm           moneyservice.TxManager
	accounts     accountStore
	transactions moneyservice.TransactionRepo
}

func openStores(config configpkg.Config, logger zerolog.Logger) (stores, *sql.DB, error) {
	if config.DBDriver == DriverMemory {
		logger.Warn().Msg("using in-memory store, data is lost on restart")

		store := memstore.New(config.LockTimeout)

		return stores{tm: store, accounts: store, transactions: store}, nil, nil
	}

	if config.MigrateOnStart {
		if err := dbpkg.Migrate(config.DBSource); err != nil {
			return stores{}, nil, fmt.Errorf("cannot migrate database: %w", err)
		}
	}

	conn, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		return stores{}, nil, fmt.Errorf("cannot connect to database: %w", err)
	}

	return stores{
		tm:           dbpkg.NewTxManager(conn),
		accounts:     accountrepo.NewRepoPGS(conn, config.LockTimeout),
		transactions: transactionrepo.NewRepoPGS(conn),
	}, conn, nil
}

// New creates Server type with instantiated domains and routes.
func New(ctx context.Context, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	tokenMaker, err := tokenpkg.NewPasetoMaker(config.TokenSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	if err := web.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("cannot register validators: %w", err)
	}

	st, conn, err := openStores(config, logger)
	if err != nil {
		return nil, err
	}

	server := &Server{
		DB:      conn,
		Config:  config,
		Metrics: metricspkg.New(),
	}

	if config.RedisURL != "" {
		server.Cache, err = redispkg.Setup(ctx, config.RedisURL)
		if err != nil {
			_ = server.Close()
			return nil, fmt.Errorf("cannot connect to redis: %w", err)
		}
	}

	accountService := accountservice.New(st.accounts)
	moneyService := moneyservice.New(st.tm, st.accounts, st.transactions, moneyservice.Config{
		MaxAttempts: config.MaxRetryAttempts,
		BaseDelay:   config.RetryBaseDelay,
		Metrics:     server.Metrics,
	})

	accountHandler := accountdelivery.NewHandler(accountService)
	moneyHandler := moneydelivery.NewHandler(moneyService, accountService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.Metrics(server.Metrics))

	engine.GET("/health", func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, web.Response{Data: gin.H{"status": "ok"}})
	})
	engine.GET("/metrics", gin.WrapH(server.Metrics.Handler()))

	anyRole := middleware.RequireRole(tokenpkg.RoleUser, tokenpkg.RoleAdmin)
	adminOnly := middleware.RequireRole(tokenpkg.RoleAdmin)

	idempotent := func(gctx *gin.Context) { gctx.Next() }
	if server.Cache != nil {
		idempotent = middleware.Idempotency(server.Cache, config.IdempotencyTTL)
	}

	accounts := engine.Group("/api/accounts", middleware.AuthMiddleware(tokenMaker))

	accounts.POST("", anyRole, accountHandler.Create)
	accounts.GET("", adminOnly, accountHandler.List)
	accounts.GET("/:id", anyRole, accountHandler.Get)
	accounts.DELETE("/:id", adminOnly, accountHandler.Delete)

	accounts.PUT("/:id/deposit", anyRole, idempotent, moneyHandler.Deposit)
	accounts.PUT("/:id/withdraw", anyRole, idempotent, moneyHandler.Withdraw)
	accounts.POST("/transfer", anyRole, idempotent, moneyHandler.Transfer)
	accounts.GET("/:id/transactions", anyRole, moneyHandler.ListTransactions)

	server.Engine = engine

	return server, nil
}
