package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lahjaprojekti/lahja-go/internal/clock"
	"github.com/lahjaprojekti/lahja-go/internal/config"
	"github.com/lahjaprojekti/lahja-go/internal/feed"
	"github.com/lahjaprojekti/lahja-go/internal/feed/redisfeed"
	"github.com/lahjaprojekti/lahja-go/internal/handlers"
	"github.com/lahjaprojekti/lahja-go/internal/notify"
	"github.com/lahjaprojekti/lahja-go/internal/postgres"
	redisx "github.com/lahjaprojekti/lahja-go/internal/redis"
	redisrepo "github.com/lahjaprojekti/lahja-go/internal/repository/redis"
	"github.com/lahjaprojekti/lahja-go/internal/service"
	"github.com/lahjaprojekti/lahja-go/internal/service/allocator"
	"github.com/lahjaprojekti/lahja-go/internal/service/query"
	pgstore "github.com/lahjaprojekti/lahja-go/internal/store/postgres"
	httpgin "github.com/lahjaprojekti/lahja-go/internal/transport/http/gin"
	"github.com/lahjaprojekti/lahja-go/migrations"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	bus        feed.Bus
	router     *feed.Router
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	if err := migrations.Apply(context.Background(), pgxPool); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	store := pgstore.NewStore(pgxPool)
	bus := redisfeed.New(rdb)
	cache := redisrepo.New(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "reservations", 10, 1*time.Minute)

	var sender notify.TextSender
	if cfg.SMS.GatewayURL != "" {
		sender = notify.NewGatewaySender(cfg.SMS.GatewayURL, cfg.SMS.APIKey)
	} else {
		sender = notify.NewLogSender(logger)
	}

	services := service.NewServices(store, bus, cache, limiter, sender, clock.NewSystem(), logger, service.Config{
		Allocator: allocator.Config{ReservationPeriod: cfg.Engine.ReservationPeriod},
		Notify:    notify.Config{Grace: cfg.Engine.MessageGrace},
		Query:     query.Config{SlotsTTL: cfg.Engine.SlotsCacheTTL},
	})

	feedRouter := feed.NewRouter(logger)
	handlers.NewRegistry(services, cache).Bind(feedRouter)

	ginRouter := httpgin.NewRouter(services, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		bus:      bus,
		router:   feedRouter,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: ginRouter,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Consume the change feed
	g.Go(func() error {
		return a.bus.Subscribe(gCtx, func(ctx context.Context, ev feed.Event) {
			a.router.Dispatch(ctx, ev)
		})
	})

	// Reclaim abandoned holds
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Engine.ExpiryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if n, err := a.services.Lifecycle.ExpireStale(gCtx); err != nil {
					a.logger.Error("expiry sweep failed", "error", err)
				} else if n > 0 {
					a.logger.Info("expired stale holds", "count", n)
				}
			}
		}
	})

	// Re-apply reservation requests whose change event was lost
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Engine.ExpiryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if n, err := a.services.Allocator.ReconcilePending(gCtx); err != nil {
					a.logger.Error("reservation reconcile failed", "error", err)
				} else if n > 0 {
					a.logger.Info("reconciled reservations", "count", n)
				}
			}
		}
	})

	// Deliver queued messages
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Engine.SendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if n, err := a.services.Notify.SendPending(gCtx); err != nil {
					a.logger.Error("message sweep failed", "error", err)
				} else if n > 0 {
					a.logger.Info("sent messages", "count", n)
				}
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
