package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/orderrelay/internal/config"
	"github.com/kiwari-pos/orderrelay/internal/database"
	"github.com/kiwari-pos/orderrelay/internal/logger"
	"github.com/kiwari-pos/orderrelay/internal/notify"
	"github.com/kiwari-pos/orderrelay/internal/orderstatus"
	"github.com/kiwari-pos/orderrelay/internal/pos"
	"github.com/kiwari-pos/orderrelay/internal/router"
	"github.com/kiwari-pos/orderrelay/internal/service"
	"github.com/kiwari-pos/orderrelay/internal/ws"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv, cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	posDB, err := pos.Open(cfg.PosDatabaseURL, cfg.Pos.Timeout, cfg.Pos.MaxOpenConns)
	if err != nil {
		return err
	}
	defer posDB.Close()
	if err := posDB.Ping(ctx); err != nil {
		// The POS may come up later; order calls report it as unavailable.
		log.Warn("pos database unreachable at startup", zap.Error(err))
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	notifier := notify.Multi{hub}
	if cfg.NatsURL != "" {
		nc, err := notify.NewNATSPublisher(cfg.NatsURL)
		if err != nil {
			return err
		}
		defer nc.Close()
		notifier = append(notifier, nc)
		log.Info("publishing order events to NATS", zap.String("url", cfg.NatsURL))
	}

	matrix, err := orderstatus.DefaultMatrix().WithExtra(cfg.Orders.ExtraTransitions)
	if err != nil {
		return fmt.Errorf("order status transitions: %w", err)
	}

	deps := service.Deps{Pool: pool, DB: pool, Notifier: notifier, Log: log}
	devices := service.NewDeviceService(deps, service.DeviceStoreFrom, cfg.JWTSecret, cfg.DeviceTokenTTL, cfg.IsProduction())
	svc := router.Services{
		Orders:      service.NewOrderService(deps, service.OrderStoreFrom, posDB, cfg.Orders.TaxRate),
		Refills:     service.NewRefillService(deps, service.RefillStoreFrom, posDB, cfg.Orders.TaxRate, cfg.Orders.RefillCategories),
		Status:      service.NewStatusService(deps, service.StatusStoreFrom, matrix),
		PrintEvents: service.NewPrintEventService(deps, service.PrintEventStoreFrom),
		Devices:     devices,
	}

	reaper := service.NewReaper(database.New(pool), cfg.Print.Retention, cfg.Print.ReaperInterval, log)
	go reaper.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, svc, hub, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
