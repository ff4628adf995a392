package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/config"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/credential"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/database"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/handler"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/lock"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/metrics"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/payment"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/service"
)

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema before serving (postgres store)")
	return cmd
}

type stores struct {
	attendees     service.AttendeeStore
	activities    service.ActivityStore
	registrations service.RegistrationStore
	close         func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{mem.Attendees, mem.Activities, mem.Registrations, func() {}}, nil
	}

	pool, err := database.NewPool(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "host", cfg.DB.Host, "db", cfg.DB.Name)
	if migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &stores{
		attendees:     repository.NewAttendeeRepository(pool),
		activities:    repository.NewActivityRepository(pool),
		registrations: repository.NewRegistrationRepository(pool),
		close:         pool.Close,
	}, nil
}

func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Info("using in-process team lock")
		return lock.NewLocal(), func() {}, nil
	}
	client, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis team lock", "ttl", cfg.Redis.LockTTL)
	return lock.NewRedis(client, cfg.Redis.LockTTL), func() { _ = client.Close() }, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) error {
	st, err := openStores(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer st.close()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	gateway, err := payment.NewGateway(cfg.Payment)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := service.New(st.attendees, st.activities, st.registrations,
		service.WithLogger(logger),
		service.WithMetrics(metrics.New(registry)),
		service.WithLocker(locker),
		service.WithGateway(gateway),
	)
	creds := credential.New(cfg.Token.SigningKey, cfg.Token.Issuer)
	h := handler.New(svc, creds, gateway, logger, cfg.Token.CredentialTTL)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.NewRouter(h, registry, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store, "payment_provider", gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
