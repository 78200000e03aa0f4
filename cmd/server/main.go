// Package main provides the StayOps Core backend server.
//
// The server owns the local SQLite store and mirrors every write to the
// remote Postgres system of record when it is reachable. While offline,
// writes accumulate in the change queue and are reconciled when connectivity
// returns.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atriumlabs/stayops/backend/cmd/server/handlers"
	"github.com/atriumlabs/stayops/backend/internal/config"
	"github.com/atriumlabs/stayops/backend/internal/connectivity"
	"github.com/atriumlabs/stayops/backend/internal/db"
	"github.com/atriumlabs/stayops/backend/internal/logging"
	"github.com/atriumlabs/stayops/backend/internal/metrics"
	"github.com/atriumlabs/stayops/backend/internal/remote"
	"github.com/atriumlabs/stayops/backend/internal/sync"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "stayops-server",
		Short: "StayOps Core backend",
		Long:  "Offline-first hotel operations backend with dual-write mirroring and change-queue reconciliation.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	path := configPath
	if path == "" {
		path = os.Getenv("STAYOPS_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logging.Init(os.Stdout, cfg.LogLevel)
	log := logging.Component("server")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local store
	local, err := db.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	migrator := db.NewMigrator(local.DB)
	if err := migrator.Initialize(); err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	if err := migrator.Migrate(); err != nil {
		return fmt.Errorf("migrate local store: %w", err)
	}

	repo := db.NewRepository(local.DB)
	defer repo.Close()

	// Replay registry
	registry := sync.NewRegistry()
	if err := sync.RegisterDefaults(registry, repo); err != nil {
		return fmt.Errorf("register replayers: %w", err)
	}
	if err := repo.ResolveSyncCapabilities(registry.Collections()); err != nil {
		return fmt.Errorf("resolve sync capabilities: %w", err)
	}

	reg := metrics.New()

	// Remote store. The pool is opened lazily so the server boots cleanly
	// with the remote down.
	var store remote.Store
	if cfg.Remote.DSN != "" {
		lazy := remote.NewLazyStore(cfg.Remote.DSN)
		defer lazy.Close()
		store = lazy
	} else {
		log.Warn().Msg("no remote DSN configured, running offline-only")
	}

	monitor := connectivity.NewMonitor(store, connectivity.DialProber{
		Addr:    cfg.Remote.ProbeAddr,
		Timeout: cfg.Remote.ProbeTimeout,
	}, connectivity.Config{
		CheckTimeout: cfg.Remote.ProbeTimeout,
		CacheWindow:  cfg.Sync.CheckCacheWindow,
		PollInterval: cfg.Sync.PollInterval,
	}, reg)

	engine := sync.NewEngine(repo, store, monitor, registry, reg, cfg.Sync.RetryLimit)
	coord := sync.NewCoordinator(local, repo, store, monitor, registry, reg)
	coord.SetEngine(engine)

	// Restoration events drive catch-up sync.
	monitor.AddListener(engine.OnConnectivityChanged)

	hub := NewWSHub(cfg.HTTP.Addr)
	engine.AddEventHandler(hub)

	monitor.Start(ctx)
	engine.Start(ctx, cfg.Sync.PeriodicInterval)
	// The monitor stops first so a late restoration event cannot start a
	// pass after the engine has drained.
	defer engine.Stop()
	defer monitor.Stop()

	// HTTP surface
	syncHandler := handlers.NewSyncHandler(repo, engine, monitor)
	bookingHandler := handlers.NewBookingHandler(repo, coord)
	guestHandler := handlers.NewGuestHandler(repo, coord)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", syncHandler.Health)
	mux.HandleFunc("/api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("/api/sync/now", syncHandler.SyncNow)
	mux.HandleFunc("/api/sync/pending", syncHandler.GetPending)
	mux.HandleFunc("/api/sync/retry", syncHandler.RetryFailed)
	mux.HandleFunc("/api/bookings", bookingHandler.Route)
	mux.HandleFunc("/api/bookings/", bookingHandler.Route)
	mux.HandleFunc("/api/guests", guestHandler.Route)
	mux.HandleFunc("/api/guests/", guestHandler.Route)
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
