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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/api"
	"github.com/nidhogg/faculty-map/internal/auth"
	"github.com/nidhogg/faculty-map/internal/config"
	"github.com/nidhogg/faculty-map/internal/events"
	"github.com/nidhogg/faculty-map/internal/gateway"
	"github.com/nidhogg/faculty-map/internal/metrics"
	"github.com/nidhogg/faculty-map/internal/query"
	"github.com/nidhogg/faculty-map/internal/randengine"
	"github.com/nidhogg/faculty-map/internal/refdata"
	pgstore "github.com/nidhogg/faculty-map/internal/store"
	"github.com/nidhogg/faculty-map/internal/world"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/facultymap.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting faculty map...", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ref, pgStore := loadReference(ctx, cfg, logger)
	if pgStore != nil {
		defer pgStore.Close()
	}

	loc, _ := cfg.Location() // validated by config.Load
	now := time.Now()
	registry, err := world.NewRegistry(ref.Agents, now, logger)
	if err != nil {
		logger.Fatal("failed to seed registry", zap.Error(err))
	}
	logger.Info("Registry seeded", zap.Int("agents", registry.Len()))

	// Initialize world simulation
	clock := world.NewWorldClock(time.Duration(cfg.Simulation.TickInterval), cfg.Simulation.Speed, logger)
	clock.SetWorldTime(now)
	tracker := world.NewTracker(registry, ref, randengine.New(cfg.Simulation.Seed), loc, logger)

	// A corrupt registry ends the process; the tick goroutine cannot stop its own clock.
	var fatalErr error
	tracker.SetFatalHandler(func(err error) {
		logger.Error("registry corrupt, shutting down", zap.Error(err))
		fatalErr = err
		stop()
	})

	collector := metrics.New(registry)
	tracker.AddObserver(collector)

	var changes api.ChangeFeed
	if cfg.Database.Redis.URL != "" {
		bus, busErr := events.NewBus(ctx, cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without status stream", zap.Error(busErr))
		} else {
			bus.SetStream(cfg.Database.Redis.Stream)
			defer bus.Close()
			tracker.AddObserver(bus)
			changes = bus
		}
	}

	// Initialize gateway
	gw := gateway.NewGateway(logger)
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackNotifier(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordNotifier(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.Channel, logger))
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some notifiers failed to connect", zap.Error(err))
	}
	defer gw.Close()
	broadcaster := gateway.NewBroadcaster(gw, logger)
	tracker.AddObserver(broadcaster)

	clock.AddListener(tracker)
	clock.Start(ctx)
	logger.Info("World simulation started")

	// Build HTTP handler
	users := make([]auth.User, len(cfg.Auth.Users))
	for i, u := range cfg.Auth.Users {
		users[i] = auth.User{Role: u.Role, Mobile: u.Mobile, Password: u.Password}
	}
	queries := query.NewService(registry, ref.Zones, clock.WorldTime, logger)
	handler := api.NewHandler(queries, auth.New(users), registry, clock, tracker, changes, broadcaster, collector.Handler(), logger)

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Faculty map listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down faculty map...")
	clock.Stop()
	tracker.Close() // flush queued reports before Redis and notifiers close
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if fatalErr != nil {
		logger.Fatal("stopped after registry corruption", zap.Error(fatalErr))
	}
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			zcfg.Level = lvl
		}
		logger, err = zcfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadReference returns the reference tables and, for the postgres source, the open store.
func loadReference(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*world.ReferenceData, *pgstore.Store) {
	ref, err := refdata.Load(cfg.Reference.Path)
	if err != nil {
		logger.Fatal("failed to load reference file", zap.String("path", cfg.Reference.Path), zap.Error(err))
	}
	if cfg.Reference.Source != config.SourcePostgres {
		logger.Info("Reference data loaded from file",
			zap.Int("teachers", len(ref.Agents)),
			zap.Int("departments", len(ref.Zones)))
		return ref, nil
	}

	ps, err := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	if err := ps.Migrate(ctx, cfg.Reference.MigrationsDir); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	if cfg.Reference.SeedPostgres {
		if err := ps.ImportReference(ctx, ref); err != nil {
			logger.Fatal("reference import failed", zap.Error(err))
		}
	}
	ref, err = ps.LoadReference(ctx)
	if err != nil {
		logger.Fatal("failed to load reference data from postgres", zap.Error(err))
	}
	return ref, ps
}
