package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendhub/gateway/middleware"
	"lendhub/gateway/routes"
	"lendhub/native/oracle"
	"lendhub/observability"
	"lendhub/observability/logging"
	telemetry "lendhub/observability/otel"
	lendingsvc "lendhub/services/lending"
	"lendhub/services/lending/audit"
	"lendhub/services/lendingd/config"
	"lendhub/storage"
)

const serviceName = "lendingd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("lendingd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled() {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	genesis, err := lendingsvc.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		return err
	}
	operator, err := genesis.OperatorAddress()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.StorageEngine, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	journal, err := audit.Open(cfg.Audit.Driver, auditDSN(cfg))
	if err != nil {
		return err
	}
	defer journal.Close()

	manual := oracle.NewManualFeed()
	aggregator := oracle.NewAggregator(cfg.Oracle.MaxAge)
	aggregator.Register("manual", manual)
	for _, feed := range cfg.Oracle.Feeds {
		client := &http.Client{Timeout: feed.Timeout}
		aggregator.Register(feed.Name, oracle.NewHTTPFeed(client, feed.Endpoint, feed.APIKey()))
	}

	svc, err := lendingsvc.New(db, lendingsvc.Options{
		Router:   genesis.RouterAddress(),
		Operator: operator,
		Rounds:   lendingsvc.NewClockRounds(cfg.RoundDuration),
		Prices:   oracle.NewAdapter(aggregator),
		Manual:   manual,
		Journal:  journal,
		Metrics:  observability.Lending(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	applied, err := svc.ApplyGenesis(ctx, genesis)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("lending state ready",
		"router", svc.RouterAddress().String(),
		"operator", operator.String(),
		"genesis_applied", applied,
		"round", svc.Round())

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Auth.Secret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkew,
	}, logger)
	if err != nil {
		return err
	}
	httpMetrics := observability.HTTP()
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		limits[limit.Group] = middleware.RateLimit{RequestsPerSecond: limit.RequestsPerSecond, Burst: limit.Burst}
	}
	handler, err := routes.New(routes.Config{
		Service:        svc,
		Authenticator:  auth,
		RateLimiter:    middleware.NewRateLimiter(limits, httpMetrics),
		Observability:  middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.Logging.LogRequests}, httpMetrics, logger),
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins, AllowCredentials: cfg.CORS.AllowCredentials},
		MetricsHandler: promhttp.Handler(),
		ServiceName:    serviceName,
		Timeout:        cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.ListenAddress)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = server.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func openDatabase(engine, dataDir string) (storage.Database, error) {
	if dataDir == "" {
		slog.Warn("no data_dir configured; state is kept in memory")
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	var (
		db  storage.Database
		err error
	)
	switch engine {
	case config.EngineBolt:
		db, err = storage.NewBoltDB(filepath.Join(dataDir, "state.bolt"))
	default:
		db, err = storage.NewLevelDB(filepath.Join(dataDir, "state"))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s state db: %w", engine, err)
	}
	return db, nil
}

func auditDSN(cfg config.Config) string {
	if cfg.Audit.DSN != "" || cfg.Audit.Driver != audit.DriverSQLite || cfg.DataDir == "" {
		return cfg.Audit.DSN
	}
	return filepath.Join(cfg.DataDir, "audit.db")
}
