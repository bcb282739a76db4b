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
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/pregao/internal/auction"
	"github.com/jensholdgaard/pregao/internal/bidding"
	"github.com/jensholdgaard/pregao/internal/clock"
	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/conversion"
	"github.com/jensholdgaard/pregao/internal/health"
	"github.com/jensholdgaard/pregao/internal/httpapi"
	"github.com/jensholdgaard/pregao/internal/leader"
	"github.com/jensholdgaard/pregao/internal/lineitem"
	"github.com/jensholdgaard/pregao/internal/requests"
	"github.com/jensholdgaard/pregao/internal/roster"
	"github.com/jensholdgaard/pregao/internal/rules"
	"github.com/jensholdgaard/pregao/internal/store"
	"github.com/jensholdgaard/pregao/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/pregao/internal/store/memory"
	_ "github.com/jensholdgaard/pregao/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Money and quantities go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	if cfg.Migrations.Enabled {
		if err := leader.RunExclusive(ctx, cfg.Migrations.Lease, logger, repos.Migrate); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		logger.InfoContext(ctx, "schema up to date")
	}

	rulesMgr := rules.NewManager(repos, cfg.Bidding.DefaultRuleSet, logger, tp.TracerProvider, clk)
	engine, err := bidding.NewEngine(repos, rulesMgr.Default, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating bid engine: %w", err)
	}
	conv, err := conversion.NewManager(repos, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating conversion manager: %w", err)
	}

	api := httpapi.NewHandler(httpapi.Services{
		Rules:       rulesMgr,
		Auctions:    auction.NewManager(repos, logger, tp.TracerProvider, clk),
		Roster:      roster.NewManager(repos, logger, tp.TracerProvider, clk),
		LineItems:   lineitem.NewManager(repos, logger, tp.TracerProvider, clk),
		Bids:        engine,
		Requests:    requests.NewManager(repos, logger, tp.TracerProvider, clk),
		Conversions: conv,
	}, logger)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.Router(healthHandler, httpapi.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			TracerProvider: tp.TracerProvider,
			MeterProvider:  tp.MeterProvider,
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr
		}
		close(serveErr)
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "pregaod is running", slog.String("version", version))

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
