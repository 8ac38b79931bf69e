// Main package for the telemetry viewer: follows the camera feed and site
// conditions of the observatory backend and serves the assembled display state.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nj-vs-vh/tunka-telemetry-server/internal"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/config"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/display"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/frame"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/logging"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/metrics"
	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/viewer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxDisplaySubscribers = 256

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Failed to load .env file! %s\n", err.Error())
	}

	//
	// Flags
	configPath := flag.String("config", "", "Path to a YAML config file (overrides TELEMETRY_CONFIG)")
	backendURL := flag.String("backend", "", "Base URL of the camera backend, e.g. http://localhost:8000")
	mode := flag.String("mode", "", "Feed mode: stream (websocket) or poll (latest-shot endpoints)")
	listenAddress := flag.String("listen", "", "Address the display server listens on")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	allowAllOrigins := flag.Bool("allow-all-origins", false, "Accept display websocket connections from any origin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err.Error())
		os.Exit(2)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.BackendURL = *backendURL
		case "mode":
			cfg.Mode = *mode
		case "listen":
			cfg.ListenAddress = *listenAddress
		case "log-level":
			cfg.LogLevel = *logLevel
		case "allow-all-origins":
			cfg.AllowAllOrigins = *allowAllOrigins
		}
	})

	if os.Getenv("APP_ENV") != "production" && os.Getenv("TELEMETRY_LOG_FORMAT") == "" {
		cfg.LogFormat = "console"
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %s\n", err.Error())
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(2)
	}
	location, _ := cfg.Location()

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer shutdownRelease()

	//
	// Viewer core + display surface
	met := metrics.New()
	store := internal.CreateSnapshotStore[viewer.Snapshot](maxDisplaySubscribers)
	images := frame.NewImageStore()

	session, err := viewer.NewSession(viewer.SessionParams{
		Mode: viewer.Mode(cfg.Mode),

		StreamURL:             cfg.StreamURL(),
		ReconnectInitialDelay: cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.ReconnectMaxDelay,

		ConditionsURL:      cfg.ConditionsURL(),
		ConditionsInterval: cfg.ConditionsInterval,

		MetadataURL:      cfg.MetadataURL(),
		ImageURL:         cfg.ImageURL(),
		MetadataInterval: cfg.MetadataInterval,

		TickInterval: cfg.TickInterval,
		Tolerance:    cfg.StalenessTolerance,

		Location: location,
		SiteName: cfg.SiteName,

		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Store:      store,
		Images:     images,
		Logger:     logger,
		Metrics:    met,
	})
	if err != nil {
		logger.Error("Failed to create viewer session", zap.Error(err))
		os.Exit(1)
	}

	server, err := display.NewServer(display.ServerParams{
		ListenAddress:      cfg.ListenAddress,
		AllowAllOrigins:    cfg.AllowAllOrigins,
		AllowlistedOrigins: cfg.AllowedOrigins,
		DenylistedOrigins:  cfg.DeniedOrigins,
		Store:              store,
		Images:             images,
		Metrics:            met,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create display server", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Starting telemetry viewer",
		zap.String("mode", cfg.Mode),
		zap.String("backend", cfg.BackendURL),
		zap.String("listen", cfg.ListenAddress),
		zap.String("siteTimezone", cfg.SiteTimezone),
	)

	g, ctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		defer store.Close()
		return session.Run(ctx)
	})
	g.Go(func() error {
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Telemetry viewer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Telemetry viewer stopped")
}
