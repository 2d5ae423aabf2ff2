// NaviBridge - Navien NWP500 device state synchronization service
//
// This is the main entry point for the NaviBridge service. NaviBridge
// authenticates against the Navien cloud, discovers NWP500 heat-pump water
// heaters, maintains a persistent MQTT session for push telemetry and
// commands, and exposes the synchronized state to local consumers over an
// HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/openhwp/navibridge/migrations"

	"github.com/openhwp/navibridge/internal/api"
	"github.com/openhwp/navibridge/internal/bridge"
	"github.com/openhwp/navibridge/internal/infrastructure/config"
	"github.com/openhwp/navibridge/internal/infrastructure/database"
	"github.com/openhwp/navibridge/internal/infrastructure/influxdb"
	"github.com/openhwp/navibridge/internal/infrastructure/logging"
	"github.com/openhwp/navibridge/internal/navien"
	navienapi "github.com/openhwp/navibridge/internal/navien/api"
	"github.com/openhwp/navibridge/internal/navien/auth"
	"github.com/openhwp/navibridge/internal/navien/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting NaviBridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Cloud authentication, with tokens persisted across restarts
	tokenStore := auth.NewSQLiteTokenStore(db.DB)
	authClient := auth.NewClient(cfg.Cloud.Email, cfg.Cloud.Password,
		auth.WithTokenStore(tokenStore),
		auth.WithLogger(log),
	)

	// Device discovery via the cloud REST API
	apiClient := navienapi.NewClient(authClient)

	// Status history recording
	historyRepo := navien.NewSQLiteStatusHistoryRepository(db.DB)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		if influxClient != nil {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)

			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Coordinator owns the connection manager and device state. Each
	// (re)connect cycle gets a fresh transport session.
	coordCfg := bridge.CoordinatorConfig{
		Auth: authClient,
		API:  apiClient,
		NewTransport: func() bridge.Transport {
			return transport.NewSession(cfg.Transport, authClient, log)
		},
		Logger:         log,
		ScanInterval:   cfg.ScanInterval(),
		StatusInterval: cfg.StatusInterval(),
		InfoInterval:   cfg.InfoInterval(),
		History:        historyRepo,
	}
	if influxClient != nil {
		coordCfg.Metrics = influxClient
	}
	coordinator := bridge.NewCoordinator(coordCfg)
	defer func() {
		log.Info("shutting down coordinator")
		coordinator.Shutdown()
	}()

	// First refresh performs authentication, discovery, and session setup.
	// Failure is not fatal: the refresh loop keeps retrying until the cloud
	// is reachable.
	if refreshErr := coordinator.Refresh(ctx); refreshErr != nil {
		log.Warn("initial refresh failed, will retry", "error", refreshErr)
	} else {
		log.Info("initial setup complete", "devices", len(coordinator.Devices()))
	}

	go coordinator.Run(ctx)

	// Consumer API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Coordinator: coordinator,
		History:     historyRepo,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server listening",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"auth", cfg.API.AccessToken != "",
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Coordinator (transport session, update queue)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("NaviBridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NAVIBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NAVIBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
