// Hearth Bridge - voice-platform bridge for network-controlled fireplaces.
//
// This is the main entry point. The bridge accepts smart-home directives
// from the voice platform, relays signed commands to the device agents on
// the local network, and runs the OAuth account-linking flow that connects
// a voice-platform identity to a device-owner account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/emberfield/hearth-bridge/migrations"

	"github.com/emberfield/hearth-bridge/internal/account"
	"github.com/emberfield/hearth-bridge/internal/agent"
	"github.com/emberfield/hearth-bridge/internal/api"
	"github.com/emberfield/hearth-bridge/internal/audit"
	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/directive"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/database"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/history"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
	"github.com/emberfield/hearth-bridge/internal/linking"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Bridge", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Storage collaborators
	accounts := account.NewSQLiteRepository(db.DB)
	identities := account.NewSQLiteIdentityRepository(db.DB)
	directory := device.NewSQLiteDirectory(db.DB)
	resolver := account.NewResolver(accounts, identities)

	// Device-agent signing and dispatch
	signer, err := agent.NewSigner(cfg.Signing)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	log.Info("signing key loaded", "key_id", signer.KeyID())

	// Status-history recording (optional)
	recorder, err := history.Connect(ctx, cfg.History)
	switch {
	case errors.Is(err, history.ErrDisabled):
		log.Info("status history disabled")
		recorder = nil
	case err != nil:
		// The bridge works without history; record the failure and move on.
		log.Warn("status history unavailable", "error", err)
		recorder = nil
	default:
		defer func() {
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing history recorder", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Warn("history write failed", "error", err)
		})
		log.Info("status history connected", "url", cfg.History.URL)
	}

	dispatcher := agent.NewDispatcher(signer, directory, log, recorder)

	// Protocol and linking layers
	auditRepo := audit.NewSQLiteRepository(db.DB)
	handler := directive.NewHandler(resolver, directory, dispatcher, log)
	handler.SetAudit(auditRepo)
	provider := linking.NewProviderClient(cfg.OAuth, log)
	workflow := linking.NewWorkflow(provider, accounts, identities, directory,
		cfg.Site.BaseURL+"/link/callback", log)

	// HTTP server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Site:      cfg.Site,
		OAuth:     cfg.OAuth,
		Logger:    log,
		Directive: handler,
		Linker:    workflow,
		Accounts:  accounts,
		Directory: directory,
		Audit:     auditRepo,
		DB:        db,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("Hearth Bridge ready",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"site", cfg.Site.BaseURL,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// getConfigPath returns the configuration file path from the command
// line, the HEARTH_CONFIG environment variable, or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
