// Package api provides the HTTP surface of Hearth Bridge: the smart-home
// directive endpoint, the browser-facing account-linking flow, and device
// self-registration.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/emberfield/hearth-bridge/internal/account"
	"github.com/emberfield/hearth-bridge/internal/audit"
	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/directive"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/database"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
	"github.com/emberfield/hearth-bridge/internal/linking"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Linker runs the account-linking pipeline for a callback.
type Linker interface {
	Link(ctx context.Context, code, state string) (*linking.Summary, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Site      config.SiteConfig
	OAuth     config.OAuthConfig
	Logger    *logging.Logger
	Directive *directive.Handler
	Linker    Linker
	Accounts  account.Repository
	Directory device.Directory
	Audit     audit.Repository // optional: enables the audit listing endpoint
	DB        *database.DB     // optional: enables the health endpoint's storage check
	Version   string
}

// Server is the HTTP server for Hearth Bridge.
type Server struct {
	cfg       config.APIConfig
	site      config.SiteConfig
	oauth     config.OAuthConfig
	logger    *logging.Logger
	directive *directive.Handler
	linker    Linker
	accounts  account.Repository
	directory device.Directory
	audit     audit.Repository
	db        *database.DB
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Directive == nil {
		return nil, fmt.Errorf("directive handler is required")
	}
	if deps.Linker == nil {
		return nil, fmt.Errorf("linking workflow is required")
	}
	if deps.Accounts == nil || deps.Directory == nil {
		return nil, fmt.Errorf("account repository and device directory are required")
	}

	return &Server{
		cfg:       deps.Config,
		site:      deps.Site,
		oauth:     deps.OAuth,
		logger:    deps.Logger,
		directive: deps.Directive,
		linker:    deps.Linker,
		accounts:  deps.Accounts,
		directory: deps.Directory,
		audit:     deps.Audit,
		db:        deps.DB,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
