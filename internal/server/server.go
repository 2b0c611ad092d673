package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"kestrel/reader/internal/database"
	"kestrel/reader/internal/fever"
	"kestrel/reader/internal/storage"
)

// RunServer starts the HTTP server with graceful shutdown support.
// It mounts the legacy sync endpoint, the admin surface and a health
// check, and handles OS signals for clean termination.
func RunServer(db *database.DB, listenAddr string, logger zerolog.Logger, feverUsername, adminPasswordHash string) error {
	logger = logger.With().Str("service", "reader-api").Logger()

	repo := storage.NewRepository(db)
	creds := fever.NewCredentialStore(repo, feverUsername)
	syncHandler := fever.NewHandler(repo, creds)
	admin := newAdminHandler(repo, creds)

	r := chi.NewRouter()
	r.Post("/fever", syncHandler.ServeHTTP)
	r.Post("/fever/", syncHandler.ServeHTTP)
	r.Get("/health", healthCheckHandler)

	// Management surface: gated by the primary authentication, never
	// by the sync protocol's own weak credential.
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuthMiddleware(adminPasswordHash))
		r.Get("/fever/settings", admin.settings)
		r.Post("/fever/credentials/reset", admin.resetCredentials)
		r.Get("/subscriptions.opml", admin.exportOPML)
	})

	// Set up middleware chain for logging and request tracking
	h := hlog.NewHandler(logger)(r)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)

	if adminPasswordHash != "" {
		logger.Info().Msg("Admin surface enabled")
	} else {
		logger.Warn().Msg("No admin password hash configured, admin surface disabled")
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", listenAddr).Msg("API Server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal().Err(err).Msg("Server failed to start")

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed, forcing close")
			if closeErr := httpServer.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("Forced close failed")
			}
			return err
		}
		logger.Info().Msg("Server stopped cleanly")
	}

	return nil
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
