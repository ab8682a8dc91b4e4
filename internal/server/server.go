package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nimbus/internal/audit"
	"nimbus/internal/constants"
	"nimbus/internal/logger"
	"nimbus/internal/version"
)

// Server is the HTTP front end over the application state.
type Server struct {
	app    *App
	logger *logger.Logger
	http   *http.Server
}

// NewServer builds the server with all routes and middleware wired.
func NewServer(app *App) *Server {
	s := &Server{
		app:    app,
		logger: app.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleQuery)
	mux.HandleFunc("/s3/", s.handleS3)
	mux.HandleFunc("/api/audit", s.handleAuditQuery)
	mux.HandleFunc("/api/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("/health", s.handleHealth)

	handler := Chain(mux,
		RequestID,
		SecurityHeaders,
		RequestLogging(app.Logger),
	)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.Port),
		Handler:      handler,
		ReadTimeout:  constants.HTTPReadTimeout,
		WriteTimeout: constants.HTTPWriteTimeout,
		IdleTimeout:  constants.HTTPIdleTimeout,
	}
	return s
}

// Handler exposes the fully wired handler stack for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("%s %s listening on %s", constants.AppName, version.Version, s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		s.logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeoutSecs*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// handleHealth reports liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.app.StartedAt).Round(time.Second).String(),
	})
}

// handleAuditQuery returns recent audit entries, newest first. Supports
// ?outcome= and ?limit= filters.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := audit.Filter{Outcome: r.URL.Query().Get("outcome")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	entries, err := s.app.Audit.Query(filter)
	if err != nil {
		s.logger.Error("Failed to query audit log: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAuditVerify recomputes the whole hash chain.
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := s.app.Audit.Verify()
	if err != nil {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"intact":   false,
			"verified": count,
			"error":    err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"intact":   true,
		"verified": count,
	})
}
