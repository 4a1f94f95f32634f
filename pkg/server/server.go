// Package server exposes the controller over local HTTP: script
// execution, file management and the chat driver, for callers that speak
// JSON rather than Go.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"orcabridge/pkg/chat"
	"orcabridge/pkg/config"
)

// Server is the local HTTP facade. It owns an http.Server so Shutdown
// can drain in-flight requests.
type Server struct {
	cfg    config.ServerConfig
	driver *chat.Driver
	log    *zap.Logger

	httpSrv *http.Server
	done    chan struct{}
}

// New builds a server around an already-configured chat driver.
func New(cfg config.ServerConfig, driver *chat.Driver, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		driver: driver,
		log:    log,
		done:   make(chan struct{}),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/execute", s.handleExecute)
	r.Post("/run-file", s.handleRunFile)
	r.Post("/read-file", s.handleReadFile)
	r.Post("/write-file", s.handleWriteFile)
	r.Post("/delete-file", s.handleDeleteFile)
	r.Post("/list-dir", s.handleListDir)
	r.Post("/browser-ai", s.handleBrowserAI)
	r.Post("/shutdown", s.handleShutdown)
	return r
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ListenAndServe runs until Shutdown or a listener error. http.ErrServerClosed
// after a clean shutdown is not reported as a failure.
func (s *Server) ListenAndServe() error {
	s.log.Info("server listening",
		zap.String("addr", s.cfg.Addr),
		zap.String("interpreter", s.cfg.Interpreter))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Done is closed once a /shutdown request has been accepted.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Endpoints lists the routes the server serves, for the root response
// and the startup banner.
var Endpoints = []string{
	"/health", "/execute", "/run-file", "/read-file", "/write-file",
	"/delete-file", "/list-dir", "/browser-ai", "/shutdown",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	cwd, _ := os.Getwd()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    "orcabridge",
		"status":     "running",
		"go_version": runtime.Version(),
		"cwd":        cwd,
		"endpoints":  Endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": "running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "shutting down"})
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// resolvePath anchors relative paths at the configured working directory.
func (s *Server) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.cfg.WorkDir, path)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to do for this response.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
