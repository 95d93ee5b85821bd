// Package httpapi exposes the document store over HTTP: login, patient
// document CRUD and a WebSocket watch stream per document.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/kollectcare/trialsync/internal/logging"
	"github.com/kollectcare/trialsync/internal/server/hub"
	"github.com/kollectcare/trialsync/internal/server/services"
)

// Server is the HTTP front of the document store.
type Server struct {
	users     *services.UserService
	documents *services.DocumentService
	hub       *hub.Hub
	logger    logging.Logger

	httpServer *http.Server
}

// NewServer wires the services into an HTTP server bound to addr.
func NewServer(addr string, us *services.UserService, ds *services.DocumentService, h *hub.Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{users: us, documents: ds, hub: h, logger: logger}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)

	mux.Handle("POST /api/v1/patients", s.withAuth(s.handleCreate))
	mux.Handle("GET /api/v1/patients", s.withAuth(s.handleList))
	mux.Handle("GET /api/v1/patients/{id}", s.withAuth(s.handleGet))
	mux.Handle("PATCH /api/v1/patients/{id}", s.withAuth(s.handleUpdate))
	mux.Handle("GET /api/v1/patients/{id}/watch", s.withAuth(s.handleWatch))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// Handler returns the routed handler; tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
