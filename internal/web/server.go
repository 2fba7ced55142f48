// Package web hosts the node's HTTP listener: the read-only API gateway plus
// websocket streams of committed ledger events and node logs.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"crowdfund.ledger/cfl/internal/api"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/logger"
)

// Server is the web server for the gateway and event streams.
type Server struct {
	port    int
	router  *chi.Mux
	hub     *eventHub
	history EventHistory
	logs    *logger.Ring
	log     zerolog.Logger
	httpSrv *http.Server
}

// NewServer wires the API routes and the websocket endpoints. history and
// logs may be nil.
func NewServer(apiService *api.Service, history EventHistory, logs *logger.Ring, log zerolog.Logger, port int) *Server {
	s := &Server{
		port:    port,
		router:  api.NewRouter(apiService),
		hub:     newEventHub(),
		history: history,
		logs:    logs,
		log:     log.With().Str("component", "web").Logger(),
	}
	s.router.Get("/ws/events", s.handleEventsWS)
	s.router.Get("/ws/logs", s.handleLogsWS)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Publish forwards a committed event to subscribers. It never blocks on slow
// clients.
func (s *Server) Publish(ev ledger.Event) {
	if err := s.hub.publish(ev); err != nil {
		s.log.Error().Err(err).Str("type", ev.Type).Msg("encode event")
	}
}

// Start runs the listener in the background. The channel receives the
// terminal error, or nothing after a clean Shutdown.
func (s *Server) Start() <-chan error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.port).Msg("starting gateway")

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
