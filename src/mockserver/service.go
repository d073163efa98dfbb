package mockserver

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Service runs a Server behind a fasthttp listener.
type Service struct {
	server *Server
	http   *fasthttp.Server
	logger zerolog.Logger
}

// NewService creates a service for server.
func NewService(server *Server, logger zerolog.Logger) *Service {
	return &Service{
		server: server,
		http: &fasthttp.Server{
			Handler: server.Handler(),
			Name:    "channel-mockserver",
		},
		logger: logger,
	}
}

// Server returns the underlying server.
func (s *Service) Server() *Server { return s.server }

// Serve starts the event loop and serves ln until Shutdown.
func (s *Service) Serve(ln net.Listener) error {
	go s.server.Run()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("mock channel server listening")
	if err := s.http.Serve(ln); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and serves it.
func (s *Service) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and halts the event loop.
func (s *Service) Shutdown() error {
	err := s.http.Shutdown()
	s.server.Stop()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
