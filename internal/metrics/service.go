package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultPath = "/metrics"

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Service is a standalone HTTP server exposing metrics.
type Service struct {
	s  *http.Server
	ln net.Listener
}

func NewService(addr, path string, g prometheus.Gatherer) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))

	return &Service{
		s:  &http.Server{Handler: mux},
		ln: ln,
	}, nil
}

func (s *Service) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve blocks until ctx is done or the server fails.
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.s.Close()
	}()

	if err := s.s.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
