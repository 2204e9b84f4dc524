// Package api implements the HTTP control interface of the geneva daemon.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/getlantern/geneva/v2/internal/engine"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
)

type Response struct {
	Code int    `json:"code,omitempty"`
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

type Options struct {
	AccessLog  bool
	PathPrefix string
	Logger     logger.Logger
	// Gatherer, if set, is served on /metrics.
	Gatherer prometheus.Gatherer
}

type handler struct {
	engine *engine.Engine
	log    logger.Logger
}

// Register installs the control routes on r.
func Register(r *gin.Engine, eng *engine.Engine, opts *Options) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	r.Use(gin.Recovery())
	if opts.AccessLog {
		r.Use(mwLogger(log))
	}

	router := r.Group("")
	if opts.PathPrefix != "" {
		router = router.Group(opts.PathPrefix)
	}

	h := &handler{engine: eng, log: log}

	router.GET("/healthz", healthz)

	router.GET("/strategy", h.getStrategy)
	router.PUT("/strategy", h.updateStrategy)
	router.POST("/strategy/validate", validateStrategy)

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}
}

// NewHandler returns a gin engine serving the control routes.
func NewHandler(eng *engine.Engine, opts *Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	Register(r, eng, opts)

	return r
}

// Server serves the control API until its context is done.
type Server struct {
	s  *http.Server
	ln net.Listener
}

func NewServer(addr string, eng *engine.Engine, opts *Options) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		s:  &http.Server{Handler: NewHandler(eng, opts)},
		ln: ln,
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.s.Shutdown(context.Background())
	}()

	if err := s.s.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
