// Package web serves the live preview of a running stream and a still image
// match API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/stream"
	"github.com/kozaktomas/facecam/internal/web/handlers"
	"github.com/kozaktomas/facecam/internal/web/middleware"
	"github.com/m-mizutani/goerr/v2"
)

// Options wires the server to a running loop and gallery. Matcher, Provider
// and Commands may be nil; the matching endpoints then report 503.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Frames         *handlers.FrameStore
	Commands       chan<- stream.Command
	Matcher        *facematch.Matcher
	Provider       embedding.Provider
	Logger         *slog.Logger
}

// Server represents the preview server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	frames     *handlers.FrameStore
	logger     *slog.Logger
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewServer creates a new preview server
func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	frames := opts.Frames
	if frames == nil {
		frames = handlers.NewFrameStore(logger)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  r,
		frames:  frames,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes(opts)

	// WriteTimeout stays 0 so the MJPEG stream is not cut off. Request
	// contexts derive from baseCtx, which Shutdown cancels to end open streams.
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.httpServer.RegisterOnShutdown(cancel)

	return s
}

// Frames returns the sink the stream loop publishes to.
func (s *Server) Frames() *handlers.FrameStore {
	return s.frames
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return goerr.Wrap(err, "failed to start server", goerr.V("addr", s.httpServer.Addr))
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting preview server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return goerr.Wrap(err, "preview server stopped", goerr.V("addr", ln.Addr().String()))
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down preview server")
	defer s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return goerr.Wrap(err, "shutting down server")
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
