package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"itn-reports/internal/metrics"
	"itn-reports/internal/render"
	"itn-reports/internal/report"
	"itn-reports/internal/storage"
)

// Backend is the report surface the HTTP handlers call into.
type Backend interface {
	CoverageReport(ctx context.Context, start, end string) (*report.Report, error)
	LicenseHolders(ctx context.Context, minStake int64, licenseNo string) ([]report.LicenseHolder, error)
	DateRange(ctx context.Context) (storage.DateRange, error)
	ActiveParticipants(ctx context.Context) ([]string, error)
	ParticipantCounts(ctx context.Context) ([]storage.ParticipantCount, error)
	OnlineCollectors(ctx context.Context) ([]render.CollectorRow, error)
}

// Options configure the API server.
type Options struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	DefaultStart    string
	DefaultEnd      string
	DefaultMinStake int64
}

// Server is the REST API server.
type Server struct {
	opts       Options
	router     *chi.Mux
	httpServer *http.Server
	backend    Backend
	metrics    *metrics.Registry
	logger     zerolog.Logger
}

// NewServer wires routes and middleware around backend.
func NewServer(opts Options, backend Backend, reg *metrics.Registry, logger zerolog.Logger) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":24001"
	}
	if opts.DefaultStart == "" {
		opts.DefaultStart = "1970-01-01"
	}
	if opts.DefaultEnd == "" {
		opts.DefaultEnd = "1970-01-03"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		opts:    opts,
		router:  chi.NewRouter(),
		backend: backend,
		metrics: reg,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.opts.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// statistics
	r.Get("/get_active_participants", s.handleActiveParticipants)
	r.Get("/get_participants_counts_total", s.handleCountsTotal)
	r.Get("/get_participants_counts_day", s.handleCountsDay)
	r.Get("/get_participants_counts_csv", s.handleCountsCSV)

	// information
	r.Get("/date_range", s.handleDateRange)
	r.Get("/itn_aliases_and_staking", s.handleHolders)
	r.Get("/itn_aliases_and_staking_csv", s.handleHoldersCSV)

	// html fragments
	r.Get("/participants", s.handleParticipantsHTML)
	r.Get("/online_collectors", s.handleOnlineCollectors)
	r.Get("/count_active_participants", s.handleCountActive)
}

// requestLogger logs one line per request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(route, status)

		evt := s.logger.Info()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("api server starting")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
