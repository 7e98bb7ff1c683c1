package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/engine"
	"github.com/kosty-cloud/kosty/internal/feed"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/monitors"
)

// auditor runs audits and cost reports; satisfied by engine.Engine.
type auditor interface {
	Run(ctx context.Context, opts engine.Options) (*models.AuditResult, error)
	CostReport(ctx context.Context, opts engine.Options, period monitors.CostPeriod) ([]models.Finding, error)
}

// Config wires the API server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	// Debug exposes internal error messages in responses.
	Debug bool

	// AuditDefaults seeds every audit triggered over HTTP. Request bodies
	// can narrow regions and services but not widen credentials.
	AuditDefaults engine.Options
}

// WebAPI is the HTTP surface: audit on demand, alert feeds, threshold
// configuration, and the service catalog.
type WebAPI struct {
	router     *chi.Mux
	logger     *zerolog.Logger
	server     *http.Server
	cfg        Config
	auditor    auditor
	registry   *checks.Registry
	thresholds *feed.ThresholdStore
	aggregator *feed.Aggregator
}

func NewWebAPI(logger zerolog.Logger, cfg Config, a auditor, registry *checks.Registry, store *feed.ThresholdStore) *WebAPI {
	api := &WebAPI{
		logger:     &logger,
		cfg:        cfg,
		auditor:    a,
		registry:   registry,
		thresholds: store,
		aggregator: feed.NewAggregator(store),
	}

	router := chi.NewRouter()
	router.Use(requestLogger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", api.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/services", api.handleServices)
		r.Post("/audit", api.handleAudit)
		r.Post("/costs", api.handleCosts)
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/feed", api.handleFeed)
			r.Post("/summary", api.handleSummary)
			r.Post("/configure", api.handleConfigure)
		})
	})

	api.router = router
	api.server = &http.Server{Addr: cfg.Addr, Handler: router}
	return api
}

// Handler exposes the router for tests.
func (w *WebAPI) Handler() http.Handler { return w.router }

// Start serves until SIGINT/SIGTERM, then drains in-flight requests within
// the shutdown timeout.
func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting API server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		w.logger.Info().Str("signal", sig.String()).Msg("shutdown initiated")

		timeout := w.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := w.server.Shutdown(ctx); err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			return w.server.Close()
		}
	}
	return nil
}

// requestLogger attaches a request-scoped logger to the context so handlers
// and the engine log with method and path fields.
func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			reqLogger := logger.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", req.RemoteAddr).
				Logger()
			next.ServeHTTP(rw, req.WithContext(reqLogger.WithContext(req.Context())))
		})
	}
}
