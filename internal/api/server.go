// =============================================================================
// Claims Consolidator - Query Service
// =============================================================================
//
// A read-only JSON API over the registry and the consolidated expenses:
//
//   GET /api/health
//   GET /api/filers?q=&page=&limit=
//   GET /api/filers/{id}
//   GET /api/filers/{id}/expenses
//   GET /api/statistics
//   GET /metrics
//
// {id} is a CNPJ (any punctuation) or a registry number. The dataset is
// loaded once; handlers never mutate it.
//
// =============================================================================

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/registry"
	"github.com/ginjaninja78/claims-consolidator/internal/validation"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// Server serves the query API.
type Server struct {
	cfg      config.ServerConfig
	dataset  *Dataset
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
}

// NewServer creates a Server. Metrics are registered on reg, which is also
// what /metrics exposes.
func NewServer(cfg config.ServerConfig, dataset *Dataset, logger *slog.Logger, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		dataset:  dataset,
		logger:   logger.With(slog.String("component", "api")),
		gatherer: reg,
		metrics:  newHTTPMetrics(reg),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", s.health)
		r.Get("/filers", s.listFilers)
		r.Get("/filers/{id}", s.getFiler)
		r.Get("/filers/{id}/expenses", s.filerExpenses)
		r.Get("/statistics", s.statistics)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("query service listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down query service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

// health handles GET /api/health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// FilerPage is one page of search results.
type FilerPage struct {
	Data  []registry.Filer `json:"data"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Total int              `json:"total"`
}

// listFilers handles GET /api/filers
func (s *Server) listFilers(w http.ResponseWriter, r *http.Request) {
	page, err := positiveParam(r, "page", defaultPage)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := positiveParam(r, "limit", defaultLimit)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	matches := s.dataset.Registry().Search(r.URL.Query().Get("q"))

	// Compare page counts first; (page-1)*limit can overflow.
	data := []registry.Filer{}
	if page-1 < (len(matches)+limit-1)/limit {
		start := (page - 1) * limit
		end := min(start+limit, len(matches))
		data = matches[start:end]
	}

	render.JSON(w, r, FilerPage{Data: data, Page: page, Limit: limit, Total: len(matches)})
}

func positiveParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// getFiler handles GET /api/filers/{id}
func (s *Server) getFiler(w http.ResponseWriter, r *http.Request) {
	filer, ok := s.dataset.Registry().LookupAny(chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, r, http.StatusNotFound, "filer not found")
		return
	}
	render.JSON(w, r, filer)
}

// ExpenseHistory is the expense history of one filer.
type ExpenseHistory struct {
	CNPJ           string    `json:"cnpj"`
	RegistryNumber string    `json:"registry_number"`
	Data           []Expense `json:"data"`
}

// filerExpenses handles GET /api/filers/{id}/expenses
func (s *Server) filerExpenses(w http.ResponseWriter, r *http.Request) {
	filer, ok := s.dataset.Registry().LookupAny(chi.URLParam(r, "id"))
	if !ok {
		s.fail(w, r, http.StatusNotFound, "filer not found")
		return
	}

	render.JSON(w, r, ExpenseHistory{
		CNPJ:           validation.Digits(filer.CNPJ),
		RegistryNumber: filer.RegistryNumber,
		Data:           s.dataset.ExpensesOf(filer.RegistryNumber),
	})
}

// statistics handles GET /api/statistics
func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.dataset.Statistics())
}
