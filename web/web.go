// Package web provides the JSON HTTP surface of the entity service.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sennetconsortium/entity-api/adapters/metrics"
	"github.com/sennetconsortium/entity-api/app"
	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// Handler provides the HTTP endpoints.
type Handler struct {
	service *app.Service
	authn   ports.AuthProvider
	store   ports.EntityStore
	metrics *metrics.Collector
	logger  zerolog.Logger
	version string
}

// Deps contains dependencies for the HTTP handler. Metrics may be nil.
type Deps struct {
	Service *app.Service
	Auth    ports.AuthProvider
	Store   ports.EntityStore
	Metrics *metrics.Collector
	Logger  zerolog.Logger
	Version string
}

// NewHandler creates the HTTP handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		service: deps.Service,
		authn:   deps.Auth,
		store:   deps.Store,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		version: deps.Version,
	}
}

// RouterOptions toggle optional route groups.
type RouterOptions struct {
	MetricsEnabled bool
	MetricsPath    string
}

// Router builds the API router.
func (h *Handler) Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(h.requestLogger)
	r.Use(h.authMiddleware)
	if h.metrics != nil {
		r.Use(h.metricsMiddleware)
	}

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Get("/status", h.Status)
	r.Get("/entity-types", h.EntityTypes)

	r.Post("/entities/{type}", h.CreateEntity)
	r.Get("/entities/{id}", h.GetEntity)
	r.Put("/entities/{id}", h.UpdateEntity)
	r.Get("/entities/{id}/provenance", h.Provenance)

	r.Get("/{type}/entities", h.EntitiesByType)

	r.Get("/ancestors/{id}", h.Ancestors)
	r.Get("/descendants/{id}", h.Descendants)
	r.Get("/parents/{id}", h.Parents)
	r.Get("/children/{id}", h.Children)

	r.Get("/previous_revisions/{id}", h.PreviousRevisions)
	r.Get("/next_revisions/{id}", h.NextRevisions)
	r.Get("/datasets/{id}/latest-revision", h.LatestRevision)

	r.Get("/visibility/{id}", h.Visibility)
	r.Get("/usergroups", h.UserGroups)

	r.Delete("/flush-cache/{id}", h.FlushCache)
	r.Delete("/flush-all-cache", h.FlushAllCache)

	return r
}

// authMiddleware resolves the bearer token once per request. Requests
// without a token proceed anonymously; invalid tokens are rejected here so
// handlers never see them.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), &auth.User{})))
			return
		}

		user, err := h.authn.UserFromToken(r.Context(), token)
		if err != nil {
			if h.metrics != nil {
				h.metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
			}
			h.logger.Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requestID assigns a fresh id to requests that arrive without one and
// echoes it back so callers can correlate logs.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-Id")).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// metricsMiddleware records request counters and latency against the chi
// route pattern to keep label cardinality bounded.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.metrics.RequestsInFlight.Inc()
		defer h.metrics.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ww.Status())
		h.metrics.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		h.metrics.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}
