// Package httpapi exposes the custody service over JSON HTTP.
package httpapi

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gibiertrace/internal/core"
	"gibiertrace/internal/obs"
	"gibiertrace/pkg/domain"
)

// Service is the subset of core.Service the handlers call.
type Service interface {
	ApplyDossier(ctx context.Context, actor domain.Actor, numero string, patch domain.DossierPatch) (domain.DossierView, core.Result, error)
	GetDossier(ctx context.Context, numero string) (domain.DossierView, error)
	ApplyUnit(ctx context.Context, actor domain.Actor, numero, unitID string, patch domain.UnitPatch) (domain.Unit, core.Result, error)
	UpsertHop(ctx context.Context, actor domain.Actor, numero, unitID, handlerID string, patch domain.HopPatch) (domain.CustodyHop, core.Result, error)
	Sync(ctx context.Context, actor domain.Actor, batch core.SyncBatch) core.SyncResult
}

// Authenticator turns a bearer token into an actor.
type Authenticator interface {
	Authenticate(token string) (domain.Actor, error)
}

// Options tunes the router. Zero values disable the matching middleware.
type Options struct {
	Logger         *slog.Logger
	Metrics        *obs.Metrics
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	// DebugVars exposes expvar counters on /debug/vars.
	DebugVars bool
}

// Handler serves the custody API.
type Handler struct {
	service Service
	auth    Authenticator
	logger  *slog.Logger
}

// NewHandler binds the handlers to a service and an authenticator.
func NewHandler(service Service, auth Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, auth: auth, logger: logger}
}

// NewRouter registers the public probes and the authenticated /api/v1 routes.
func NewRouter(h *Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(h.logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Instrument)
	}
	r.Use(loggingMiddleware(h.logger))
	r.Use(securityHeaders)
	if opts.RateLimitRPS > 0 {
		r.Use(newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware)
	}

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.DebugVars {
		r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if opts.MaxBodyBytes > 0 {
			r.Use(maxBodyBytes(opts.MaxBodyBytes))
		}
		r.Use(h.authMiddleware)
		r.Post("/sync", h.sync)
		r.Get("/fei/{numero}", h.getDossier)
		r.Post("/fei/{numero}", h.applyDossier)
		r.Post("/fei/{numero}/carcasse/{unitID}", h.applyUnit)
		r.Post("/fei/{numero}/carcasse/{unitID}/intermediaire/{handlerID}", h.upsertHop)
	})
	return r
}
