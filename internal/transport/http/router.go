package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/infrastructure/api"
	"github.com/go-events-sync/internal/transport/http/handler"
	appmiddleware "github.com/go-events-sync/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. The returned stop
// function ends the rate limiters' cleanup goroutines.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.AccessLog(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", api.HeaderClientID},
		ExposedHeaders:   []string{handler.HeaderAssetVersion},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mutationRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.MutationRate), cfg.MutationBurst)
	socketRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.MutationRate), cfg.MutationBurst)

	healthH := handler.NewHealthHandler()
	eventH := handler.NewEventHandler(deps.Events)

	r.Get("/health-check/{action}", healthH.Ping)

	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", eventH.List)
		r.Get("/{id}", eventH.Get)

		// Admin-only mutations. Without a verifier nobody can mutate.
		r.Group(func(r chi.Router) {
			if deps.Verifier != nil {
				r.Use(appmiddleware.Auth(deps.Verifier))
			}
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
			r.Use(mutationRL.Limit)

			r.Post("/", eventH.Create)
			r.Post("/import", eventH.Import)
			r.Put("/{id}", eventH.Update)
			r.Delete("/{id}", eventH.Delete)
		})
	})

	if deps.Hub != nil {
		r.With(socketRL.Limit).Get(cfg.SocketPath, deps.Hub.ServeHTTP)
	}

	if deps.Assets != nil {
		assetH := handler.NewAssetHandler(deps.Assets, cfg.AssetVersion, deps.Logger)
		r.Method(http.MethodGet, "/", assetH)
		r.Method(http.MethodGet, "/offline", assetH)
		r.Method(http.MethodGet, "/favicon.ico", assetH)
		r.Method(http.MethodGet, "/assets/*", assetH)
	}

	return r, func() {
		mutationRL.Stop()
		socketRL.Stop()
	}
}
