package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/itchan-dev/starter/frontend/internal/middleware"
	"github.com/itchan-dev/starter/frontend/internal/setup"
	mw "github.com/itchan-dev/starter/shared/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter wires the frontend routes. Every page and JSON endpoint runs
// with a request-bound fetcher (see middleware.Binder).
func SetupRouter(deps *setup.Dependencies) http.Handler {
	r := chi.NewRouter()
	public := deps.Public

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(deps.Metrics.Middleware)
	r.Use(mw.SecurityHeadersWithCSP(public.Frontend.SecureCookies, mw.DefaultCSP))

	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := deps.Handler
	auth := deps.Auth

	r.Group(func(r chi.Router) {
		r.Use(deps.Binder.Bind)
		r.Use(middleware.CSRF(public.Frontend.SecureCookies))

		r.Get("/login", h.LoginGetHandler)
		r.With(mw.RateLimitByIP(deps.LoginLimiter)).Post("/login", h.LoginPostHandler)
		r.Post("/logout", h.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.NeedAuth())
			r.Get("/", h.IndexGetHandler)
			r.Get("/boards/{board}", h.BoardGetHandler)

			r.Group(func(r chi.Router) {
				r.Use(auth.AdminOnly())
				r.Post("/boards", h.IndexPostHandler)
				r.Post("/boards/{board}/delete", h.BoardDeleteHandler)
			})
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   public.Frontend.AllowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(deps.Binder.Bind)
		r.Get("/boards", h.APIBoardsHandler)
		r.Get("/boards/{board}", h.APIBoardHandler)
		r.Get("/me", h.APIMeHandler)
	})

	return r
}
