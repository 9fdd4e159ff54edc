package handlers

import (
	"net/http"

	"memo-web/internal/guard"
	"memo-web/internal/middleware"
	"memo-web/internal/observability"
	"memo-web/internal/routes"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter wires the middleware chain and every route.
func NewRouter(h *Handler, metrics *observability.Collector, allowedOrigins []string, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.Metrics(metrics),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get(routes.Health, h.Health)
	r.Method(http.MethodGet, routes.Metrics, metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.withInstance)

		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware(h.guardState, false))
			r.Get(routes.SignIn, h.SignInPage)
			r.Post(routes.SignIn, h.SignIn)
			r.Get(routes.SignUp, h.SignUpPage)
			r.Post(routes.SignUp, h.SignUp)
			r.Get(routes.SignupSuccess, h.SignupSuccess)
			r.Post(routes.SignOut, h.SignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware(h.guardState, true))
			r.Route(routes.Memos, func(r chi.Router) {
				r.Get("/", h.ListMemos)
				r.Post("/", h.CreateMemo)
				r.Put("/{id}", h.UpdateMemo)
				r.Post("/{id}", h.UpdateMemo)
				r.Delete("/{id}", h.DeleteMemo)
			})
			r.Route(routes.Categories, func(r chi.Router) {
				r.Get("/", h.ListCategories)
				r.Post("/", h.CreateCategory)
				r.Put("/{id}", h.UpdateCategory)
				r.Delete("/{id}", h.DeleteCategory)
			})
		})
	})

	r.NotFound(h.Home)
	return r
}
