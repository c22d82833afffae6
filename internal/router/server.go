package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/auth"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/compress"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/config"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/handlers"
)

const (
	compressLevel = 5
)

type Middleware interface {
	Handle(h http.Handler) http.Handler
}

type Router struct {
	address string
	router  *chi.Mux
}

func NewRouter(conf *config.ServerConfig, h *handlers.HandlerSet, middlewares ...Middleware) *Router {

	r := chi.NewRouter()

	for _, m := range middlewares {
		r.Use(m.Handle)
	}

	// the dashboard UI is a browser app served from its own origin
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{conf.DashboardOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Use(middleware.Compress(compressLevel))
	r.Use(compress.RequestUngzipper{}.Handle)

	r.Post("/api/login", h.HandleLogin)
	r.Get("/api/status", h.HandleStatus)

	authMiddleware := &auth.AuthenticateMiddleware{Secret: []byte(conf.Secret)}

	r.Group(func(r chi.Router) {

		r.Use(authMiddleware.Handle)

		r.Get("/api/orders", h.HandleGetOrders)
		r.Post("/api/orders", h.HandleCreateOrder)
		r.Patch("/api/orders/{id}/status", h.HandleUpdateOrderStatus)
		r.Delete("/api/orders/{id}", h.HandleDeleteOrder)
		r.Post("/api/sync", h.HandleSyncNow)
		r.Get("/api/stats", h.HandleGetStats)

		r.Get("/api/products", h.HandleGetProducts)
		r.Post("/api/products", h.HandleCreateProduct)
		r.Post("/api/products/bulk", h.HandleBulkCreateProducts)
		r.Put("/api/products/{id}", h.HandleUpdateProduct)
		r.Delete("/api/products/{id}", h.HandleDeleteProduct)
	})

	return &Router{router: r, address: conf.RunAddress}
}

func (r *Router) Handler() http.Handler {
	return r.router
}

func (r *Router) ListenAndServe() error {
	err := http.ListenAndServe(r.address, r.router)
	return err
}
