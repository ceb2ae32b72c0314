package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/logger"
	"github.com/example/ec-storefront/internal/metrics"
)

type RouterConfig struct {
	Handlers *Handlers
	JWT      *auth.JWTService
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	// WebDir serves a static storefront at / when set
	WebDir string
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(cfg.Log))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	authed := middleware.AuthMiddleware(cfg.JWT)
	adminOnly := middleware.RequireRole("admin")
	protect := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return authed(adminOnly(fn)) }

	// Routes stay on the root router: a non-matching PathPrefix subrouter
	// would turn a method mismatch into a 404.
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Catalog
	r.HandleFunc("/api/products", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/products/search", h.SearchProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/products/suggestions", h.Suggestions).Methods(http.MethodGet)
	r.HandleFunc("/api/products/featured", h.FeaturedProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id:[0-9]+}", h.GetProduct).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id:[0-9]+}/related", h.RelatedProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/categories", h.ListCategories).Methods(http.MethodGet)

	// Accounts
	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.Handle("/api/auth/me", protect(h.Me)).Methods(http.MethodGet)
	r.Handle("/api/users/me", protect(h.UpdateProfile)).Methods(http.MethodPut)

	// Orders
	r.Handle("/api/checkout", protect(h.Checkout)).Methods(http.MethodPost)
	r.Handle("/api/orders", protect(h.ListOrders)).Methods(http.MethodGet)
	r.Handle("/api/orders/{orderNumber}", protect(h.GetOrder)).Methods(http.MethodGet)

	// Analytics ingestion is anonymous; a token, when sent, is ignored
	r.HandleFunc("/api/analytics/events", h.TrackEvent).Methods(http.MethodPost)

	// Back office
	r.Handle("/api/admin/products", admin(h.AdminListProducts)).Methods(http.MethodGet)
	r.Handle("/api/admin/products", admin(h.AdminCreateProduct)).Methods(http.MethodPost)
	r.Handle("/api/admin/products/{id:[0-9]+}", admin(h.AdminUpdateProduct)).Methods(http.MethodPut)
	r.Handle("/api/admin/products/{id:[0-9]+}", admin(h.AdminDeleteProduct)).Methods(http.MethodDelete)
	r.Handle("/api/admin/products/{id:[0-9]+}/restore", admin(h.AdminRestoreProduct)).Methods(http.MethodPost)
	r.Handle("/api/admin/users", admin(h.AdminListUsers)).Methods(http.MethodGet)
	r.Handle("/api/admin/users/{id:[0-9]+}", admin(h.AdminDeactivateUser)).Methods(http.MethodDelete)
	r.Handle("/api/admin/orders", admin(h.AdminListOrders)).Methods(http.MethodGet)
	r.Handle("/api/admin/orders/{id:[0-9]+}/status", admin(h.AdminUpdateOrderStatus)).Methods(http.MethodPut)
	r.Handle("/api/admin/analytics/summary", admin(h.AnalyticsSummary)).Methods(http.MethodGet)

	// Static files (web UI)
	if cfg.WebDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.WebDir))).Methods(http.MethodGet, http.MethodHead)
	}

	return r
}
