package api

import (
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/auth"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig параметры маршрутизатора
type RouterConfig struct {
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
	RateLimit          int
}

// SetupRouter настраивает маршрутизатор
func SetupRouter(
	syncHandler *handlers.SyncHandler,
	authPort interfaces.AuthPort,
	logger interfaces.LoggerPort,
	cfg RouterConfig,
) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 110 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1000
	}

	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimiter(cfg.RateLimit, time.Minute))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.ContentType)
		r.Use(auth.AuthMiddleware(authPort, logger))
		r.Use(auth.RequirePermission(authPort, security.PermissionSyncManage))

		syncHandler.Routes(r)
	})

	return r
}
