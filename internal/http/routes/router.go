package routes

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/http/handlers"
	"github.com/7and1/robotscraping/internal/http/mw"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/service"
)

func init() {
	// Framework-generated errors (422 validation, 404 route, ...) use the
	// same envelope as handler errors.
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		if len(errs) > 0 {
			parts := make([]string, 0, len(errs)+1)
			if message != "" {
				parts = append(parts, message)
			}
			for _, err := range errs {
				parts = append(parts, err.Error())
			}
			message = strings.Join(parts, "; ")
		}
		return apperr.New(apperr.FromStatus(status), message)
	}
}

// New builds the full HTTP surface: the chi router with its middleware chain
// and every Huma operation registered.
func New(cfg *config.Config, services *service.Services, repos *repository.Repositories, db handlers.DBPinger, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	h := handlers.New(cfg, services, repos, db, logger)

	router := chi.NewRouter()
	router.Use(mw.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(mw.VersionPrefix)
	router.Use(mw.SecurityHeaders)

	origins := []string{"*"}
	if cfg.CORSOrigin != "" {
		origins = strings.Split(cfg.CORSOrigin, ",")
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "x-api-key", "x-idempotency-key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Cache-Hit", "X-Idempotency-Replay"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Use(mw.MaxBodySize(int64(cfg.MaxRequestSizeMB) << 20))

	var limitRepo repository.RateLimitRepository
	if cfg.RateLimitDistributed {
		limitRepo = repos.RateLimits
	}
	router.Use(mw.RateLimit(mw.RateLimitConfig{
		Enabled:            cfg.RateLimitEnabled,
		KeyedPerWindow:     cfg.RateLimitedKeyed,
		AnonymousPerWindow: cfg.RateLimitAnonymous,
		Window:             cfg.RateLimitWindow,
	}, limitRepo, logger))

	// Idempotency applies only to the job-creating endpoints.
	idem := mw.Idempotency(repos.Idempotency, repos.Logs, logger)
	router.Use(func(next http.Handler) http.Handler {
		wrapped := idem(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && (r.URL.Path == "/v1/extract" || r.URL.Path == "/v1/batch") {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	api := humachi.New(router, NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, services.Auth, cfg.AllowAnonymous))
	Register(api, h)

	// Raw route: CSV is outside huma's content negotiation.
	router.Get("/v1/usage/export", h.ExportUsageCSV)

	return router
}
