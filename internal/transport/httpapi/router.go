package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agrinova/agrinova/internal/transport/httpapi/handler"
	"github.com/agrinova/agrinova/internal/transport/httpapi/middleware"
	"github.com/agrinova/agrinova/pkg/logger"
)

// Config holds router configuration. Zero rate-limit values fall back to
// the middleware package defaults.
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	RateLimitRPS       float64
	RateLimitBurst     int
	AuthHandler        *handler.AuthHandler
	TransactionHandler *handler.TransactionHandler
	HealthHandler      *handler.HealthHandler
	JWTMiddleware      func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public - no authentication required)
		if cfg.AuthHandler != nil {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
		}

		// Protected routes (require JWT authentication)
		if cfg.JWTMiddleware != nil && cfg.TransactionHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.JWTMiddleware)

				r.Post("/transactions", cfg.TransactionHandler.CreateTransaction)
				r.Get("/transactions", cfg.TransactionHandler.GetTransactions)
				r.Get("/transactions/{id}", cfg.TransactionHandler.GetTransaction)
				r.Post("/transactions/{id}/reverse", cfg.TransactionHandler.ReverseTransaction)
				r.Get("/transactions/{id}/verify", cfg.TransactionHandler.VerifyTransaction)

				r.Get("/balance", cfg.TransactionHandler.GetBalance)
				r.Get("/financial-report", cfg.TransactionHandler.GetFinancialReport)
			})
		}
	})

	return r
}
