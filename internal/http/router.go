package http

import (
	"github.com/cinebook/booking/internal/idempotency"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cinebook/booking/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/orders", h.CreateOrder)
	r.Get("/v1/orders", h.ListOrders)
	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Post("/v1/orders/{id}/status", h.UpdateOrderStatus)
	r.Get("/v1/showtimes/{id}/seats", h.AvailableSeats)
	r.Post("/v1/showtimes", h.CreateShowtime)
	r.Put("/v1/showtimes/{id}", h.UpdateShowtime)
	r.Delete("/v1/showtimes/{id}", h.DeleteShowtime)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
