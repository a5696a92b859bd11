package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"printportal-backend/config"
	"printportal-backend/controllers"
	"printportal-backend/middlewares"
	"printportal-backend/ratelimit"
)

// Deps are the shared components routes attach to.
type Deps struct {
	Handler  *controllers.Handler
	Auth     *middlewares.Auth
	Limiter  *ratelimit.Limiter
	DB       *gorm.DB
	Budgets  config.RateLimitConfig
	Gatherer prometheus.Gatherer
}

// Register wires all HTTP routes at the root and mirrors them under /api.
func Register(app *fiber.App, d Deps) {
	app.Get("/healthz", d.Handler.Healthz)
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	mount(app.Group(""), d)
	mount(app.Group("/api"), d)
}

func mount(r fiber.Router, d Deps) {
	h := d.Handler

	loginLimit := middlewares.RateLimit(d.Limiter, "login", "Too many login attempts. Please try again later.", d.Budgets.Login)
	submitLimit := middlewares.RateLimit(d.Limiter, "submit", "Too many submissions. Please try again later.", d.Budgets.Submit)
	presignLimit := middlewares.RateLimit(d.Limiter, "presign", "Too many upload requests. Please try again later.", d.Budgets.Presign)

	// Staff-only mutations: same-origin + session
	staff := d.Auth.RequireAuth(true)

	// Auth
	r.Post("/auth/login", loginLimit, h.Login)
	r.Post("/auth/logout", d.Auth.SameOrigin(), h.Logout)
	r.Get("/auth/verify", h.Verify)

	// Requests
	r.Post("/requests", submitLimit, middlewares.Idempotency(d.DB), h.CreateRequest)
	r.Get("/requests", h.GetRequests)
	r.Post("/requests/batch/status", staff, h.BatchUpdateRequests)
	r.Post("/requests/batch/delete", staff, h.BatchDeleteRequests)
	r.Get("/requests/:id", h.GetRequest)
	r.Put("/requests/:id", staff, h.UpdateRequest)
	r.Delete("/requests/:id", staff, h.DeleteRequest)

	// Files
	r.Get("/files/:id", d.Auth.RequireAuth(false), h.DownloadFile)
	r.Post("/uploads/presign", d.Auth.SameOrigin(), presignLimit, h.PresignUpload)
}
