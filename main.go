package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"printportal-backend/apperr"
	"printportal-backend/auth"
	"printportal-backend/config"
	"printportal-backend/controllers"
	"printportal-backend/database"
	"printportal-backend/logger"
	"printportal-backend/metrics"
	"printportal-backend/middlewares"
	"printportal-backend/notify"
	"printportal-backend/ratelimit"
	"printportal-backend/routes"
	"printportal-backend/services"
	"printportal-backend/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.IsProduction())

	// ---- Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	// ---- Storage
	storage, presigner, err := buildStorage(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("storage initialization failed")
	}

	// ---- Auth
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set; falling back to ADMIN_PASSWORD for token signing")
	}
	secret := cfg.VerificationSecret()
	tokens := auth.NewTokenService(secret, secret != config.WeakJWTSecret)
	if !tokens.CanSign() {
		log.Error("no JWT_SECRET or ADMIN_PASSWORD configured; admin login is disabled")
	}
	passwords, err := auth.NewPasswordChecker(cfg.Auth.AdminPassword)
	if err != nil {
		log.WithError(err).Fatal("admin password could not be hashed")
	}

	// ---- Rate limiter (sweeps expired windows in the background)
	rl := ratelimit.New(logger.Component(log, "ratelimit"))
	rl.Start(cfg.RateLimit.SweepInterval)

	// ---- Notifications
	sender := notify.NewSMTPSender(cfg.SMTP, cfg.IsProduction())
	if err := sender.Check(); err != nil {
		log.WithError(err).Warn("email notifications will fail until SMTP is configured")
	}
	router, err := notify.NewRouter(sender, notify.Recipients{
		Builder:  cfg.Recipients.Builder,
		AeroLead: cfg.Recipients.AeroLead,
		MotoLead: cfg.Recipients.MotoLead,
	}, cfg.AppURL, logger.Component(log, "notify"))
	if err != nil {
		log.WithError(err).Fatal("email templates failed to parse")
	}

	// ---- Services
	gate := uploads.NewGate(cfg.Uploads.Extensions, cfg.MaxUploadBytes())
	requests := services.NewRequestService(services.Options{
		Store:            database.NewRequestRepository(db),
		Storage:          storage,
		Gate:             gate,
		Notifier:         router,
		Logger:           logger.Component(log, "services"),
		BatchConcurrency: cfg.Batch.Concurrency,
		BatchMaxItems:    cfg.Batch.MaxItems,
	})
	authMW := middlewares.NewAuth(tokens, cfg.AppOrigin(), cfg.IsProduction(), logger.Component(log, "http"))

	// ---- Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.NewErrorHandler(logger.Component(log, "http"), cfg.IsProduction()),
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middlewares.RequestLogger(logger.Component(log, "http")))
	app.Use(cors.New(corsConfig(cfg)))

	// ---- Global flood guard; per-action budgets are applied on routes
	global := cfg.RateLimit.Global
	app.Use(limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		Max:          global.Max,
		Expiration:   global.Window,
		KeyGenerator: middlewares.ClientID,
		LimitReached: func(c *fiber.Ctx) error {
			metrics.RateLimitedTotal.WithLabelValues("global").Inc()
			return apperr.RateLimited("Too many requests. Please try again later.", global.Max, time.Now().Add(global.Window))
		},
	}))

	// ---- Routes
	routes.Register(app, routes.Deps{
		Handler: &controllers.Handler{
			DB:         db,
			Requests:   requests,
			Tokens:     tokens,
			Passwords:  passwords,
			Auth:       authMW,
			Storage:    storage,
			Presigner:  presigner,
			Gate:       gate,
			PresignTTL: cfg.Uploads.PresignTTL,
			Logger:     logger.Component(log, "controllers"),
		},
		Auth:     authMW,
		Limiter:  rl,
		DB:       db,
		Budgets:  cfg.RateLimit,
		Gatherer: registry,
	})

	// ---- Start
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "env": cfg.Env, "storage": cfg.Uploads.Backend}).Info("API server starting")
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := router.Wait(ctx); err != nil {
		log.WithError(err).Warn("pending notifications abandoned")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server shutdown complete")
}

// buildStorage selects the upload backend. Only the object store can presign.
func buildStorage(cfg *config.Config, log *logrus.Logger) (uploads.Storage, uploads.Presigner, error) {
	if cfg.Uploads.Backend == "s3" {
		s3 := cfg.Uploads.S3
		blob, err := uploads.NewBlobStorage(uploads.BlobConfig{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
		}, logger.Component(log, "uploads"))
		if err != nil {
			return nil, nil, err
		}
		return blob, blob, nil
	}
	local, err := uploads.NewLocalStorage(cfg.Uploads.Dir, logger.Component(log, "uploads"))
	if err != nil {
		return nil, nil, err
	}
	return local, nil, nil
}

// corsConfig allows credentials only for explicit origins.
func corsConfig(cfg *config.Config) cors.Config {
	origins := cfg.AllowedOrigins
	if origins == "" {
		origins = cfg.AppOrigin()
	}
	if origins == "" {
		return cors.Config{
			AllowOrigins: "*",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		ExposeHeaders:    "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Content-Disposition",
	}
}
