package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/learnerfast/learnerfast/app/controllers"
	"github.com/learnerfast/learnerfast/app/repository"
	"github.com/learnerfast/learnerfast/internal/pkg/cache"
	"github.com/learnerfast/learnerfast/internal/pkg/catalog"
	"github.com/learnerfast/learnerfast/internal/pkg/config"
	"github.com/learnerfast/learnerfast/internal/pkg/database"
	"github.com/learnerfast/learnerfast/internal/pkg/domains"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/env"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
	"github.com/learnerfast/learnerfast/internal/pkg/jobs"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
	"github.com/learnerfast/learnerfast/internal/pkg/payments"
	"github.com/learnerfast/learnerfast/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	cfg := config.Load()

	mode := "prod"
	if cfg.IsDev() {
		mode = "dev"
	}
	log, err := logger.New(mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	app, shutdown, err := NewApplication(cfg, log)
	if err != nil {
		log.Fatal("failed to start application", "error", err)
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Fatal("http server stopped", "error", err)
		}
	}()
	log.Info("http server started", "addr", cfg.ListenAddr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	shutdown()
}

// NewApplication wires every dependency and returns the Fiber app plus a
// function that stops background work and releases connections.
func NewApplication(cfg config.Config, log *logger.Logger) (*fiber.App, func(), error) {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}

	redisCache := cache.New(cfg.Cache)
	var catalogStore catalog.Store
	var limiterStorage fiber.Storage
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warn("cache unavailable, continuing without redis", "addr", cfg.Cache.Addr(), "error", err)
	} else {
		catalogStore = redisCache
		limiterStorage = router.NewLimiterStorage(redisCache.Client(), cfg.Cache.Password)
	}
	cancel()

	repos := repository.NewFactory(db).GetRepositories()

	phonepe := gateway.NewPhonePeClient(cfg.PhonePe)
	if missing := cfg.PhonePe.Missing(); len(missing) > 0 {
		log.Warn("phonepe is not fully configured", "missing", missing)
	}
	razorpay := gateway.NewRazorpayClient(cfg.Razorpay)
	if !razorpay.Configured() {
		log.Warn("razorpay is not configured")
	}

	writer := enrollment.NewWriterFromDB(db, log).WithPeople(repos.Identity)
	paymentService := payments.NewService(payments.NewRepository(db), writer, phonepe, razorpay, payments.Config{
		AppURL:        cfg.AppURL,
		PendingExpiry: cfg.PendingExpiry,
	}, log)
	catalogReader := catalog.NewReader(repos.Site, repos.Domain, repos.Course, catalog.Options{
		RootDomain: cfg.RootDomain,
		Store:      catalogStore,
		Log:        log,
	})
	domainService := domains.NewService(repos.Domain, repos.Site, nil, domains.Config{
		RootDomain:  cfg.RootDomain,
		CNAMETarget: cfg.CustomDomainTarget,
	}, log).WithCatalog(catalogReader)

	handlers := &controllers.Handlers{
		Payments:    paymentService,
		Catalog:     catalogReader,
		Domains:     domainService,
		Enrollments: writer,
		Courses:     repos.Course,
		Log:         log,
	}

	app := fiber.New(fiber.Config{
		AppName:   "learnerfast",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), fiberlogger.New())

	// fiber metrics
	if cfg.MonitorUser != "" && cfg.MonitorPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MonitorUser: cfg.MonitorPassword,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Handlers:       handlers,
		JWTSecret:      cfg.JWTSecret,
		CORSOrigins:    cfg.CORSOrigins,
		LimiterStorage: limiterStorage,
	})
	if cfg.JWTSecret == "" {
		log.Warn("SUPABASE_JWT_SECRET is empty, authenticated routes will reject every request")
	}

	var cron *jobs.Manager
	if cfg.CronEnabled {
		cron = jobs.NewManager(paymentService, domainService, jobs.Config{ReconcileAfter: cfg.ReconcileAfter}, log)
		if err := cron.Start(); err != nil {
			return nil, nil, err
		}
	}

	shutdown := func() {
		if cron != nil {
			cron.Stop()
		}
		if err := redisCache.Close(); err != nil {
			log.Warn("failed to close cache", "error", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, shutdown, nil
}

func findOpenAPISpec() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/learnerfast to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		candidate := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
