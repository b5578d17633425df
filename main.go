package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/database"
	"github.com/fenilmodi00/nepal-ipo-radar/handlers"
	"github.com/fenilmodi00/nepal-ipo-radar/jobs"
	"github.com/fenilmodi00/nepal-ipo-radar/services"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	// Load config
	cfg := config.LoadConfig()
	config.ConfigureLogging(cfg.Settings.Logging)
	log := logrus.WithField("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Record store: Postgres when configured, otherwise in memory
	var (
		db    *sql.DB
		store services.RecordStore
	)
	storeMetrics := map[string]*shared.ServiceMetrics{}
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.ConnectWithConfig(cfg.DatabaseURL, &cfg.Settings.Database)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer database.Close(db)

		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Warn("Migration warning")
		}
		pgStore := database.NewPostgresRecordStore(db, cfg.Settings.Database.MaxRetries)
		storeMetrics["record_store"] = pgStore.Metrics()
		store = pgStore
	} else {
		log.Warn("DATABASE_URL not set; using an in-memory store, records will not survive a restart")
		store = database.NewMemoryRecordStore()
	}

	// Market data provider
	httpClients := shared.NewHTTPClientFactory(cfg.Settings.Provider.HTTPRequestTimeout)
	defer httpClients.CleanupAllClients()
	provider, err := services.NewMarketDataProvider(ctx, cfg, httpClients)
	if err != nil {
		log.WithError(err).Fatal("Failed to create market data provider")
	}

	// Notification dispatcher
	var dispatcher services.NotificationDispatcher
	if cfg.EmailConfigured() {
		email := cfg.Settings.Email
		emailDispatcher := services.NewEmailDispatcher(services.EmailSettings{
			SMTPHost:          email.SMTPHost,
			SMTPPort:          email.SMTPPort,
			Username:          cfg.SMTPUser,
			Password:          cfg.SMTPPassword,
			Recipient:         cfg.AlertRecipientEmail,
			SenderName:        email.SenderName,
			NotifySubscribers: email.NotifySubscribers,
			SendTimeout:       email.SendTimeout,
		}, store)
		storeMetrics["notification_dispatcher"] = emailDispatcher.Metrics()
		dispatcher = emailDispatcher
	} else {
		log.Warn("SMTP credentials or ALERT_RECIPIENT_EMAIL missing; email alerts disabled")
		dispatcher = services.NewDisabledDispatcher()
	}

	// Core services
	cacheService := services.NewCacheService(cfg.Settings.Cache.DefaultTTL, cfg.Settings.Cache.MaxSize)
	recordService := services.NewRecordService(store, cacheService)
	subscriberService := services.NewSubscriberService(store)
	engine := services.NewReconciliationEngine(provider, store)
	coordinator := services.NewScanCoordinator(engine, dispatcher, recordService, cfg.Settings.Scan.Timeout)

	storeMetrics["reconciliation_engine"] = engine.Metrics()
	storeMetrics["market_data_provider"] = engine.ProviderMetrics()
	storeMetrics["scan_coordinator"] = coordinator.Metrics()
	storeMetrics["record_service"] = recordService.Metrics()

	log.WithFields(logrus.Fields{
		"provider":      provider.Name(),
		"dispatcher":    dispatcher.Name(),
		"persistent":    db != nil,
		"scan_timeout":  cfg.Settings.Scan.Timeout,
		"scan_interval": cfg.Settings.Scan.Interval,
		"cache_ttl":     cfg.Settings.Cache.DefaultTTL,
	}).Info("Nepal IPO Radar services initialized")
	if settingsJSON, err := cfg.Settings.ToJSON(); err == nil {
		log.WithField("settings", string(settingsJSON)).Debug("Effective settings")
	}

	// Jobs
	bootstrapJob := jobs.NewBootstrapScanJob(store, coordinator)
	periodicJob := jobs.NewPeriodicScanJob(coordinator, cfg.Settings.Scan.Interval)
	cleanupJob := jobs.NewCacheCleanupJob(cacheService)

	// Handlers
	ipoHandler := handlers.NewIPOHandler(recordService)
	scanHandler := handlers.NewScanHandler(coordinator)
	subscriberHandler := handlers.NewSubscriberHandler(subscriberService)
	performanceHandler := handlers.NewPerformanceHandler(db, store, cacheService, storeMetrics)

	// Setup Fiber
	app := fiber.New(fiber.Config{AppName: "Nepal IPO Radar"})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", performanceHandler.Health)

	// Routes
	api := app.Group("/api/v1")

	api.Get("/ipos", ipoHandler.GetIPOs)
	api.Get("/ipos/:id", ipoHandler.GetIPOByID)

	api.Post("/scan", scanHandler.TriggerScan)
	api.Get("/scan/latest", scanHandler.GetLatestScan)

	api.Post("/subscribers", subscriberHandler.Subscribe)

	api.Get("/metrics", performanceHandler.GetPerformanceMetrics)
	api.Delete("/cache", performanceHandler.ClearCache)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.ServerPort).Info("Server starting")
		return app.Listen(":" + cfg.ServerPort)
	})

	g.Go(func() error {
		bootstrapJob.Run(gctx)
		periodicJob.Start()
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cacheCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cleanupJob.Run()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		periodicJob.Stop()
		for _, metrics := range storeMetrics {
			metrics.LogSummary()
		}
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
	}
}
