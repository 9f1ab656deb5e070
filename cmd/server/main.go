// Package main initializes and starts the NikahPrep API server,
// setting up configuration, logging, the database and its change feed,
// repositories, services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/NikahPrep/internal/auth"
	"github.com/atinyakov/NikahPrep/internal/config"
	"github.com/atinyakov/NikahPrep/internal/content"
	"github.com/atinyakov/NikahPrep/internal/db"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/logger"
	"github.com/atinyakov/NikahPrep/internal/middleware"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/atinyakov/NikahPrep/internal/repository"
	"github.com/atinyakov/NikahPrep/internal/server/handler/http"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// eventBuffer is the per-subscriber event queue length.
const eventBuffer = 64

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection and the static catalog.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	catalog, err := content.Load()
	if err != nil {
		zapLogger.Fatal("cannot load content catalog", zap.Error(err))
	}
	if err := db.Seed(ctx, postgresDB, catalog); err != nil {
		zapLogger.Fatal("cannot seed content catalog", zap.Error(err))
	}

	// Change feed: writes are announced with pg_notify and every instance
	// fans them out to its own subscribers and caches.
	broker := realtime.NewBroker(eventBuffer, zapLogger)
	var publisher form.Publisher = realtime.NewPGPublisher(postgresDB)
	if err := realtime.StartListener(ctx, options.DatabaseDSN, realtime.Channel, broker, zapLogger); err != nil {
		zapLogger.Warn("change feed unavailable, events stay local to this instance", zap.Error(err))
		publisher = realtime.LocalPublisher{Broker: broker}
	}

	// Purge read notifications and expired tokens.
	db.StartCleaner(ctx, postgresDB,
		options.CleanerInterval.Duration,
		options.NotificationRetention.Duration,
		zapLogger,
	)

	// Initialize repositories.
	userRepo := repository.NewPostgresUserRepository(postgresDB)
	catalogRepo := repository.NewPostgresCatalogRepository(postgresDB)
	socialRepo := repository.NewPostgresSocialRepository(postgresDB)

	// Initialize business-logic services.
	cacheTTL := options.CacheTTL.Duration
	tokens := auth.NewJWTManager(options.JWTSecret, options.AccessTTL.Duration)

	notifications := service.NewNotificationService(socialRepo, publisher, zapLogger)
	authService := service.NewAuthService(userRepo, tokens, options.RefreshTTL.Duration,
		service.LogMailer{Log: zapLogger}, notifications, zapLogger)
	records := service.NewRecordService(service.RecordStores{
		Budget:  repository.NewBudgetTable(postgresDB),
		Mahr:    repository.NewMahrTable(postgresDB),
		Wedding: repository.NewWeddingBudgetTable(postgresDB),
		Goals:   repository.NewSavingsGoalTable(postgresDB),
	}, publisher, cacheTTL, notifications, zapLogger)
	catalogService := service.NewCatalogService(catalogRepo, service.CatalogStores{
		ModuleNotes: repository.NewModuleNoteTable(postgresDB),
		Discussion:  repository.NewDiscussionNoteTable(postgresDB),
	}, content.NewRenderer(), publisher, cacheTTL, zapLogger)
	couples := service.NewCoupleService(socialRepo, userRepo, notifications, zapLogger)
	dashboard := service.NewDashboardService(authService, records, catalogService, notifications)

	broker.Hook(records.Invalidate)
	broker.Hook(catalogService.Invalidate)

	// Metrics registry with runtime collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Auth:      &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Finance:   &http.FinanceHandler{Records: records, Log: zapLogger},
		Content:   &http.ContentHandler{Catalog: catalogService, Log: zapLogger},
		Social:    &http.SocialHandler{Couples: couples, Notifications: notifications, Log: zapLogger},
		Dashboard: &http.DashboardHandler{Dashboard: dashboard, Log: zapLogger},
		Events:    &http.EventsHandler{Broker: broker, Heartbeat: http.DefaultHeartbeat, Log: zapLogger},
	}, http.RouterOptions{
		Tokens:         tokens,
		Metrics:        middleware.NewMetrics(registry),
		Gatherer:       registry,
		AllowedOrigins: options.AllowedOrigins,
		Log:            zapLogger,
	})

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
