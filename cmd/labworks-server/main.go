package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/labworks/platform/pkg/auth"
	"github.com/labworks/platform/pkg/catalog"
	"github.com/labworks/platform/pkg/common/config"
	"github.com/labworks/platform/pkg/common/database"
	"github.com/labworks/platform/pkg/common/kafka"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/delivery"
	"github.com/labworks/platform/pkg/equipment"
	"github.com/labworks/platform/pkg/gateway/middleware"
	"github.com/labworks/platform/pkg/gateway/routes"
	"github.com/labworks/platform/pkg/identity"
	"github.com/labworks/platform/pkg/observability/metrics"
	"github.com/labworks/platform/pkg/tenant"
	"github.com/labworks/platform/pkg/workflow"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	tenantRepo := tenant.NewRepository(db)
	identityRepo := identity.NewRepository(db)
	equipmentRepo := equipment.NewRepository(db)
	workflowRepo := workflow.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"tenant":    tenantRepo.AutoMigrate,
		"identity":  identityRepo.AutoMigrate,
		"equipment": equipmentRepo.AutoMigrate,
		"workflow":  workflowRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("tables", name).Fatal("failed to migrate tables")
		}
	}

	tokens, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid jwt configuration")
	}

	redisClient := database.OpenRedis(cfg)
	revocations := auth.NewRevocationList(redisClient)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
	defer producer.Close()

	var mailer delivery.EmailSender = delivery.NoopMailer{}
	if cfg.SMTPHost != "" {
		mailer = delivery.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender)
	}

	files, err := delivery.NewLocalFileStore(cfg.FileStoreDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open result file store")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load test-type catalog")
	}

	tenantService := tenant.NewService(tenantRepo, identityRepo, equipmentRepo, workflowRepo)
	identityService := identity.NewService(identityRepo, tenantRepo)
	equipmentService := equipment.NewService(equipmentRepo)
	workflowService := workflow.NewService(workflowRepo, equipmentRepo, identityRepo, files, mailer, producer, cat)

	authHandler := routes.NewAuthHandler(identityService, tokens, revocations)
	adminHandler := routes.NewAdminHandler(identityService)
	catalogHandler := routes.NewCatalogHandler(cat)
	tenantHandler := tenant.NewHandler(tenantService)
	equipmentHandler := equipment.NewHandler(equipmentService)
	workflowHandler := workflow.NewHandler(workflowService, identityService)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	authHandler.RegisterPublic(api)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(tokens, revocations, identityRepo))
	authHandler.RegisterProtected(protected)
	catalogHandler.Register(protected)
	equipmentHandler.Register(protected)
	workflowHandler.Register(protected)

	admin := protected.PathPrefix("/admin").Subrouter()
	adminHandler.RegisterStats(admin)
	workflowHandler.RegisterAdmin(admin)
	adminHandler.RegisterUsers(protected)

	superadmin := protected.PathPrefix("/superadmin").Subrouter()
	tenantHandler.Register(superadmin)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("labworks server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start labworks server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down labworks server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("labworks server forced to shutdown")
	}
	logger.Log.Info("labworks server stopped")
}
