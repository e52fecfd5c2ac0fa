package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petwelfare/service-agetracker/internal/application"
	"github.com/petwelfare/service-agetracker/internal/config"
	ageDomain "github.com/petwelfare/service-agetracker/internal/domain/agetracker"
	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
	petEvents "github.com/petwelfare/service-agetracker/internal/events"
	"github.com/petwelfare/service-agetracker/internal/handler"
	"github.com/petwelfare/service-agetracker/internal/platform/auth"
	"github.com/petwelfare/service-agetracker/internal/platform/database"
	"github.com/petwelfare/service-agetracker/internal/platform/health"
	"github.com/petwelfare/service-agetracker/internal/platform/kafka"
	"github.com/petwelfare/service-agetracker/internal/platform/logger"
	"github.com/petwelfare/service-agetracker/internal/platform/metrics"
	"github.com/petwelfare/service-agetracker/internal/platform/middleware"
	"github.com/petwelfare/service-agetracker/internal/repository"
	"github.com/petwelfare/service-agetracker/internal/scheduler"
)

const serviceName = "service-agetracker"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
	)

	// Initialize repositories
	ageRepo, petRepo := openStorage(cfg, log)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, 15*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Kafka producer. A nil publisher disables event publishing.
	var publisher application.EventPublisher
	if cfg.KafkaConfig.Enabled {
		kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		publisher = kafkaProducer
	}

	// Platform time zone for birth-date checks and the daily job
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		log.Fatal("invalid scheduler timezone", zap.Error(err))
	}

	// Initialize application service
	ageService := application.NewAgeTrackingService(ageRepo, petRepo, publisher, time.Now, log).
		WithLocation(loc)

	// Initialize and start pet event consumer in a goroutine
	if cfg.KafkaConfig.Enabled {
		groupID := cfg.KafkaConfig.GroupPrefix + "agetracker-service"
		petConsumer := petEvents.NewPetEventConsumer(
			cfg.KafkaConfig.Brokers,
			groupID,
			petRepo,
			ageService,
			log,
		)
		defer func() { _ = petConsumer.Close() }()

		go func() {
			log.Info("starting pet event consumer")
			if err := petConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("pet event consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize daily recalculation job
	var job *scheduler.DailyRecalculationJob
	if cfg.Scheduler.Enabled {
		job, err = scheduler.NewDailyRecalculationJob(cfg.Scheduler.Cron, loc, ageService, log)
		if err != nil {
			log.Fatal("failed to create recalculation job", zap.Error(err))
		}
		if err := job.Start(); err != nil {
			log.Fatal("failed to start recalculation job", zap.Error(err))
		}
	}

	// Initialize rate limiter with periodic eviction of idle clients
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(limiter.Middleware())

	// Register health check and metrics routes
	healthHandler := health.NewHandler(ageRepo, serviceName)
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Register routes
	ageTrackerHandler := handler.NewAgeTrackerHandler(ageService)
	ageTrackerHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Cancel the consumer context
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop scheduling and wait for an in-flight recalculation
	if job != nil {
		job.Stop(shutdownCtx)
	}

	// Shutdown HTTP server with timeout
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}

// openStorage returns the age tracker store and the pet registry projection for
// the configured driver. Postgres is migrated before use.
func openStorage(cfg *config.ServiceConfig, log *zap.Logger) (ageDomain.AgeRecordRepository, petDomain.Projection) {
	if cfg.StorageDriver == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryAgeTrackerRepository(), repository.NewMemoryPetRepository()
	}

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.AgeTrackerModel{}, &repository.PetModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	return repository.NewGormAgeTrackerRepository(db), repository.NewGormPetRepository(db)
}
