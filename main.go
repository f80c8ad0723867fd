// File: slotline/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"

	"slotline/calendar"
	googlecal "slotline/calendar/google"
	"slotline/config"
	"slotline/cron"
	"slotline/database"
	recordsRepo "slotline/database/repository/records"
	"slotline/handlers"
	"slotline/routes"
	"slotline/services"
	"slotline/services/booking"
	ai "slotline/services/intelligence"
	"slotline/services/timeparse"
	"slotline/utils"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitSessionCache()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	// External collaborators.
	var provider calendar.Provider
	provider, err := googlecal.NewClient(bootCtx, config.AppConfig.GoogleCredentials)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize google calendar client: %v", err)
	}

	var extractor ai.Extractor = ai.KeywordExtractor{}
	if config.AppConfig.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiExtractor(bootCtx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize gemini extractor: %v", err)
		}
		extractor = gemini
	} else {
		logger.Sugar().Warn("main: GEMINI_API_KEY not set, falling back to keyword extraction")
	}

	// Negotiation engine.
	parseOpts := timeparse.Options{
		DefaultDuration: time.Duration(config.AppConfig.DefaultDurationMin) * time.Minute,
		MaxCandidates:   config.AppConfig.MaxSuggestions,
	}
	index := booking.NewAvailabilityIndex(provider)
	engine := &booking.Engine{
		Index: index,
		Resolver: &booking.SlotResolver{
			Index:           index,
			MaxAlternatives: config.AppConfig.MaxAlternatives,
			Granularity:     time.Duration(config.AppConfig.SlotGranularityMin) * time.Minute,
			ParseOpts:       parseOpts,
		},
		Writer: &booking.CalendarWriter{
			Provider:   provider,
			MaxRetries: config.AppConfig.WriterMaxRetries,
			Backoff:    time.Duration(config.AppConfig.WriterBackoffMs) * time.Millisecond,
		},
		StalenessMaxAge: time.Duration(config.AppConfig.AvailabilityStaleSecs) * time.Second,
		Lookahead:       time.Duration(config.AppConfig.LookaheadDays) * 24 * time.Hour,
		RefreshRetries:  config.AppConfig.RefreshRetries,
		RefreshBackoff:  time.Duration(config.AppConfig.RefreshBackoffMs) * time.Millisecond,
		MaxStrikes:      config.AppConfig.DisambiguationStrikes,
	}

	sessionStore := booking.NewRedisSessionStore(
		utils.GetSessionCacheClient(),
		time.Duration(config.AppConfig.SessionTTLMin)*time.Minute,
	)

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer queue.Close()

	assistantService := &services.DefaultAssistantService{
		Engine:            engine,
		Store:             sessionStore,
		Extractor:         extractor,
		Provider:          provider,
		Records:           recordsRepo.NewMongoRecordRepo(),
		Queue:             queue,
		DefaultCalendarID: config.AppConfig.DefaultCalendarID,
		DefaultTimezone:   config.AppConfig.DefaultTimezone,
		ReminderLead:      time.Duration(config.AppConfig.ReminderLeadMin) * time.Minute,
	}

	// Reminder worker consumes the queue in background.
	cron.InitReminderWorker()

	utils.StartHealthMonitor([]*redis.Client{utils.GetSessionCacheClient()}, database.MongoClient)

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())

	assistantHandler := handlers.NewAssistantHandler(assistantService, logger)
	routes.RegisterRoutes(router, assistantHandler)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
