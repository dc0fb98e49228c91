package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dermalens/dermalens-backend/internal/clients/redis"
	"github.com/dermalens/dermalens-backend/internal/db"
	"github.com/dermalens/dermalens-backend/internal/handlers"
	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/middleware"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/server"
	"github.com/dermalens/dermalens-backend/internal/services"
	"github.com/dermalens/dermalens-backend/internal/utils"
	"github.com/dermalens/dermalens-backend/internal/workers"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	minScanInterval := utils.GetEnvAsInt("SCAN_MIN_INTERVAL_DAYS", services.DefaultMinScanIntervalDays, log)
	minConfidence := utils.GetEnvAsFloat("SCAN_MIN_CONFIDENCE", workers.DefaultMinConfidence, log)
	declineThreshold := utils.GetEnvAsFloat("SCORE_DECLINE_THRESHOLD", services.DefaultScoreDeclineThreshold, log)
	port := utils.GetEnv("PORT", "8080", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	scanRepo := repos.NewScanRepo(thePG, log)
	scoreDeltaRepo := repos.NewScoreDeltaRepo(thePG, log)
	planRepo := repos.NewTreatmentPlanRepo(thePG, log)
	chatMessageRepo := repos.NewChatMessageRepo(thePG, log)

	// Plan-write lock: redis when configured, in-process otherwise
	var locker services.UserLocker
	if redisLock, rErr := redis.NewUserLock(log); rErr != nil {
		log.Warn("Redis lock unavailable, using in-process lock", "error", rErr)
		locker = services.NewLocalUserLocker(log)
	} else {
		locker = redisLock
		defer redisLock.Close()
	}

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	userService := services.NewUserService(thePG, log, userRepo)
	scanService := services.NewScanService(thePG, log, scanRepo, scoreDeltaRepo, bucketService, minScanInterval)
	planService := services.NewPlanService(thePG, log, planRepo, scanRepo, userRepo, locker, declineThreshold)
	chatService := services.NewChatService(thePG, log, chatMessageRepo, scanRepo, planRepo, openaiClient)

	// Analysis worker
	analyzer := workers.NewAnalyzerWorker(thePG, log, scanRepo, scoreDeltaRepo, planRepo, bucketService, openaiClient, minConfidence, declineThreshold)
	analyzer.Start(context.Background())

	// Handlers
	log.Info("Setting up Handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	scanHandler := handlers.NewScanHandler(scanService)
	planHandler := handlers.NewPlanHandler(planService)
	chatHandler := handlers.NewChatHandler(chatService)
	healthcheckHandler := handlers.NewHealthcheckHandler(thePG)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		UserHandler:        userHandler,
		ScanHandler:        scanHandler,
		PlanHandler:        planHandler,
		ChatHandler:        chatHandler,
		HealthcheckHandler: healthcheckHandler,
	})

	log.Info("Starting server...", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
