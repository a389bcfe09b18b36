package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/config"
	"reqforge/internal/infrastructure"
	"reqforge/internal/interfaces/http"
	"reqforge/internal/logger"
	"reqforge/internal/repository"
	"reqforge/internal/usecases"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pgClient.Close()

	userRepo := repository.NewUserRepository(pgClient.Pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pgClient.Pool)
	usageRepo := repository.NewUsageRepository(pgClient.Pool)
	projectRepo := repository.NewProjectRepository(pgClient.Pool)
	messageRepo := repository.NewMessageRepository(pgClient.Pool)
	requirementRepo := repository.NewRequirementRepository(pgClient.Pool)
	planRepo := repository.NewPlanRepository(pgClient.Pool)

	openaiClient := infrastructure.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	stripeClient := infrastructure.NewStripeClient(cfg.StripeSecretKey)

	localLimiter := infrastructure.NewLocalRateLimiter()
	defer localLimiter.Close()
	var remoteLimiter *infrastructure.RemoteRateLimiter
	if cfg.RemoteCounterConfigured() {
		remoteLimiter = infrastructure.NewRemoteRateLimiter(cfg.RedisRestURL, cfg.RedisRestToken)
	} else {
		log.Info("rate limit: no shared counter configured, using local limiter only")
	}
	limiter := infrastructure.NewRateLimiter(remoteLimiter, localLimiter, log)

	if cfg.EntitlementBypassTier != "" {
		log.Warn("entitlement bypass enabled", zap.String("tier", string(cfg.EntitlementBypassTier)))
	}

	authUsecase := usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
	entitlementUsecase := usecases.NewEntitlementUsecase(subscriptionRepo, usageRepo, cfg.EntitlementBypassTier, log)
	chatService := usecases.NewChatService(openaiClient, messageRepo, log)
	generationService := usecases.NewGenerationService(openaiClient, messageRepo, requirementRepo, planRepo, "prompts", log)
	billingUsecase := usecases.NewBillingUsecase(stripeClient, subscriptionRepo, entitlementUsecase, cfg.BaseURL(),
		cfg.StripePriceBasic, cfg.StripePricePro, cfg.StripePriceTeam, log)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := http.NewHandler(authUsecase, entitlementUsecase, chatService, generationService, billingUsecase, projectRepo, log)
	middleware := http.NewMiddleware(cfg.JWTSecret, userRepo, limiter, cfg.BaseURL(), log)
	http.SetupRoutes(router, handler, middleware, cfg.StripeWebhookSecret)

	server := &nethttp.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
