package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"bookmarket/internal/adapter/api"
	"bookmarket/internal/adapter/api/handler"
	apimiddleware "bookmarket/internal/adapter/api/middleware"
	"bookmarket/internal/adapter/api/router"
	"bookmarket/internal/adapter/repository"
	"bookmarket/internal/adapter/repository/memory"
	domainrepo "bookmarket/internal/domain/repository"
	"bookmarket/internal/infrastructure/cache"
	"bookmarket/internal/infrastructure/firebase"
	"bookmarket/internal/infrastructure/metrics"
	"bookmarket/internal/infrastructure/ratelimit"
	"bookmarket/internal/infrastructure/websocket"
	"bookmarket/internal/usecase"
	"bookmarket/pkg/config"
	"bookmarket/pkg/logger"
	"bookmarket/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		chatRepo domainrepo.ChatRepository
		users    domainrepo.UserDirectory
		books    domainrepo.BookCatalog
		verifier apimiddleware.TokenVerifier
	)
	checks := map[string]handler.HealthCheck{}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		if cfg.IsProduction() {
			log.Fatalf("STORE_DRIVER=%s is not allowed in production", config.StoreDriverMemory)
		}
		logger.Warn("Using in-memory chat store and development tokens")
		chatRepo = memory.NewChatRepository()
		verifier = firebase.DevTokenVerifier{}

	default:
		opt, err := firebase.ClientOption(cfg)
		if err != nil {
			log.Fatalf("Failed to load Firebase credentials: %v", err)
		}

		firebaseApp, err := firebase.NewApp(ctx, cfg, opt)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}

		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)

		var opts []option.ClientOption
		if opt != nil {
			opts = append(opts, opt)
		}
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		chatRepo = repository.NewFirestoreChatRepository(firestoreClient)
		profiles := repository.NewFirestoreProfileRepository(firestoreClient)
		users, books = profiles, profiles
	}

	if cfg.RedisURL != "" && users != nil {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()

		cached := repository.NewCachedProfileRepository(users, books, redisCache, cfg.ProfileCacheTTL)
		users, books = cached, cached
		checks["redis"] = redisCache.Ping
	}

	m := metrics.New()

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: ratelimit.PerMinute(cfg.SendMessageRate),
		ratelimit.ActionCreateRoom:  ratelimit.PerHour(cfg.CreateRoomRate),
		ratelimit.ActionAPI:         ratelimit.PerMinute(120),
	})
	rateLimiter.StartCleanupRoutine(ctx, 30*time.Minute)

	chatUseCase := usecase.NewChatUseCase(chatRepo, users, books, rateLimiter, m)

	wsManager := websocket.NewManager(func(ctx context.Context, userID string, r usecase.Renderer) websocket.Session {
		return chatUseCase.NewSession(ctx, userID, r)
	}, m)
	wsManager.Start(ctx)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = response.ErrorHandler

	router.Setup(e, router.Handlers{
		Chat:      handler.NewChatHandler(chatUseCase),
		WebSocket: handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins),
		Health:    handler.NewHealthHandler(checks),
	}, apimiddleware.NewAuthMiddleware(verifier), rateLimiter, m)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
