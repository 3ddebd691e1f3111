package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/lessonlens/lessonlens/pkg/validator"

	"github.com/lessonlens/lessonlens/internal/adapter/handler"
	"github.com/lessonlens/lessonlens/internal/adapter/repository"
	"github.com/lessonlens/lessonlens/internal/infrastructure/cache"
	"github.com/lessonlens/lessonlens/internal/infrastructure/database"
	"github.com/lessonlens/lessonlens/internal/infrastructure/external/openai"
	httpmw "github.com/lessonlens/lessonlens/internal/infrastructure/http/middleware"
	"github.com/lessonlens/lessonlens/internal/infrastructure/storage"
	"github.com/lessonlens/lessonlens/internal/usecase/chat"
	"github.com/lessonlens/lessonlens/internal/usecase/chunker"
	"github.com/lessonlens/lessonlens/internal/usecase/cost"
	"github.com/lessonlens/lessonlens/internal/usecase/embedding"
	"github.com/lessonlens/lessonlens/internal/usecase/ingest"
	"github.com/lessonlens/lessonlens/internal/usecase/retrieval"
	"github.com/lessonlens/lessonlens/pkg/config"
	"github.com/lessonlens/lessonlens/pkg/jwt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(echomw.LoggerWithConfig(echomw.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(echomw.Recover())

	// CORS middleware
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	log.Println("🔧 Initializing dependencies...")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Apply pending SQL migrations only when explicitly enabled in config.
	// Production deployments manage schema via the migrate command.
	if cfg.Database.AutoMigrate {
		log.Println("🔄 Applying SQL migrations...")
		if err := database.Migrate(db, "migrations"); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping migrations; run cmd/migrate for schema changes")
	}

	// Initialize answer cache
	log.Println("📦 Connecting to Redis...")
	var store cache.Store
	redisStore, err := cache.NewRedisStore(&cfg.Redis)
	if err != nil {
		log.Printf("⚠️  Redis unavailable, answer cache falls back to memory: %v", err)
		store = cache.NewMemoryStore()
	} else {
		defer redisStore.Close()
		store = redisStore
	}

	// Initialize transcript archive
	log.Println("🗄️  Initializing transcript archive...")
	archive, err := storage.NewTranscriptArchive(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize transcript archive: %v", err)
	}

	// Initialize repositories
	log.Println("⚙️  Initializing repositories...")
	videoRepo := repository.NewVideoRepository(db)
	chunkRepo := repository.NewChunkRepository(db, logger)
	conversationRepo := repository.NewConversationRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	// Initialize provider client and the retrieval pipeline
	log.Println("🤖 Initializing provider client...")
	aiClient := openai.NewClient(&cfg.OpenAI, logger)
	guard := cost.NewGuard(usageRepo, cfg.Budget, logger)
	embedder := embedding.NewService(aiClient, &cfg.OpenAI, logger)
	ranker := retrieval.NewRanker(cfg.Ranking)
	builder := retrieval.NewContextBuilder(cfg.Context)
	retriever := retrieval.NewService(embedder, chunkRepo, ranker, builder, cfg.Context, cfg.Cache, cfg.OpenAI.EmbeddingModel, logger)

	// Initialize services
	log.Println("✨ Initializing services...")
	ingestService := ingest.NewService(videoRepo, chunkRepo, embedder, archive, guard, chunker.OptionsFromConfig(cfg.Chunking), logger)
	chatService := chat.NewService(conversationRepo, retriever, aiClient, guard, store, &cfg.OpenAI, cfg.Context, cfg.Cache, logger)

	// Initialize identity middleware
	log.Println("🔑 Initializing identity middleware...")
	verifier := jwt.NewVerifier(cfg.Auth.AccessSecret)
	identityMW := httpmw.NewIdentityMiddleware(verifier)

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	chatHandler := handler.NewChatHandler(chatService, logger)
	videoHandler := handler.NewVideoHandler(ingestService, logger)
	usageHandler := handler.NewUsageHandler(guard, logger)

	router := handler.NewRouter(cfg, identityMW, chatHandler, videoHandler, usageHandler)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
