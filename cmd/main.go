package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/kavith/streamgate/internal/config"
	"github.com/kavith/streamgate/internal/db"
	"github.com/kavith/streamgate/internal/gate"
	"github.com/kavith/streamgate/internal/handlers"
	"github.com/kavith/streamgate/internal/middleware"
	"github.com/kavith/streamgate/internal/runner"
	"github.com/kavith/streamgate/internal/services"
	"github.com/kavith/streamgate/internal/tokenstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		// Downloads may legitimately run for a long time.
		WriteTimeout: 0,
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Connect to MongoDB
	database, disconnect, err := db.Connect(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := tokenstore.NewMongoStore(ctx, database)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize token store: %v", err)
	}

	tokens := services.NewTokenService(store, services.TokenConfig{
		TTL:       cfg.TokenTTL,
		SingleUse: cfg.SingleUseTokens,
	})

	downloadGate := gate.New(cfg.GlobalMaxDownloads, map[string]int{
		"basic":   cfg.BasicTierLimit,
		"premium": cfg.PremiumTierLimit,
	}, cfg.BasicTierLimit)

	resolveRunner := runner.New(cfg.ExtractorBin, cfg.ResolveTimeout)
	fetchRunner := runner.New(cfg.ExtractorBin, cfg.DownloadTimeout)

	resolver := services.NewResolver(resolveRunner)
	orchestrator, err := services.NewOrchestrator(tokens, downloadGate, fetchRunner, services.OrchestratorConfig{
		TempDir:      cfg.TempDir,
		RecheckAfter: cfg.RecheckAfter,
	})
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	handlers.InitMediaHandler(resolver, tokens, orchestrator)
	handlers.InitAdminHandler(store)

	// Media Routes
	media := app.Group("/media", middleware.Auth(cfg.JWTSecret))
	media.Post("/info", handlers.ResolveInfoHandler)
	media.Post("/token", handlers.IssueTokenHandler)
	media.Post("/token/refresh", handlers.RefreshTokenHandler)
	media.Post("/token/revoke", handlers.RevokeTokenHandler)
	media.Get("/download/:token", handlers.DownloadHandler)

	// Admin Routes
	admin := app.Group("/admin", middleware.Auth(cfg.JWTSecret), middleware.AdminOnly)
	admin.Get("/tokens", handlers.ListTokens)
	admin.Post("/token/:id/revoke", handlers.AdminRevokeToken)

	// Start server, shut down cleanly on SIGINT/SIGTERM
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect error: %v", err)
	}
}
