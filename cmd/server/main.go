package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/database"
	"github.com/fitlog/backend/internal/handlers"
	"github.com/fitlog/backend/internal/middleware"
	"github.com/fitlog/backend/internal/notify"
	"github.com/fitlog/backend/internal/services"
	"github.com/fitlog/backend/internal/token"
	"github.com/fitlog/backend/internal/totp"
	"github.com/fitlog/backend/pkg/logger"
	"github.com/fitlog/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureEncryption(cfg.Recovery.EncryptionSecret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	issuer := token.NewIssuer(cfg.Token)
	totpEngine := totp.NewEngine(cfg.TOTP)
	notifier := notify.FromConfig(cfg.SMTP)

	auditService := services.NewAuditService(db)
	sessionService := services.NewSessionService(db, issuer, totpEngine, notifier, cfg.Recovery, cfg.App)

	authHandler := handlers.NewAuthHandler(sessionService, auditService)
	mfaHandler := handlers.NewMFAHandler(sessionService, auditService)
	recoveryHandler := handlers.NewRecoveryHandler(sessionService, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db, issuer)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.Refresh)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	mfaRoutes := api.Group("/auth/mfa")
	mfaRoutes.Get("/status", authMiddleware.RequireAuth, mfaHandler.Status)
	mfaRoutes.Post("/totp/setup", authMiddleware.RequireAuth, mfaHandler.TOTPSetup)
	mfaRoutes.Post("/totp/verify-setup", authMiddleware.RequireAuth, mfaHandler.TOTPVerifySetup)
	mfaRoutes.Post("/totp/disable", authMiddleware.RequireAuth, mfaHandler.TOTPDisable)
	mfaRoutes.Post("/verify", mfaHandler.Verify)

	emailRoutes := api.Group("/auth/email")
	emailRoutes.Post("/verify/request", authMiddleware.RequireAuth, recoveryHandler.RequestEmailVerification)
	emailRoutes.Get("/verify", recoveryHandler.VerifyEmail)

	passwordRoutes := api.Group("/auth/password/reset")
	passwordRoutes.Post("/request", recoveryHandler.RequestPasswordReset)
	passwordRoutes.Post("/confirm", recoveryHandler.ConfirmPasswordReset)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
