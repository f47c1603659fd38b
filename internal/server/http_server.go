package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/proximityhq/proximity-backend/internal/app"
	"github.com/proximityhq/proximity-backend/internal/auth"
	"github.com/proximityhq/proximity-backend/internal/config"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/repository"
)

// NewApp builds the Fiber application with all middlewares and routes wired.
func NewApp(cfg *config.Config, appCtx *app.AppContext) *fiber.App {
	fiberApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterMiddlewares(fiberApp, appCtx.Logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	handlers := NewHandlers(appCtx, tokens)
	authMw := auth.NewMiddleware(tokens, repository.NewUserRepository(appCtx.DB))

	fiberApp.Get("/health", handlers.Health)

	api := fiberApp.Group("/api/v1")
	api.Post("/auth/login", handlers.Login)

	protected := api.Group("", authMw.Handle)
	protected.Get("/matches", handlers.Matches)
	protected.Get("/group-matches", handlers.ListGroups)
	protected.Get("/group-matches/:id", handlers.GetGroup)
	protected.Post("/group-matches/:id/accept", handlers.MemberAction(lifecycle.ActionAccept))
	protected.Post("/group-matches/:id/decline", handlers.MemberAction(lifecycle.ActionDecline))
	protected.Post("/group-matches/:id/leave", handlers.MemberAction(lifecycle.ActionLeave))
	protected.Get("/group-matches/:id/messages", handlers.ListMessages)
	protected.Post("/group-matches/:id/messages", handlers.PostMessage)

	admin := api.Group("/admin", auth.AdminKeyMiddleware(cfg.Auth.AdminAPIKey))
	admin.Post("/group-matches/generate", handlers.Generate)
	admin.Post("/vector/reindex", handlers.Reindex)

	return fiberApp
}

// StartHTTPServer boots the HTTP server and blocks until it stops.
func StartHTTPServer(cfg *config.Config, appCtx *app.AppContext) error {
	return NewApp(cfg, appCtx).Listen(cfg.HTTP.Host + ":" + cfg.HTTP.Port)
}
