package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/config"
	"github.com/private-escrow/escrowd/internal/http/handlers"
	"github.com/private-escrow/escrowd/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	configHandler *handlers.ConfigHandler,
	agreementHandler *handlers.AgreementHandler,
	inviteHandler *handlers.InviteHandler,
	accountHandler *handlers.AccountHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/challenge", authHandler.Challenge)
	api.Post("/auth/login", authHandler.Login)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Chain settings (public, no auth required)
	api.Get("/config", configHandler.Get)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Account
	protected.Get("/dashboard", accountHandler.Dashboard)
	protected.Get("/usernames/resolve/:name", accountHandler.ResolveUsername)
	protected.Get("/usernames/:address", accountHandler.GetUsername)
	protected.Post("/me/username", accountHandler.SetUsername)

	// Agreements
	protected.Post("/agreements", agreementHandler.Create)
	protected.Get("/agreements/:id", agreementHandler.Get)
	protected.Post("/agreements/:id/refresh", agreementHandler.Refresh)
	protected.Post("/agreements/:id/terms", agreementHandler.SetTerms)
	protected.Post("/agreements/:id/milestones", agreementHandler.AddMilestone)
	protected.Put("/agreements/:id/milestones", agreementHandler.UpdateMilestone)
	protected.Delete("/agreements/:id/milestones/last", agreementHandler.RemoveLastMilestone)
	protected.Post("/agreements/:id/sign", agreementHandler.Sign)
	protected.Post("/agreements/:id/fund", agreementHandler.Fund)
	protected.Post("/agreements/:id/milestones/submit", agreementHandler.SubmitMilestone)
	protected.Post("/agreements/:id/milestones/approve", agreementHandler.ApproveMilestone)
	protected.Post("/agreements/:id/milestones/reject", agreementHandler.RejectMilestone)
	protected.Post("/agreements/:id/claim-payout", agreementHandler.ClaimPayout)
	protected.Post("/agreements/:id/dispute", agreementHandler.RaiseDispute)
	protected.Post("/agreements/:id/dispute/resolve", agreementHandler.ResolveDispute)
	protected.Post("/agreements/:id/request-cancel", agreementHandler.RequestCancel)
	protected.Post("/agreements/:id/cancel", agreementHandler.Cancel)
	protected.Post("/agreements/:id/claim-refund", agreementHandler.ClaimRefund)
	protected.Get("/agreements/:id/discussion", agreementHandler.GetDiscussion)
	protected.Post("/agreements/:id/discussion", agreementHandler.PostDiscussionMessage)
	protected.Get("/agreements/:id/journal", agreementHandler.GetJournal)

	// Invites
	protected.Post("/invites", inviteHandler.Create)
	protected.Get("/invites/:id", inviteHandler.Get)
	protected.Post("/invites/:id/accept", inviteHandler.Accept)
	protected.Post("/invites/:id/bail-out", inviteHandler.BailOut)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
