package routes

import (
	"time"

	"chamahub/internal/adapters/http/handlers"
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/config"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/push"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers and mounts every route.
// It returns the scheduler so main can start and stop it with the server.
func Setup(app *fiber.App, db *gorm.DB, hub *push.Hub, cfg *config.Config) *services.SchedulerService {
	// Repositories
	ledger := repositories.NewLedger(db)
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	chamaRepo := repositories.NewChamaRepository()
	contributionRepo := repositories.NewContributionRepository()
	loanRepo := repositories.NewLoanRepository()
	roscaRepo := repositories.NewRoscaRepository()
	welfareRepo := repositories.NewWelfareRepository()
	notificationRepo := repositories.NewNotificationRepository()

	// Services
	notificationService := services.NewNotificationService(ledger, notificationRepo, hub)
	authService := services.NewAuthService(userRepo, refreshTokenRepo,
		cfg.JWT.Secret, cfg.JWT.AccessTokenMins, cfg.JWT.RefreshTokenDays)
	chamaService := services.NewChamaService(ledger, chamaRepo, userRepo, roscaRepo, notificationService)
	contributionService := services.NewContributionService(ledger, chamaRepo, contributionRepo, roscaRepo, notificationService)
	loanService := services.NewLoanService(ledger, chamaRepo, loanRepo, notificationService)
	roscaService := services.NewRoscaService(ledger, chamaRepo, roscaRepo, contributionRepo, notificationService)
	welfareService := services.NewWelfareService(ledger, chamaRepo, welfareRepo, notificationService)
	schedulerService := services.NewSchedulerService(ledger, loanRepo, roscaRepo,
		loanService, roscaService, notificationService, services.SchedulerOptions{
			DailySweepAt:         cfg.Scheduler.DailySweepAt,
			ReminderTickMinutes:  cfg.Scheduler.ReminderTickMinutes,
			ReminderLeadDays:     &cfg.Scheduler.ReminderLeadDays,
			BatchSize:            cfg.Scheduler.BatchSize,
			DefaultThresholdDays: cfg.Scheduler.DefaultThresholdDays,
		})

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService, cfg)
	chamaHandler := handlers.NewChamaHandler(chamaService)
	contributionHandler := handlers.NewContributionHandler(contributionService)
	loanHandler := handlers.NewLoanHandler(loanService)
	roscaHandler := handlers.NewRoscaHandler(roscaService)
	welfareHandler := handlers.NewWelfareHandler(welfareService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, hub)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	// Auth routes (public + protected)
	authRoutes := apiV1.Group("/auth")
	setupAuthRoutes(authRoutes, authHandler, cfg)

	// Chama routes (all authenticated; ledger data is never cached)
	chamaRoutes := apiV1.Group("/chamas")
	chamaRoutes.Use(middleware.AuthMiddleware(cfg))
	chamaRoutes.Use(middleware.NoCacheHeaders())
	setupChamaRoutes(chamaRoutes, chamaHandler, contributionHandler, loanHandler,
		roscaHandler, welfareHandler)

	// Cycle and swap routes addressed by cycle/swap ID
	cycleRoutes := apiV1.Group("/cycles")
	cycleRoutes.Use(middleware.AuthMiddleware(cfg))
	cycleRoutes.Use(middleware.NoCacheHeaders())
	setupCycleRoutes(cycleRoutes, roscaHandler)

	// Loan routes addressed by loan ID
	loanRoutes := apiV1.Group("/loans")
	loanRoutes.Use(middleware.AuthMiddleware(cfg))
	loanRoutes.Use(middleware.NoCacheHeaders())
	setupLoanRoutes(loanRoutes, loanHandler)

	// Notification feed + websocket stream
	notificationRoutes := apiV1.Group("/notifications")
	notificationRoutes.Use(middleware.AuthMiddleware(cfg))
	setupNotificationRoutes(notificationRoutes, notificationHandler)

	return schedulerService
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, cfg *config.Config) {
	// Public routes
	router.Post("/register", middleware.AuthRateLimiter(), handler.Register)
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)
	router.Post("/refresh", handler.RefreshToken)
	router.Post("/logout", handler.Logout)

	// Protected routes
	router.Get("/me", middleware.AuthMiddleware(cfg), handler.Me)
	router.Post("/logout-all", middleware.AuthMiddleware(cfg), handler.LogoutAll)
}

// setupChamaRoutes configures chama-scoped routes
func setupChamaRoutes(
	router fiber.Router,
	chamaHandler *handlers.ChamaHandler,
	contributionHandler *handlers.ContributionHandler,
	loanHandler *handlers.LoanHandler,
	roscaHandler *handlers.RoscaHandler,
	welfareHandler *handlers.WelfareHandler,
) {
	router.Post("/", chamaHandler.Create)
	router.Get("/", chamaHandler.ListMine)
	router.Get("/:id", chamaHandler.Get)
	router.Post("/:id/archive", chamaHandler.Archive)
	router.Put("/:id/constitution", chamaHandler.UpdateConstitution)

	// Membership
	router.Get("/:id/members", chamaHandler.Members)
	router.Post("/:id/members", chamaHandler.AddMember)
	router.Put("/:id/members/:userID/role", chamaHandler.ChangeRole)
	router.Delete("/:id/members/:userID", chamaHandler.RemoveMember)

	// Contributions
	router.Post("/:id/contributions", contributionHandler.Record)
	router.Get("/:id/contributions", contributionHandler.List)
	router.Delete("/:id/contributions/:contributionID", contributionHandler.Delete)

	// Loans
	router.Post("/:id/loans", loanHandler.Apply)
	router.Get("/:id/loans", loanHandler.List)

	// Cycles
	router.Post("/:id/cycles", roscaHandler.CreateCycle)

	// Welfare & shares; fund-moving routes get the stricter limiter
	router.Post("/:id/welfare/claims", middleware.TreasuryRateLimiter(), welfareHandler.PayClaim)
	router.Post("/:id/shares", middleware.TreasuryRateLimiter(), welfareHandler.PurchaseShares)
	router.Get("/:id/shares/:userID", welfareHandler.Equity)
}

// setupLoanRoutes configures loan-ID-scoped routes
func setupLoanRoutes(router fiber.Router, handler *handlers.LoanHandler) {
	router.Get("/:loanID", handler.Get)
	router.Put("/:loanID/approve", handler.Approve)
	router.Put("/:loanID/reject", handler.Reject)
	router.Post("/:loanID/guarantee", handler.DecideGuarantee)
	router.Post("/:loanID/disburse", middleware.TreasuryRateLimiter(), handler.Disburse)
	router.Post("/:loanID/repayments", handler.Repay)
}

// setupCycleRoutes configures cycle-ID-scoped routes
func setupCycleRoutes(router fiber.Router, handler *handlers.RoscaHandler) {
	router.Get("/:cycleID", handler.GetCycle)
	router.Post("/:cycleID/swaps", handler.RequestSwap)
	router.Put("/swaps/:swapID", handler.RespondSwap)
	router.Post("/:cycleID/payouts", middleware.TreasuryRateLimiter(), handler.ProcessPayout)
}

// setupNotificationRoutes configures the feed and the websocket stream
func setupNotificationRoutes(router fiber.Router, handler *handlers.NotificationHandler) {
	router.Get("/", middleware.PrivateCacheHeaders(15*time.Second), handler.List)
	router.Put("/:notificationID/read", handler.MarkRead)
	router.Put("/read-all", handler.MarkAllRead)
	router.Get("/ws", handler.WebsocketUpgrade, handler.Websocket())
}
