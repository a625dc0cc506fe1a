package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/handypro/membership/internal/config"
	"github.com/handypro/membership/internal/domain"
	"github.com/handypro/membership/internal/handler"
	"github.com/handypro/membership/internal/middleware"
	"github.com/handypro/membership/internal/repository"
	"github.com/handypro/membership/internal/service"
	"github.com/handypro/membership/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const idempotencyTTL = 24 * time.Hour

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	// Publisher and ReceiptArchive are optional
	Publisher      domain.EventPublisher
	ReceiptArchive domain.ReceiptArchive
	Metrics        *telemetry.MembershipMetrics
	// Clock overrides time.Now for the membership service
	Clock func() time.Time
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	cfg := deps.Config

	// Repositories
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)
	membershipRepo := repository.NewMongoMembershipRepository(deps.MongoDB)
	planRepo := repository.NewCachedPlanRepository(
		repository.NewMongoPlanRepository(deps.MongoDB),
		cacheRepo,
		time.Duration(cfg.Membership.PlanCacheTTLSeconds)*time.Second,
	)
	paymentEventRepo := repository.NewMongoPaymentEventRepository(deps.MongoDB)

	// Services
	membershipService := service.NewMembershipService(
		membershipRepo,
		planRepo,
		cacheRepo,
		deps.Publisher,
		deps.Metrics,
		service.MembershipServiceConfig{
			MaxWriteAttempts: cfg.Membership.MaxWriteAttempts,
			ActiveCacheTTL:   time.Duration(cfg.Membership.ActiveCacheTTLSeconds) * time.Second,
		},
	)
	if deps.Clock != nil {
		membershipService.SetClock(deps.Clock)
	}
	paymentService := service.NewPaymentService(membershipService, paymentEventRepo, deps.ReceiptArchive)
	planService := service.NewPlanService(planRepo)

	// Handlers
	webhookHandler := handler.NewWebhookHandler(paymentService, cfg.Webhook.Secret)
	membershipHandler := handler.NewMembershipHandler(membershipService)
	planHandler := handler.NewPlanHandler(planService)
	adminHandler := handler.NewAdminHandler(membershipService)

	app := fiber.New(fiber.Config{
		AppName:      "Marketplace Membership API",
		BodyLimit:    int(cfg.Server.BodyLimitKB * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, PATCH, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": cfg.OTEL.ServiceName,
		})
	})

	v1 := app.Group("/v1")

	// ===========================================
	// PUBLIC
	// ===========================================
	v1.Get("/plans", planHandler.ListPlans)
	v1.Post("/payments/webhook", webhookHandler.PaymentWebhook)

	// ===========================================
	// MEMBER (customer | contractor)
	// ===========================================
	me := v1.Group("/me")
	me.Use(middleware.VerifyToken(cfg.JWT.Secret))
	me.Use(middleware.AuthorizeRole(domain.RoleCustomer, domain.RoleContractor))
	me.Use(middleware.IdempotencyMiddleware(deps.RedisClient, idempotencyTTL))

	me.Get("/membership", membershipHandler.GetMyMembership)
	me.Get("/memberships", membershipHandler.ListMyMemberships)
	me.Get("/membership/upgrade-preview", membershipHandler.PreviewUpgrade)
	me.Patch("/membership/auto-renew", membershipHandler.SetAutoRenew)
	me.Post("/membership/leads", middleware.AuthorizeRole(domain.RoleContractor), membershipHandler.ConsumeLead)

	// ===========================================
	// ADMIN
	// ===========================================
	admin := v1.Group("/admin")
	admin.Use(middleware.VerifyToken(cfg.JWT.Secret))
	admin.Use(middleware.AuthorizeRole(domain.RoleAdmin))

	admin.Post("/plans", planHandler.CreatePlan)
	admin.Put("/plans/:id", planHandler.UpdatePlan)
	admin.Get("/users/:id/memberships", adminHandler.ListUserMemberships)
	admin.Post("/memberships/expire", adminHandler.ExpireLapsed)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
