package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"growth-engine/handlers"
	"growth-engine/middleware"
	"growth-engine/models"
	"growth-engine/services"
	"growth-engine/utils"
	"growth-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.GrowthEvent{},
		&models.InviteRecord{},
		&models.ShareRecord{},
		&models.AttributionTouch{},
		&models.WindowedCounter{},
		&models.AppliedEvent{},
		&models.PumpCheckpoint{},
		&models.Campaign{},
		&models.CampaignParticipant{},
		&models.ModerationCase{},
		&models.ModerationReport{},
		&models.RateOverride{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	eventStore := services.NewEventStore(db)
	rateLimiter := services.NewRateLimiter(db)
	if err := rateLimiter.LoadOverrides(); err != nil {
		log.Fatal("failed to load rate overrides:", err)
	}
	attribution := services.NewAttributionResolver(db)
	moderation := services.NewModerationQueue(db)
	aggregator := services.NewCounterAggregator(db, attribution, moderation)
	leaderboards := services.NewLeaderboardEngine(db)

	var issuer services.RewardIssuer = services.NoopRewardIssuer{}
	if rewardURL := os.Getenv("REWARD_SERVICE_URL"); rewardURL != "" {
		issuer = services.NewHTTPRewardIssuer(rewardURL, os.Getenv("GROWTH_SERVICE_TOKEN"))
	}
	campaigns := services.NewCampaignTracker(db, issuer)

	inviteService := services.NewInviteService(db, eventStore, rateLimiter)
	shareService := services.NewShareService(db, eventStore, rateLimiter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pump := workers.NewEventPump(db, eventStore, aggregator, attribution, moderation, campaigns)
	pump.Start(ctx)

	archiver := workers.NewEventArchiver(db, eventStore)
	archiver.Start(ctx)

	sched, err := services.StartSweeps(campaigns, inviteService, leaderboards)
	if err != nil {
		log.Fatal("failed to start sweep scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	handlers.SetupEventRoutes(app, eventStore, inviteService, shareService)
	handlers.SetupQueryRoutes(app, leaderboards, campaigns, aggregator)
	handlers.SetupAdminRoutes(app, rateLimiter, moderation, campaigns)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Event pump running")
	log.Println("✅ Event archiver running (hourly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
