package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gift-casino-backend/config"
	"gift-casino-backend/handlers"
	"gift-casino-backend/middleware"
	"gift-casino-backend/models"
	"gift-casino-backend/services"
	"gift-casino-backend/utils"
	"gift-casino-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	app := fiber.New()

	// Optional gateway token check; a no-op unless configured.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With",
	}))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.InventoryItem{},
		&models.GameRecord{},
		&models.PromoRedemption{},
		&models.Promo{},
		&models.Deposit{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	if cfg.R2AccountID != "" {
		if err := utils.InitR2(cfg); err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
	} else {
		log.Warn("R2 not configured, avatar uploads disabled")
	}

	tonClient := services.NewTonClient(cfg)
	cryptoBotClient := services.NewCryptoBotClient(cfg)

	depositService := services.NewDepositService(db,
		map[models.DepositProvider]services.PaymentVerifier{
			models.ProviderTon:       tonClient,
			models.ProviderCryptoBot: cryptoBotClient,
		},
		cfg.VerifyTimeout, cfg.MaxVerifyAttempts, cfg.SweepBatchSize,
	)

	userService := services.NewUserService(db)
	promoService := services.NewPromoService(db)
	paymentService := services.NewPaymentService(db, depositService, cryptoBotClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollDeposits(ctx, depositService, models.ProviderTon, cfg.TonPollInterval)
	go workers.PollDeposits(ctx, depositService, models.ProviderCryptoBot, cfg.CryptoBotPollInterval)

	promoService.StartExpiryScheduler()

	handlers.SetupUserRoutes(app, userService)
	handlers.SetupPromoRoutes(app, promoService)
	handlers.SetupPaymentRoutes(app, paymentService)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Error("Server error: ", err)
		}
	}()

	log.Infof("Server running on http://localhost:%d", cfg.Port)
	log.Infof("TON sweep every %s, CryptoBot sweep every %s", cfg.TonPollInterval, cfg.CryptoBotPollInterval)

	<-ctx.Done()
	log.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Error("Shutdown error: ", err)
	}
}
