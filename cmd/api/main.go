package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/mkamau512/daktari_connect/cache"
	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/database"
	"github.com/mkamau512/daktari_connect/handlers"
	"github.com/mkamau512/daktari_connect/jobs"
	"github.com/mkamau512/daktari_connect/notifications"
	"github.com/mkamau512/daktari_connect/payments"
	"github.com/mkamau512/daktari_connect/routes"
	"github.com/mkamau512/daktari_connect/services"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()
	database.SeedDefaults()
	cache.ConnectRedis()
	notifications.InitEmailService()

	gateway := payments.NewStripeGateway()
	couponClient := coupons.NewClient()
	events := notifications.NewPublisher()
	feeRate := payments.FeeRate{Percent: 0.029, Fixed: 0.30}

	paymentStore := services.NewGormPaymentStore(database.DB)
	ledgerStore := services.NewGormLedgerStore(database.DB)
	refundStore := services.NewGormRefundStore(database.DB)
	feeService := services.NewFeeService(database.DB, cache.Client)

	settlementService := services.NewSettlementService(paymentStore, ledgerStore, feeService, gateway, events, feeRate)
	couponService := services.NewCouponService(paymentStore, ledgerStore, feeService, couponClient, events)
	refundService := services.NewRefundService(paymentStore, refundStore, ledgerStore, gateway, events, feeRate)
	ledgerService := services.NewLedgerService(ledgerStore, paymentStore, gateway, events)

	handlers.Init(settlementService, couponService, refundService, ledgerService, feeService)

	c := cron.New()
	c.AddFunc("*/5 * * * *", func() { jobs.RunCouponReconciliation(couponService) })
	c.AddFunc("0 * * * *", func() { jobs.RunSettlementSweep(ledgerService, feeService) })
	go c.Start()
	log.Println("✅ Reconciliation and settlement sweeps scheduled.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Daktari Connect",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Daktari Connect API",
		})
	})

	routes.AuthRoutes(app)
	routes.PaymentRoutes(app)
	routes.BalanceRoutes(app)
	routes.AdminRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	err := app.Listen(":8080")
	if err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
