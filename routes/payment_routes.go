package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mkamau512/daktari_connect/handlers"
	"github.com/mkamau512/daktari_connect/middleware"
)

func PaymentRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", handlers.HandleGatewayWebhook)
	api.Get("/fees", handlers.GetApplicableFee)

	payments := api.Group("/payments", middleware.Protected())
	payments.Post("/initiate", handlers.InitiatePayment)
	payments.Post("/coupon", handlers.PayWithCoupon)
	payments.Get("", handlers.ListMyPayments)
	payments.Get("/:id", handlers.GetPayment)
	payments.Post("/:id/confirm", handlers.ConfirmPayment)
	payments.Post("/:id/cancel", handlers.CancelPayment)
	payments.Post("/:id/retry", handlers.RetryPayment)
}
