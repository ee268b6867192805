package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mkamau512/daktari_connect/handlers"
	"github.com/mkamau512/daktari_connect/middleware"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())

	admin.Post("/payments/:id/refund", handlers.RequestRefund)
	admin.Post("/payments/:id/refund/no-show", handlers.RefundForNoShow)
	admin.Get("/payments/:id/refunds", handlers.ListRefunds)

	admin.Get("/doctors/:doctorId/balance", handlers.GetDoctorBalance)

	fees := admin.Group("/fees")
	fees.Post("", handlers.SetFee)
	fees.Post("/unified", handlers.SetUnifiedFee)
	fees.Get("/:specialization/history", handlers.GetFeeHistory)
}
