package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mkamau512/daktari_connect/handlers"
	"github.com/mkamau512/daktari_connect/middleware"
)

func BalanceRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	balance := api.Group("/balance", middleware.Protected(), middleware.DoctorRequired())
	balance.Get("", handlers.GetMyBalance)
	balance.Post("/withdraw", handlers.Withdraw)
}
