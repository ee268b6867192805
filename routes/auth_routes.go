package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mkamau512/daktari_connect/handlers"
)

func AuthRoutes(app *fiber.App) {
	api := app.Group("/api/v1/auth")

	api.Post("/register", handlers.RegisterUser)
	api.Post("/login", handlers.LoginUser)
}
