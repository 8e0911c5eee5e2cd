package handlers

import (
	"gift-casino-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	app.Post("/users", userService.CreateUser)
	app.Get("/users", userService.ListUsers)
	app.Patch("/users/:telegramId", userService.UpdateUser)
	app.Patch("/users/:telegramId/balance", userService.SetUserBalance)

	app.Get("/users/:telegramId/inventory", userService.GetInventory)
	app.Patch("/users/:telegramId/inventory", userService.AddInventory)
	app.Patch("/users/:telegramId/inventory/remove", userService.RemoveInventory)

	app.Post("/users/:telegramId/history", userService.AddGameRecord)
	app.Post("/users/:telegramId/avatar", userService.UploadAvatar)
}
