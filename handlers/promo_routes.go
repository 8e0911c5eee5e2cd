package handlers

import (
	"gift-casino-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPromoRoutes(app *fiber.App, promoService *services.PromoService) {
	app.Post("/promocode", promoService.CreatePromo)
	app.Get("/promocode", promoService.ListPromos)
	app.Delete("/promocode/:code", promoService.DeletePromo)
	app.Post("/promocode/activate", promoService.ActivatePromo)
}
