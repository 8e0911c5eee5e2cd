package handlers

import (
	"gift-casino-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPaymentRoutes(app *fiber.App, paymentService *services.PaymentService) {
	// CryptoBot invoice rail
	app.Post("/cryptobot/create-invoice", paymentService.CreateInvoice)
	app.Get("/cryptobot/invoice/:id", paymentService.GetInvoice)
	app.Post("/cryptobot/update-invoice", paymentService.UpdateInvoice)
	app.Post("/addbalance/cryptobot", paymentService.AddBalanceCryptoBot)

	// TON transfer rail
	app.Post("/ton/add-transaction", paymentService.AddTonTransaction)
	app.Get("/ton/check-status/:txHash", paymentService.CheckTonStatus)
}
