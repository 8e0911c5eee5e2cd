package services

import (
	"errors"
	"strconv"

	"gift-casino-backend/models"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentService exposes the deposit rails over REST. All ledger state
// changes go through DepositService; this layer only validates input and
// translates errors.
type PaymentService struct {
	DB        *gorm.DB
	Deposits  *DepositService
	CryptoBot *CryptoBotClient
}

func NewPaymentService(db *gorm.DB, deposits *DepositService, cryptoBot *CryptoBotClient) *PaymentService {
	return &PaymentService{DB: db, Deposits: deposits, CryptoBot: cryptoBot}
}

func (s *PaymentService) userExists(telegramID int64) (bool, error) {
	var count int64
	err := s.DB.Model(&models.User{}).Where("telegram_id = ?", telegramID).Count(&count).Error
	return count > 0, err
}

// CreateInvoice asks CryptoBot for a fresh invoice and opens a pending
// ledger entry keyed by the invoice id. If the provider call fails nothing
// is written, since there is no reference to track yet.
func (s *PaymentService) CreateInvoice(c *fiber.Ctx) error {
	var req struct {
		Amount     float64 `json:"amount"`
		TelegramID int64   `json:"telegramId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount <= 0 || req.TelegramID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount > 0 and telegramId are required"})
	}

	exists, err := s.userExists(req.TelegramID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	invoice, err := s.CryptoBot.CreateInvoice(c.Context(), req.Amount)
	if err != nil {
		log.WithError(err).Error("CryptoBot createInvoice failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment provider unavailable"})
	}

	reference := strconv.FormatInt(invoice.InvoiceID, 10)
	dep, err := s.Deposits.RecordAttempt(models.ProviderCryptoBot, reference, req.TelegramID, req.Amount, invoice.PayURL)
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invoice already registered"})
		}
		log.WithError(err).Error("DB error recording invoice")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record invoice"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invoiceId": invoice.InvoiceID,
		"payUrl":    invoice.PayURL,
		"status":    dep.Status,
	})
}

// GetInvoice returns the ledger view of one invoice.
func (s *PaymentService) GetInvoice(c *fiber.Ctx) error {
	reference := c.Params("id")

	dep, err := s.Deposits.GetByReference(reference)
	if err != nil {
		if errors.Is(err, ErrDepositNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invoice not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(dep)
}

// UpdateInvoice force-reconciles one invoice outside the periodic sweep.
func (s *PaymentService) UpdateInvoice(c *fiber.Ctx) error {
	var req struct {
		InvoiceID string `json:"invoiceId"`
	}
	if err := c.BodyParser(&req); err != nil || req.InvoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invoiceId is required"})
	}

	dep, err := s.Deposits.GetByReference(req.InvoiceID)
	if err != nil {
		if errors.Is(err, ErrDepositNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invoice not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	updated, err := s.Deposits.ReconcileOne(c.Context(), dep)
	if err != nil {
		log.WithError(err).Error("Forced invoice reconcile failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reconcile invoice"})
	}
	return c.JSON(updated)
}

// AddBalanceCryptoBot is the client-triggered credit attempt: verify the
// invoice now and credit if paid. Safe to call any number of times: the
// conditional confirm makes the credit apply at most once.
func (s *PaymentService) AddBalanceCryptoBot(c *fiber.Ctx) error {
	var req struct {
		TelegramID int64  `json:"telegramId"`
		InvoiceID  string `json:"invoiceId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TelegramID <= 0 || req.InvoiceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "telegramId and invoiceId are required"})
	}

	dep, err := s.Deposits.GetByReference(req.InvoiceID)
	if err != nil {
		if errors.Is(err, ErrDepositNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Invoice not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if dep.TelegramID != req.TelegramID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invoice belongs to a different user"})
	}

	updated, err := s.Deposits.ReconcileOne(c.Context(), dep)
	if err != nil {
		log.WithError(err).Error("Client-triggered credit failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process invoice"})
	}

	switch updated.Status {
	case models.DepositConfirmed:
		return c.JSON(fiber.Map{"message": "Balance credited", "status": updated.Status, "amount": updated.CreditedAmount})
	case models.DepositFailed:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invoice failed: " + updated.FailReason})
	default:
		return c.JSON(fiber.Map{"message": "Invoice not paid yet", "status": updated.Status})
	}
}

// AddTonTransaction registers a claimed TON deposit by transaction hash.
// The hash is the idempotency key; a repeat claim is rejected outright.
// A first verification attempt runs inline; if the indexer has not seen the
// hash yet the sweep picks it up later.
func (s *PaymentService) AddTonTransaction(c *fiber.Ctx) error {
	var req struct {
		TxHash     string  `json:"txHash"`
		TelegramID int64   `json:"telegramId"`
		Amount     float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TxHash == "" || req.TelegramID <= 0 || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "txHash, telegramId and amount > 0 are required"})
	}

	exists, err := s.userExists(req.TelegramID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	dep, err := s.Deposits.RecordAttempt(models.ProviderTon, req.TxHash, req.TelegramID, req.Amount, "")
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Transaction already registered"})
		}
		log.WithError(err).Error("DB error recording TON transaction")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record transaction"})
	}

	// Best effort: resolve synchronously when the indexer already sees it.
	if updated, err := s.Deposits.ReconcileOne(c.Context(), dep); err == nil {
		dep = updated
	}

	return c.Status(fiber.StatusCreated).JSON(dep)
}

// CheckTonStatus polls one claimed TON deposit. Pending entries get an
// inline reconcile so the mini-app sees confirmation as soon as possible.
func (s *PaymentService) CheckTonStatus(c *fiber.Ctx) error {
	txHash := c.Params("txHash")

	dep, err := s.Deposits.GetByReference(txHash)
	if err != nil {
		if errors.Is(err, ErrDepositNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if dep.Status == models.DepositPending {
		if updated, err := s.Deposits.ReconcileOne(c.Context(), dep); err == nil {
			dep = updated
		}
	}

	return c.JSON(fiber.Map{
		"txHash":         dep.Reference,
		"status":         dep.Status,
		"amount":         dep.Amount,
		"creditedAmount": dep.CreditedAmount,
		"attempts":       dep.Attempts,
	})
}
