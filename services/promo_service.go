package services

import (
	"errors"
	"strings"
	"time"

	"gift-casino-backend/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PromoService struct {
	DB *gorm.DB
}

func NewPromoService(db *gorm.DB) *PromoService {
	return &PromoService{DB: db}
}

// CreatePromo registers a new promo code (operator endpoint). Codes are
// normalized to upper case on the way in.
func (s *PromoService) CreatePromo(c *fiber.Ctx) error {
	var req struct {
		Code      string     `json:"code"`
		Reward    *float64   `json:"reward"`
		IsActive  *bool      `json:"isActive"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Code == "" || req.Reward == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code and reward are required"})
	}
	if *req.Reward <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reward must be positive"})
	}

	promo := &models.Promo{
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Reward:    *req.Reward,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}

	if err := s.DB.Create(promo).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Promo code already exists"})
		}
		log.WithError(err).Error("DB error creating promo")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create promo code"})
	}
	return c.Status(fiber.StatusCreated).JSON(promo)
}

// ListPromos returns all promo codes, newest first.
func (s *PromoService) ListPromos(c *fiber.Ctx) error {
	var promos []models.Promo
	if err := s.DB.Order("created_at DESC").Find(&promos).Error; err != nil {
		log.WithError(err).Error("DB error listing promos")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch promo codes"})
	}
	return c.JSON(promos)
}

// DeletePromo removes a promo code (operator endpoint).
func (s *PromoService) DeletePromo(c *fiber.Ctx) error {
	code := strings.ToUpper(strings.TrimSpace(c.Params("code")))

	res := s.DB.Delete(&models.Promo{}, "code = ?", code)
	if res.Error != nil {
		log.WithError(res.Error).Error("DB error deleting promo")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete promo code"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Promo code not found"})
	}
	return c.JSON(fiber.Map{"message": "Promo code \"" + code + "\" deleted"})
}

// Redeem credits the promo reward to the account and records the code in
// the redeemed set, both inside one transaction: the unique index on
// (user_id, code) rejects a replay, and a failed promo check or credit
// rolls the redemption record back.
func (s *PromoService) Redeem(telegramID int64, code string) (float64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var user models.User
	if err := s.DB.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	var newBalance float64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		redemption := models.PromoRedemption{UserID: user.ID, Code: code}
		if err := tx.Create(&redemption).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPromoAlreadyRedeemed
			}
			return err
		}

		var promo models.Promo
		if err := tx.Where("code = ? AND is_active = ?", code, true).First(&promo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPromoNotFound
			}
			return err
		}
		if promo.ExpiresAt != nil && promo.ExpiresAt.Before(time.Now()) {
			return ErrPromoExpired
		}

		balance, err := AdjustBalance(tx, telegramID, promo.Reward)
		if err != nil {
			return err
		}
		newBalance = balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ActivatePromo is the redemption endpoint.
func (s *PromoService) ActivatePromo(c *fiber.Ctx) error {
	var req struct {
		TelegramID int64  `json:"telegramId"`
		Code       string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TelegramID <= 0 || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "telegramId and code are required"})
	}

	newBalance, err := s.Redeem(req.TelegramID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		case errors.Is(err, ErrPromoAlreadyRedeemed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Promo code already redeemed"})
		case errors.Is(err, ErrPromoNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Promo code not found or inactive"})
		case errors.Is(err, ErrPromoExpired):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Promo code expired"})
		default:
			log.WithError(err).Error("Promo redemption failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to redeem promo code"})
		}
	}

	return c.JSON(fiber.Map{
		"message": "Promo code activated",
		"balance": newBalance,
	})
}

// DeactivateExpired flips is_active off for every promo past its expiry.
func (s *PromoService) DeactivateExpired() (int64, error) {
	res := s.DB.Model(&models.Promo{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, time.Now()).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// StartExpiryScheduler deactivates promos past their expiry once a minute,
// so the activate path and the listing stop offering them.
func (s *PromoService) StartExpiryScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			count, err := s.DeactivateExpired()
			if err != nil {
				log.WithError(err).Error("[Scheduler] Failed to deactivate expired promos")
				return
			}
			if count > 0 {
				log.WithField("count", count).Info("[Scheduler] Deactivated expired promos")
			}
		}),
	)
}
