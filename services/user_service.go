package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"gift-casino-backend/models"
	"gift-casino-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Optional leading +, 3-digit code with optional parens, then 3 and 4-6
// digits with -, space or dot separators.
var phoneRe = regexp.MustCompile(`^\+?\(?[0-9]{3}\)?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,6}$`)

func parseTelegramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("telegramId")
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid telegram id")
	}
	return int64(id), nil
}

func (s *UserService) findByTelegramID(telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser registers a new account for a Telegram identity.
func (s *UserService) CreateUser(c *fiber.Ctx) error {
	var req struct {
		TelegramID int64   `json:"telegramId"`
		FirstName  string  `json:"firstName"`
		LastName   string  `json:"lastName"`
		Username   *string `json:"username"`
		Phone      *string `json:"phone"`
		Avatar     string  `json:"avatar"`
		Language   string  `json:"language"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TelegramID <= 0 || req.FirstName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "telegramId and firstName are required"})
	}
	if req.Language != "" && req.Language != "ru" && req.Language != "en" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "language must be ru or en"})
	}
	if req.Phone != nil && !phoneRe.MatchString(*req.Phone) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone format is invalid"})
	}

	user := &models.User{
		TelegramID: req.TelegramID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Username:   req.Username,
		Phone:      req.Phone,
		LastActive: time.Now(),
	}
	if req.Avatar != "" {
		user.Avatar = req.Avatar
	}
	if req.Language != "" {
		user.Language = req.Language
	}

	if err := s.DB.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User with this telegramId, username or phone already exists"})
		}
		log.WithError(err).Error("DB error creating user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// ListUsers returns all accounts, newest first.
func (s *UserService) ListUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := s.DB.
		Preload("Inventory").
		Preload("GameHistory").
		Preload("Redemptions").
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		log.WithError(err).Error("DB error listing users")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch users"})
	}
	return c.JSON(users)
}

// UpdateUser applies a partial update to profile fields. Balance and
// inventory have their own endpoints and are not writable here.
func (s *UserService) UpdateUser(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		FirstName  *string    `json:"firstName"`
		LastName   *string    `json:"lastName"`
		Username   *string    `json:"username"`
		Phone      *string    `json:"phone"`
		Avatar     *string    `json:"avatar"`
		Language   *string    `json:"language"`
		IsAdmin    *bool      `json:"isAdmin"`
		LastActive *time.Time `json:"lastActive"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.FirstName != nil {
		if *req.FirstName == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "firstName cannot be empty"})
		}
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Username != nil {
		user.Username = req.Username
	}
	if req.Phone != nil {
		if !phoneRe.MatchString(*req.Phone) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone format is invalid"})
		}
		user.Phone = req.Phone
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	if req.Language != nil {
		if *req.Language != "ru" && *req.Language != "en" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "language must be ru or en"})
		}
		user.Language = *req.Language
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.LastActive != nil {
		user.LastActive = *req.LastActive
	}

	if err := s.DB.Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Username or phone already taken"})
		}
		log.WithError(err).Error("DB error updating user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update user"})
	}
	return c.JSON(user)
}

// SetUserBalance overwrites the balance (admin/direct-set endpoint).
func (s *UserService) SetUserBalance(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		Balance *float64 `json:"balance"`
	}
	if err := c.BodyParser(&req); err != nil || req.Balance == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "balance must be a number"})
	}

	newBalance, err := SetBalance(s.DB, telegramID, *req.Balance)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		case errors.Is(err, ErrInsufficientFunds):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Balance cannot be negative"})
		default:
			log.WithError(err).Error("DB error setting balance")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update balance"})
		}
	}
	return c.JSON(fiber.Map{"message": "Balance updated", "balance": newBalance})
}

// GetInventory returns the user's item stacks.
func (s *UserService) GetInventory(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var items []models.InventoryItem
	if err := s.DB.Where("user_id = ?", user.ID).Find(&items).Error; err != nil {
		log.WithError(err).Error("DB error fetching inventory")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch inventory"})
	}
	return c.JSON(items)
}

// AddInventory adds items to a stack. For purchases (isReturn false) the
// price is charged through the balance mutator in the same transaction, so
// an insufficient balance rolls back the stack change too.
func (s *UserService) AddInventory(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		ItemID   string   `json:"itemId"`
		Count    int      `json:"count"`
		Price    *float64 `json:"price"`
		IsReturn bool     `json:"isReturn"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ItemID == "" || req.Count <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "itemId and count > 0 are required"})
	}
	if !req.IsReturn && (req.Price == nil || *req.Price < 0) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price is required and must be non-negative for a purchase"})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var newBalance float64
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if !req.IsReturn {
			totalCost := *req.Price * float64(req.Count)
			balance, err := AdjustBalance(tx, telegramID, -totalCost)
			if err != nil {
				return err
			}
			newBalance = balance
		} else {
			// Returns do not charge; report the balance as of this tx,
			// not the snapshot loaded before it.
			var current models.User
			if err := tx.Where("telegram_id = ?", telegramID).First(&current).Error; err != nil {
				return err
			}
			newBalance = current.Balance
		}

		item := models.InventoryItem{
			UserID: user.ID,
			ItemID: req.ItemID,
			Count:  req.Count,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count": gorm.Expr("inventory_items.count + EXCLUDED.count"),
			}),
		}).Create(&item).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrInsufficientFunds) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Insufficient funds"})
		}
		log.WithError(txErr).Error("DB error updating inventory")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update inventory"})
	}

	var items []models.InventoryItem
	if err := s.DB.Where("user_id = ?", user.ID).Find(&items).Error; err != nil {
		log.WithError(err).Error("DB error fetching inventory")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch inventory"})
	}
	return c.JSON(fiber.Map{
		"message":    "Inventory updated",
		"inventory":  items,
		"newBalance": newBalance,
	})
}

// RemoveInventory removes items from a stack. Removing the last item
// deletes the row; a count of zero is never persisted.
func (s *UserService) RemoveInventory(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		ItemID        string `json:"itemId"`
		CountToRemove *int   `json:"countToRemove"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "itemId is required"})
	}
	countToRemove := 1
	if req.CountToRemove != nil {
		countToRemove = *req.CountToRemove
	}
	if countToRemove <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "countToRemove must be a positive number"})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		// Conditional decrement: fails when the stack is missing or short.
		res := tx.Model(&models.InventoryItem{}).
			Where("user_id = ? AND item_id = ? AND count >= ?", user.ID, req.ItemID, countToRemove).
			Update("count", gorm.Expr("count - ?", countToRemove))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds
		}
		return tx.Where("user_id = ? AND item_id = ? AND count = 0", user.ID, req.ItemID).
			Delete(&models.InventoryItem{}).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrInsufficientFunds) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Item not in inventory or not enough of it"})
		}
		log.WithError(txErr).Error("DB error removing inventory item")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to remove item"})
	}

	var items []models.InventoryItem
	if err := s.DB.Where("user_id = ?", user.ID).Find(&items).Error; err != nil {
		log.WithError(err).Error("DB error fetching inventory")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch inventory"})
	}
	return c.JSON(fiber.Map{
		"message":   "Item removed from inventory",
		"inventory": items,
	})
}

// AddGameRecord appends one game outcome to the user's history.
func (s *UserService) AddGameRecord(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		Date        *time.Time `json:"date"`
		BetAmount   *float64   `json:"betAmount"`
		Coefficient *float64   `json:"coefficient"`
		Result      string     `json:"result"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.BetAmount == nil || *req.BetAmount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "betAmount is required and must be non-negative"})
	}
	if req.Coefficient == nil || *req.Coefficient < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coefficient is required and must be >= 1"})
	}
	if req.Result != "win" && req.Result != "lose" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "result must be win or lose"})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	record := models.GameRecord{
		UserID:      user.ID,
		Date:        time.Now(),
		BetAmount:   *req.BetAmount,
		Coefficient: *req.Coefficient,
		Result:      req.Result,
	}
	if req.Date != nil {
		record.Date = *req.Date
	}
	if err := s.DB.Create(&record).Error; err != nil {
		log.WithError(err).Error("DB error appending game record")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to append game record"})
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// UploadAvatar stores a new avatar in R2 and saves its public URL.
func (s *UserService) UploadAvatar(c *fiber.Ctx) error {
	telegramID, err := parseTelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	user, err := s.findByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	file, err := c.FormFile("avatar")
	if err != nil || file.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "avatar file is required"})
	}

	key := fmt.Sprintf("avatars/%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	avatarURL, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.WithError(err).Error("Failed to upload avatar to R2")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload avatar"})
	}

	if err := s.DB.Model(user).Update("avatar", avatarURL).Error; err != nil {
		log.WithError(err).Error("DB error saving avatar URL")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save avatar"})
	}
	return c.JSON(fiber.Map{"message": "Avatar updated", "avatar": avatarURL})
}
