package services

import (
	"gift-casino-backend/models"

	"gorm.io/gorm"
)

// Balance mutation choke-point. Deposits, purchases, promo rewards and the
// admin direct-set all go through this file; the non-negativity invariant is
// enforced here and nowhere else.
//
// Both functions take the *gorm.DB they should write through, so callers can
// pass a transaction handle and make the balance change part of a larger
// atomic step (deposit confirm, promo redemption).

// AdjustBalance applies delta to the account's balance as one conditional
// SQL update. Read-modify-write happens inside the database, so concurrent
// adjustments never lose updates. Returns the new balance, or
// ErrInsufficientFunds when the result would be negative.
func AdjustBalance(db *gorm.DB, telegramID int64, delta float64) (float64, error) {
	var newBalance float64
	res := db.Raw(`
		UPDATE users
		SET balance = balance + ?, updated_at = NOW()
		WHERE telegram_id = ? AND balance + ? >= 0
		RETURNING balance
	`, delta, telegramID, delta).Scan(&newBalance)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.User{}).Where("telegram_id = ?", telegramID).Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientFunds
	}
	return newBalance, nil
}

// SetBalance overwrites the balance outright (admin endpoint). Negative
// values are rejected before touching the row.
func SetBalance(db *gorm.DB, telegramID int64, balance float64) (float64, error) {
	if balance < 0 {
		return 0, ErrInsufficientFunds
	}
	res := db.Model(&models.User{}).Where("telegram_id = ?", telegramID).Update("balance", balance)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	return balance, nil
}
