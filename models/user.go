package models

import (
	"time"
)

// User is the account record for one Telegram player.
// Identity is the external TelegramID; the uuid primary key is internal.
// Balance is never written directly by handlers: every change goes through
// the balance service so the non-negativity guard lives in one place.
type User struct {
	ID         string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TelegramID int64   `gorm:"uniqueIndex;not null" json:"telegramId"`
	FirstName  string  `gorm:"not null" json:"firstName"`
	LastName   string  `gorm:"default:''" json:"lastName"`
	Username   *string `gorm:"uniqueIndex" json:"username,omitempty"`
	Phone      *string `gorm:"uniqueIndex" json:"phone,omitempty"`
	Avatar     string  `gorm:"default:'default-avatar-url.jpg'" json:"avatar"`

	Balance float64 `gorm:"not null;default:0" json:"balance"`

	Language   string    `gorm:"size:8;default:'ru'" json:"language"`
	IsAdmin    bool      `gorm:"default:false" json:"isAdmin"`
	LastActive time.Time `gorm:"autoCreateTime" json:"lastActive"`

	Inventory   []InventoryItem   `gorm:"foreignKey:UserID;references:ID" json:"inventory"`
	GameHistory []GameRecord      `gorm:"foreignKey:UserID;references:ID" json:"gameHistory"`
	Redemptions []PromoRedemption `gorm:"foreignKey:UserID;references:ID" json:"enteredPromocodes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryItem holds one stack of a gift item. Count is always > 0: the
// row is deleted when the last item is removed, never kept at zero.
type InventoryItem struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_user_item" json:"-"`
	ItemID string `gorm:"not null;uniqueIndex:idx_user_item" json:"itemId"`
	Count  int    `gorm:"not null" json:"count"`
}

// GameRecord is one appended game outcome. Append-only; never updated.
type GameRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      string    `gorm:"type:uuid;not null;index" json:"-"`
	Date        time.Time `gorm:"not null" json:"date"`
	BetAmount   float64   `gorm:"not null" json:"betAmount"`
	Coefficient float64   `gorm:"not null" json:"coefficient"`
	Result      string    `gorm:"size:8;not null" json:"result"` // win | lose
}

// PromoRedemption records that a user consumed a promo code. The unique
// index on (user_id, code) is the at-most-once guard for redemption.
type PromoRedemption struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_code" json:"-"`
	Code      string    `gorm:"not null;uniqueIndex:idx_user_code" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"redeemed_at"`
}
