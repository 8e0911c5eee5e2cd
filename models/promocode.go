package models

import "time"

// Promo is a promotional code. Codes are stored upper-cased; Reward is
// never mutated after creation; operators create and delete, users consume.
type Promo struct {
	Code      string     `gorm:"primaryKey;size:64" json:"code"`
	Reward    float64    `gorm:"not null" json:"reward"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
