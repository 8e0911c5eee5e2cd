package models

import "time"

// DepositProvider identifies the payment rail a deposit came in on.
type DepositProvider string

const (
	ProviderTon       DepositProvider = "ton"
	ProviderCryptoBot DepositProvider = "cryptobot"
)

// DepositStatus is the ledger state of one payment claim.
// Transitions are strictly pending -> confirmed or pending -> failed; the
// conditional update in the deposit service is the only writer past pending.
type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
	DepositFailed    DepositStatus = "failed"
)

// Deposit is one ledger entry tracking an external payment claim.
// Reference (TON tx hash or CryptoBot invoice id) is the idempotency key:
// the unique index rejects duplicate claims about the same payment.
type Deposit struct {
	ID       string          `gorm:"primaryKey;type:uuid" json:"id"`
	Provider DepositProvider `gorm:"size:16;not null;index" json:"provider"`

	Reference  string `gorm:"size:128;not null;uniqueIndex" json:"reference"`
	TelegramID int64  `gorm:"not null;index" json:"telegramId"`

	// Amount is what the client claimed; CreditedAmount is what the
	// provider confirmed and what was actually applied to the balance.
	Amount         float64 `gorm:"not null" json:"amount"`
	CreditedAmount float64 `gorm:"default:0" json:"creditedAmount"`

	Status     DepositStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	Attempts   int           `gorm:"default:0" json:"attempts"`
	FailReason string        `gorm:"default:''" json:"failReason,omitempty"`

	// PayURL is only set for CryptoBot invoices.
	PayURL string `gorm:"default:''" json:"payUrl,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
