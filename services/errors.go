// Sentinel errors shared by the service layer. Handlers translate these to
// HTTP statuses at the boundary; nothing below the handlers knows about
// status codes.
package services

import "errors"

var (
	// ErrUserNotFound: no account for the given telegram id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientFunds: a debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference: a ledger entry for this tx hash / invoice id
	// already exists. Repeat claims are rejected, never merged.
	ErrDuplicateReference = errors.New("duplicate payment reference")
	// ErrDepositNotFound: no ledger entry for the given reference.
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrAlreadyTerminal: the entry already left pending; the caller lost
	// the confirm race or is replaying and must not credit.
	ErrAlreadyTerminal = errors.New("deposit already in terminal status")

	// ErrPromoNotFound: no active promo with that code.
	ErrPromoNotFound = errors.New("promo code not found or inactive")
	// ErrPromoExpired: promo exists but is past its expiry.
	ErrPromoExpired = errors.New("promo code expired")
	// ErrPromoAlreadyRedeemed: this account already consumed the code.
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
)
