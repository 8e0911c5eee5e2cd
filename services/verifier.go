package services

import "context"

// VerifyStatus is the provider-side view of a payment reference.
type VerifyStatus string

const (
	// VerifyPaid means the provider confirms the payment settled.
	VerifyPaid VerifyStatus = "paid"
	// VerifyPending means not settled yet, or the provider state is unknown.
	VerifyPending VerifyStatus = "pending"
	// VerifyNotFound means the provider states the reference does not exist.
	// Distinct from pending: after a bounded number of these the ledger
	// entry is failed, since the resource will never resolve.
	VerifyNotFound VerifyStatus = "not_found"
)

// VerifyResult carries the provider status and, when paid, the settled
// amount. Amount 0 means the provider did not report one and the claimed
// amount is used instead.
type VerifyResult struct {
	Status VerifyStatus
	Amount float64
}

// PaymentVerifier queries one external payment rail for the true state of a
// reference. Implementations must return an error (not VerifyNotFound) on
// network or provider failures so the caller leaves the entry pending.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (VerifyResult, error)
}
