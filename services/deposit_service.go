package services

import (
	"context"
	"errors"
	"time"

	"gift-casino-backend/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DepositService owns the deposit ledger: creating entries, advancing them
// to a terminal state and crediting balances exactly once per entry.
type DepositService struct {
	DB        *gorm.DB
	Verifiers map[models.DepositProvider]PaymentVerifier

	VerifyTimeout     time.Duration
	MaxVerifyAttempts int
	SweepBatchSize    int
}

func NewDepositService(db *gorm.DB, verifiers map[models.DepositProvider]PaymentVerifier, verifyTimeout time.Duration, maxAttempts, batchSize int) *DepositService {
	return &DepositService{
		DB:                db,
		Verifiers:         verifiers,
		VerifyTimeout:     verifyTimeout,
		MaxVerifyAttempts: maxAttempts,
		SweepBatchSize:    batchSize,
	}
}

// RecordAttempt creates a pending ledger entry for a claimed payment. The
// reference is the idempotency key: a second claim with the same reference
// is rejected with ErrDuplicateReference, never merged into the first.
func (s *DepositService) RecordAttempt(provider models.DepositProvider, reference string, telegramID int64, amount float64, payURL string) (*models.Deposit, error) {
	dep := &models.Deposit{
		ID:         uuid.NewString(),
		Provider:   provider,
		Reference:  reference,
		TelegramID: telegramID,
		Amount:     amount,
		Status:     models.DepositPending,
		PayURL:     payURL,
	}
	if err := s.DB.Create(dep).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	return dep, nil
}

// GetByReference loads one ledger entry.
func (s *DepositService) GetByReference(reference string) (*models.Deposit, error) {
	var dep models.Deposit
	if err := s.DB.Where("reference = ?", reference).First(&dep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &dep, nil
}

// ConfirmAndCredit transitions the entry pending -> confirmed and credits
// the owning account, as one database transaction.
//
// The status flip is a conditional update on status = 'pending': of any
// number of concurrent callers (sweep, client-triggered credit, forced
// reconcile) only one sees RowsAffected == 1 and proceeds to credit. Losers
// get ErrAlreadyTerminal and must treat the deposit as handled. Because flip
// and credit commit together, ledger status is the single source of truth
// for "credit applied": a crash rolls back both.
func (s *DepositService) ConfirmAndCredit(reference string, amount float64) (*models.Deposit, error) {
	var dep models.Deposit
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Deposit{}).
			Where("reference = ? AND status = ?", reference, models.DepositPending).
			Updates(map[string]interface{}{
				"status":          models.DepositConfirmed,
				"credited_amount": amount,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("reference = ?", reference).First(&dep).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDepositNotFound
				}
				return err
			}
			return ErrAlreadyTerminal
		}
		if err := tx.Where("reference = ?", reference).First(&dep).Error; err != nil {
			return err
		}
		if _, err := AdjustBalance(tx, dep.TelegramID, amount); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			return &dep, err
		}
		return nil, err
	}
	return &dep, nil
}

// MarkFailed transitions the entry pending -> failed with no balance effect.
// Same pending-only guard as ConfirmAndCredit.
func (s *DepositService) MarkFailed(reference, reason string) error {
	res := s.DB.Model(&models.Deposit{}).
		Where("reference = ? AND status = ?", reference, models.DepositPending).
		Updates(map[string]interface{}{
			"status":      models.DepositFailed,
			"fail_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.DB.Model(&models.Deposit{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrDepositNotFound
		}
		return ErrAlreadyTerminal
	}
	return nil
}

// ListPending returns one batch of pending entries for a rail, oldest
// first, keyset-paged by (created_at, id) so entries sharing a timestamp
// cannot straddle a batch boundary and be skipped. A sweep walks the whole
// set and restarts from scratch next tick.
func (s *DepositService) ListPending(provider models.DepositProvider, afterCreated time.Time, afterID string, limit int) ([]models.Deposit, error) {
	var deps []models.Deposit
	err := s.DB.
		Where("provider = ? AND status = ? AND (created_at, id) > (?, ?::uuid)",
			provider, models.DepositPending, afterCreated, afterID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&deps).Error
	return deps, err
}

// ReconcileOne runs the per-entry state machine:
//
//	pending --verify--> paid       => confirm + credit (exactly once)
//	                    not_found  => fail after MaxVerifyAttempts tries
//	                    pending/err=> stay pending, retry next sweep
//
// Returns the entry's current state. Verifier errors are not propagated as
// ledger transitions: a provider outage must never look like non-payment.
func (s *DepositService) ReconcileOne(ctx context.Context, dep *models.Deposit) (*models.Deposit, error) {
	verifier, ok := s.Verifiers[dep.Provider]
	if !ok {
		return dep, nil
	}

	vctx, cancel := context.WithTimeout(ctx, s.VerifyTimeout)
	defer cancel()

	result, err := verifier.Verify(vctx, dep.Reference)
	if err != nil {
		// Indeterminate: leave pending for the next sweep.
		log.WithError(err).WithFields(log.Fields{
			"provider":  dep.Provider,
			"reference": dep.Reference,
		}).Warn("verification failed, deposit left pending")
		return dep, nil
	}

	switch result.Status {
	case VerifyPaid:
		amount := result.Amount
		if amount <= 0 {
			amount = dep.Amount
		}
		confirmed, err := s.ConfirmAndCredit(dep.Reference, amount)
		if errors.Is(err, ErrAlreadyTerminal) {
			// Another caller won the transition; nothing left to do.
			return confirmed, nil
		}
		if err != nil {
			return dep, err
		}
		log.WithFields(log.Fields{
			"provider":  dep.Provider,
			"reference": dep.Reference,
			"amount":    amount,
		}).Info("deposit confirmed and credited")
		return confirmed, nil

	case VerifyNotFound:
		attempts, err := s.bumpAttempts(dep.Reference)
		if errors.Is(err, ErrAlreadyTerminal) {
			// A concurrent caller already moved the entry out of pending.
			return s.GetByReference(dep.Reference)
		}
		if err != nil {
			return dep, err
		}
		if attempts >= s.MaxVerifyAttempts {
			if err := s.MarkFailed(dep.Reference, "reference not found at provider"); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
				return dep, err
			}
			log.WithFields(log.Fields{
				"provider":  dep.Provider,
				"reference": dep.Reference,
				"attempts":  attempts,
			}).Info("deposit failed after retry budget exhausted")
		}
		return s.GetByReference(dep.Reference)

	default:
		// Provider says pending; nothing to do yet.
		return dep, nil
	}
}

// SweepPending reconciles every pending entry for one rail. Per-entry
// failures are logged and skipped so one bad entry cannot stall the batch.
func (s *DepositService) SweepPending(ctx context.Context, provider models.DepositProvider) error {
	cursorCreated := time.Time{}
	cursorID := "00000000-0000-0000-0000-000000000000"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.ListPending(provider, cursorCreated, cursorID, s.SweepBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for i := range batch {
			dep := &batch[i]
			if _, err := s.ReconcileOne(ctx, dep); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"provider":  provider,
					"reference": dep.Reference,
				}).Error("reconcile failed for deposit")
			}
		}
		cursorCreated = batch[len(batch)-1].CreatedAt
		cursorID = batch[len(batch)-1].ID
	}
}

// bumpAttempts increments the verify counter atomically and returns the new
// value. Only pending entries are counted; a terminal entry keeps its tally.
func (s *DepositService) bumpAttempts(reference string) (int, error) {
	var attempts int
	res := s.DB.Raw(`
		UPDATE deposits
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE reference = ? AND status = 'pending'
		RETURNING attempts
	`, reference).Scan(&attempts)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrAlreadyTerminal
	}
	return attempts, nil
}
