package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gift-casino-backend/models"
	"gift-casino-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier returns a canned result per reference; unknown references
// get the fallback. Used to drive the reconciliation state machine without
// a real provider.
type stubVerifier struct {
	mu       sync.Mutex
	results  map[string]VerifyResult
	errs     map[string]error
	fallback VerifyResult
	calls    int
}

func (v *stubVerifier) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if err, ok := v.errs[reference]; ok {
		return VerifyResult{Status: VerifyPending}, err
	}
	if res, ok := v.results[reference]; ok {
		return res, nil
	}
	return v.fallback, nil
}

func newDepositService(t *testing.T, db *testutil.TestDatabase, verifier PaymentVerifier, maxAttempts int) *DepositService {
	t.Helper()
	return NewDepositService(db.DB,
		map[models.DepositProvider]PaymentVerifier{
			models.ProviderTon:       verifier,
			models.ProviderCryptoBot: verifier,
		},
		5*time.Second, maxAttempts, 50,
	)
}

func TestDepositService_RecordAttempt(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 111, 0)
	svc := newDepositService(t, testDB, &stubVerifier{}, 3)

	t.Run("creates pending entry", func(t *testing.T) {
		dep, err := svc.RecordAttempt(models.ProviderTon, "abc", 111, 3, "")
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, dep.Status)
		assert.Equal(t, "abc", dep.Reference)
		assert.Equal(t, 3.0, dep.Amount)
	})

	t.Run("duplicate reference rejected", func(t *testing.T) {
		_, err := svc.RecordAttempt(models.ProviderTon, "abc", 111, 3, "")
		assert.ErrorIs(t, err, ErrDuplicateReference)
	})

	t.Run("duplicate rejected across providers too", func(t *testing.T) {
		_, err := svc.RecordAttempt(models.ProviderCryptoBot, "abc", 111, 3, "")
		assert.ErrorIs(t, err, ErrDuplicateReference)
	})
}

func TestDepositService_ConfirmAndCredit(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 111, 0)
	svc := newDepositService(t, testDB, &stubVerifier{}, 3)

	_, err := svc.RecordAttempt(models.ProviderTon, "tx1", 111, 5, "")
	require.NoError(t, err)

	t.Run("credits exactly once", func(t *testing.T) {
		dep, err := svc.ConfirmAndCredit("tx1", 5)
		require.NoError(t, err)
		assert.Equal(t, models.DepositConfirmed, dep.Status)
		assert.Equal(t, 5.0, dep.CreditedAmount)

		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 111).First(&user).Error)
		assert.Equal(t, 5.0, user.Balance)
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		dep, err := svc.ConfirmAndCredit("tx1", 5)
		assert.ErrorIs(t, err, ErrAlreadyTerminal)
		assert.Equal(t, models.DepositConfirmed, dep.Status)

		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 111).First(&user).Error)
		assert.Equal(t, 5.0, user.Balance)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := svc.ConfirmAndCredit("missing", 5)
		assert.ErrorIs(t, err, ErrDepositNotFound)
	})
}

func TestDepositService_ConfirmAndCredit_Concurrent(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 222, 0)
	svc := newDepositService(t, testDB, &stubVerifier{}, 3)

	_, err := svc.RecordAttempt(models.ProviderCryptoBot, "inv-77", 222, 5, "")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	winners := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ConfirmAndCredit("inv-77", 5); err == nil {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	assert.Equal(t, 1, count, "exactly one caller should win the confirm")

	var user models.User
	require.NoError(t, testDB.DB.Where("telegram_id = ?", 222).First(&user).Error)
	assert.Equal(t, 5.0, user.Balance, "balance reflects exactly one credit")
}

func TestDepositService_ReconcileOne(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 333, 0)
	ctx := context.Background()

	t.Run("paid credits and confirms", func(t *testing.T) {
		verifier := &stubVerifier{results: map[string]VerifyResult{
			"paid-tx": {Status: VerifyPaid, Amount: 7},
		}}
		svc := newDepositService(t, testDB, verifier, 3)

		dep, err := svc.RecordAttempt(models.ProviderTon, "paid-tx", 333, 7, "")
		require.NoError(t, err)

		updated, err := svc.ReconcileOne(ctx, dep)
		require.NoError(t, err)
		assert.Equal(t, models.DepositConfirmed, updated.Status)

		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 333).First(&user).Error)
		assert.Equal(t, 7.0, user.Balance)
	})

	t.Run("verifier error leaves entry pending", func(t *testing.T) {
		verifier := &stubVerifier{errs: map[string]error{
			"flaky-tx": context.DeadlineExceeded,
		}}
		svc := newDepositService(t, testDB, verifier, 3)

		dep, err := svc.RecordAttempt(models.ProviderTon, "flaky-tx", 333, 2, "")
		require.NoError(t, err)

		updated, err := svc.ReconcileOne(ctx, dep)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, updated.Status)
		assert.Equal(t, 0, updated.Attempts, "errors do not consume the retry budget")
	})

	t.Run("not_found fails after retry budget", func(t *testing.T) {
		verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyNotFound}}
		svc := newDepositService(t, testDB, verifier, 2)

		dep, err := svc.RecordAttempt(models.ProviderTon, "ghost-tx", 333, 4, "")
		require.NoError(t, err)

		updated, err := svc.ReconcileOne(ctx, dep)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, updated.Status)
		assert.Equal(t, 1, updated.Attempts)

		updated, err = svc.ReconcileOne(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, models.DepositFailed, updated.Status)

		// No balance effect from a failed entry.
		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 333).First(&user).Error)
		assert.Equal(t, 7.0, user.Balance)
	})

	t.Run("not_found losing to a concurrent confirm is benign", func(t *testing.T) {
		verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyNotFound}}
		svc := newDepositService(t, testDB, verifier, 5)

		dep, err := svc.RecordAttempt(models.ProviderTon, "late-tx", 333, 2, "")
		require.NoError(t, err)

		// Another caller confirms first; the reconcile still holds a stale
		// pending copy.
		_, err = svc.ConfirmAndCredit("late-tx", 2)
		require.NoError(t, err)

		updated, err := svc.ReconcileOne(ctx, dep)
		require.NoError(t, err)
		assert.Equal(t, models.DepositConfirmed, updated.Status)
		assert.Equal(t, 0, updated.Attempts)
	})

	t.Run("provider pending is a no-op", func(t *testing.T) {
		verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyPending}}
		svc := newDepositService(t, testDB, verifier, 3)

		dep, err := svc.RecordAttempt(models.ProviderCryptoBot, "inv-active", 333, 1, "")
		require.NoError(t, err)

		updated, err := svc.ReconcileOne(ctx, dep)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, updated.Status)
		assert.Equal(t, 0, updated.Attempts)
	})
}

func TestDepositService_SweepPending(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 444, 0)
	ctx := context.Background()

	// One entry errors out, one is paid: the sweep must still confirm the
	// paid one.
	verifier := &stubVerifier{
		results: map[string]VerifyResult{
			"good-tx": {Status: VerifyPaid, Amount: 3},
		},
		errs: map[string]error{
			"bad-tx": context.DeadlineExceeded,
		},
	}
	svc := newDepositService(t, testDB, verifier, 3)

	_, err := svc.RecordAttempt(models.ProviderTon, "bad-tx", 444, 1, "")
	require.NoError(t, err)
	_, err = svc.RecordAttempt(models.ProviderTon, "good-tx", 444, 3, "")
	require.NoError(t, err)

	require.NoError(t, svc.SweepPending(ctx, models.ProviderTon))

	good, err := svc.GetByReference("good-tx")
	require.NoError(t, err)
	assert.Equal(t, models.DepositConfirmed, good.Status)

	bad, err := svc.GetByReference("bad-tx")
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, bad.Status)

	var user models.User
	require.NoError(t, testDB.DB.Where("telegram_id = ?", 444).First(&user).Error)
	assert.Equal(t, 3.0, user.Balance)

	// Sweeping again must not double-credit the confirmed entry.
	require.NoError(t, svc.SweepPending(ctx, models.ProviderTon))
	require.NoError(t, testDB.DB.Where("telegram_id = ?", 444).First(&user).Error)
	assert.Equal(t, 3.0, user.Balance)
}

// Entries created in the same instant must not slip through a batch
// boundary: the cursor pages on (created_at, id), not created_at alone.
func TestDepositService_SweepPending_SharedTimestamp(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 555, 0)
	ctx := context.Background()

	verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyPaid, Amount: 1}}
	svc := NewDepositService(testDB.DB,
		map[models.DepositProvider]PaymentVerifier{models.ProviderTon: verifier},
		5*time.Second, 3, 1,
	)

	refs := []string{"twin-a", "twin-b", "twin-c"}
	for _, ref := range refs {
		_, err := svc.RecordAttempt(models.ProviderTon, ref, 555, 1, "")
		require.NoError(t, err)
	}
	ts := time.Now().Truncate(time.Second)
	require.NoError(t, testDB.DB.Exec(`UPDATE deposits SET created_at = ?`, ts).Error)

	require.NoError(t, svc.SweepPending(ctx, models.ProviderTon))

	for _, ref := range refs {
		dep, err := svc.GetByReference(ref)
		require.NoError(t, err)
		assert.Equal(t, models.DepositConfirmed, dep.Status, ref)
	}

	var user models.User
	require.NoError(t, testDB.DB.Where("telegram_id = ?", 555).First(&user).Error)
	assert.Equal(t, 3.0, user.Balance)
}
