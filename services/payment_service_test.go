package services

import (
	"encoding/json"
	"net/http"
	"testing"

	"gift-casino-backend/models"
	"gift-casino-backend/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentTestApp(svc *PaymentService) *fiber.App {
	app := fiber.New()
	app.Post("/cryptobot/create-invoice", svc.CreateInvoice)
	app.Get("/cryptobot/invoice/:id", svc.GetInvoice)
	app.Post("/cryptobot/update-invoice", svc.UpdateInvoice)
	app.Post("/addbalance/cryptobot", svc.AddBalanceCryptoBot)
	app.Post("/ton/add-transaction", svc.AddTonTransaction)
	app.Get("/ton/check-status/:txHash", svc.CheckTonStatus)
	return app
}

func TestPaymentService_AddTonTransaction(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 901, 0)

	verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyPending}}
	deposits := newDepositService(t, testDB, verifier, 3)
	app := newPaymentTestApp(NewPaymentService(testDB.DB, deposits, nil))

	t.Run("registers a pending claim", func(t *testing.T) {
		status, out := doJSON(t, app, "POST", "/ton/add-transaction", fiber.Map{
			"txHash": "abc", "telegramId": 901, "amount": 2,
		})
		require.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, "pending", out["status"])
		assert.Equal(t, "abc", out["reference"])
	})

	t.Run("duplicate hash rejected", func(t *testing.T) {
		status, out := doJSON(t, app, "POST", "/ton/add-transaction", fiber.Map{
			"txHash": "abc", "telegramId": 901, "amount": 2,
		})
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "Transaction already registered", out["error"])

		// Still exactly one ledger entry for the hash.
		var count int64
		require.NoError(t, testDB.DB.Model(&models.Deposit{}).Where("reference = ?", "abc").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, "POST", "/ton/add-transaction", fiber.Map{
			"txHash": "def", "telegramId": 999999, "amount": 2,
		})
		assert.Equal(t, fiber.StatusNotFound, status)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, "POST", "/ton/add-transaction", fiber.Map{
			"telegramId": 901, "amount": 2,
		})
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("confirms inline when the indexer already sees the hash", func(t *testing.T) {
		verifier.mu.Lock()
		verifier.results = map[string]VerifyResult{
			"seen-tx": {Status: VerifyPaid, Amount: 4},
		}
		verifier.mu.Unlock()

		status, out := doJSON(t, app, "POST", "/ton/add-transaction", fiber.Map{
			"txHash": "seen-tx", "telegramId": 901, "amount": 4,
		})
		require.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, "confirmed", out["status"])

		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 901).First(&user).Error)
		assert.Equal(t, 4.0, user.Balance)
	})
}

func TestPaymentService_CheckTonStatus(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 902, 0)

	verifier := &stubVerifier{
		results:  map[string]VerifyResult{},
		fallback: VerifyResult{Status: VerifyPending},
	}
	deposits := newDepositService(t, testDB, verifier, 3)
	app := newPaymentTestApp(NewPaymentService(testDB.DB, deposits, nil))

	_, err := deposits.RecordAttempt(models.ProviderTon, "tx9", 902, 4, "")
	require.NoError(t, err)

	t.Run("pending while the indexer has not seen it", func(t *testing.T) {
		status, out := doJSON(t, app, "GET", "/ton/check-status/tx9", nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "pending", out["status"])
	})

	t.Run("reconciles inline once the payment lands", func(t *testing.T) {
		verifier.mu.Lock()
		verifier.results["tx9"] = VerifyResult{Status: VerifyPaid, Amount: 4}
		verifier.mu.Unlock()

		status, out := doJSON(t, app, "GET", "/ton/check-status/tx9", nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "confirmed", out["status"])
		assert.Equal(t, 4.0, out["creditedAmount"])

		var user models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 902).First(&user).Error)
		assert.Equal(t, 4.0, user.Balance)
	})

	t.Run("unknown hash", func(t *testing.T) {
		status, _ := doJSON(t, app, "GET", "/ton/check-status/nope", nil)
		assert.Equal(t, fiber.StatusNotFound, status)
	})
}

func TestPaymentService_AddBalanceCryptoBot(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 905, 0)
	testutil.CreateTestUser(t, testDB.DB, 906, 0)

	verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyPaid, Amount: 5}}
	deposits := newDepositService(t, testDB, verifier, 3)
	app := newPaymentTestApp(NewPaymentService(testDB.DB, deposits, nil))

	_, err := deposits.RecordAttempt(models.ProviderCryptoBot, "inv-1", 905, 5, "")
	require.NoError(t, err)

	t.Run("invoice owned by someone else rejected", func(t *testing.T) {
		status, out := doJSON(t, app, "POST", "/addbalance/cryptobot", fiber.Map{
			"telegramId": 906, "invoiceId": "inv-1",
		})
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "Invoice belongs to a different user", out["error"])

		// The rejected claim must not have triggered a credit.
		var owner models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 905).First(&owner).Error)
		assert.Equal(t, 0.0, owner.Balance)
	})

	t.Run("owner gets credited", func(t *testing.T) {
		status, out := doJSON(t, app, "POST", "/addbalance/cryptobot", fiber.Map{
			"telegramId": 905, "invoiceId": "inv-1",
		})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "Balance credited", out["message"])

		var owner models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 905).First(&owner).Error)
		assert.Equal(t, 5.0, owner.Balance)
	})

	t.Run("replay reports credited without double-applying", func(t *testing.T) {
		status, _ := doJSON(t, app, "POST", "/addbalance/cryptobot", fiber.Map{
			"telegramId": 905, "invoiceId": "inv-1",
		})
		require.Equal(t, fiber.StatusOK, status)

		var owner models.User
		require.NoError(t, testDB.DB.Where("telegram_id = ?", 905).First(&owner).Error)
		assert.Equal(t, 5.0, owner.Balance)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		status, _ := doJSON(t, app, "POST", "/addbalance/cryptobot", fiber.Map{
			"telegramId": 905, "invoiceId": "inv-404",
		})
		assert.Equal(t, fiber.StatusNotFound, status)
	})
}

func TestPaymentService_CreateInvoice(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	testutil.CreateTestUser(t, testDB.DB, 907, 0)

	verifier := &stubVerifier{fallback: VerifyResult{Status: VerifyPending}}
	deposits := newDepositService(t, testDB, verifier, 3)

	t.Run("opens a ledger entry keyed by the invoice id", func(t *testing.T) {
		client := newCryptoBotTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok": true,
				"result": Invoice{
					InvoiceID: 42,
					Status:    "active",
					Amount:    "12.5",
					PayURL:    "https://t.me/CryptoBot?start=inv42",
				},
			})
		})
		app := newPaymentTestApp(NewPaymentService(testDB.DB, deposits, client))

		status, out := doJSON(t, app, "POST", "/cryptobot/create-invoice", fiber.Map{
			"amount": 12.5, "telegramId": 907,
		})
		require.Equal(t, fiber.StatusCreated, status)
		assert.Equal(t, float64(42), out["invoiceId"])
		assert.Equal(t, "https://t.me/CryptoBot?start=inv42", out["payUrl"])
		assert.Equal(t, "pending", out["status"])

		status, out = doJSON(t, app, "GET", "/cryptobot/invoice/42", nil)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "42", out["reference"])
	})

	t.Run("provider failure writes nothing", func(t *testing.T) {
		client := newCryptoBotTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		})
		app := newPaymentTestApp(NewPaymentService(testDB.DB, deposits, client))

		status, _ := doJSON(t, app, "POST", "/cryptobot/create-invoice", fiber.Map{
			"amount": 3, "telegramId": 907,
		})
		assert.Equal(t, fiber.StatusInternalServerError, status)

		var count int64
		require.NoError(t, testDB.DB.Model(&models.Deposit{}).
			Where("provider = ?", models.ProviderCryptoBot).Count(&count).Error)
		assert.Equal(t, int64(1), count, "only the first invoice is on the ledger")
	})
}
