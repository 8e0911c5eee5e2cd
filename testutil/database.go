// Package testutil spins up a disposable PostgreSQL container and migrates
// the schema into it for service-level tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"gift-casino-backend/models"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDatabase is one isolated postgres instance per test.
type TestDatabase struct {
	Container *tcpostgres.PostgresContainer
	DB        *gorm.DB
	URL       string
}

// SetupTestDatabase creates a PostgreSQL test container and auto-migrates
// the full schema. The container is terminated via t.Cleanup.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	labels := map[string]string{
		"test":      "gift-casino-backend",
		"test-name": t.Name(),
	}

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("casino_test"),
		tcpostgres.WithUsername("test_user"),
		tcpostgres.WithPassword("test_password"),
		tcpostgres.BasicWaitStrategies(),
		testcontainers.WithLabels(labels),
	)
	require.NoError(t, err)

	testDB := &TestDatabase{Container: container}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate test container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.InventoryItem{},
		&models.GameRecord{},
		&models.PromoRedemption{},
		&models.Promo{},
		&models.Deposit{},
	))

	testDB.DB = db
	testDB.URL = connStr
	return testDB
}

// CreateTestUser inserts a user with the given telegram id and starting
// balance and returns it.
func CreateTestUser(t *testing.T, db *gorm.DB, telegramID int64, balance float64) *models.User {
	user := &models.User{
		TelegramID: telegramID,
		FirstName:  "Test",
		Balance:    balance,
		LastActive: time.Now(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
