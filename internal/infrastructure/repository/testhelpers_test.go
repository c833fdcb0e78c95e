package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/migration"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A named shared-cache database keeps one schema across the pool's connections.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(migration.AutoMigrateModels()...))
	return db
}

func newTestIntent(t *testing.T, reference string) *payment.PaymentIntent {
	t.Helper()
	intent, err := payment.NewPaymentIntent(payment.NewIntentParams{
		MerchantID:        "m1",
		ContentID:         "c1",
		Chain:             vo.ChainSolana,
		ExpectedRecipient: "M1payout",
		Amount:            1_000_000,
		Currency:          "SOL",
		Reference:         reference,
		TTL:               10 * time.Minute,
		Now:               testNow,
	})
	require.NoError(t, err)
	return intent
}

func newTestPayment(t *testing.T, intent *payment.PaymentIntent, signature, payer string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(payment.NewPaymentParams{
		Intent:      intent,
		TxSignature: signature,
		Payer:       payer,
		Recipient:   intent.ExpectedRecipient(),
		Amount:      intent.Amount(),
		Slot:        7,
		ConfirmedAt: testNow,
	})
	require.NoError(t, err)
	return p
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	singleUse := true
	require.NoError(t, db.Create(&models.MerchantModel{
		ID:              "m1",
		Name:            "Merchant One",
		PayoutAddresses: datatypes.NewJSONType(map[string]string{"solana": "M1payout"}),
		Active:          true,
	}).Error)
	require.NoError(t, db.Create(&models.ContentModel{
		ID:                    "c1",
		MerchantID:            "m1",
		Title:                 "Premium article",
		Chain:                 "solana",
		Price:                 "1000000",
		Currency:              "SOL",
		AccessDurationSeconds: 3600,
		SingleUse:             &singleUse,
		Active:                true,
	}).Error)
}
