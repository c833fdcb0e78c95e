package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/application/payment/ledger"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/migration"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/infrastructure/repository"
	"github.com/micropaywall/paygate/internal/infrastructure/token"
	"github.com/micropaywall/paygate/internal/shared/db"
	"github.com/micropaywall/paygate/internal/shared/logger"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
)

const (
	polygonPayout = "0x00000000000000000000000000000000000000aa"
	polygonPayer  = "0x00000000000000000000000000000000000000bb"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	solana   *fakeVerifier
	polygon  *fakeVerifier
	recorder *countingRecorder
	tokens   *repository.AccessTokenRepository
	intents  *repository.PaymentIntentRepository
	payments *repository.PaymentRepository
	resolver fakeResolver

	create    *CreatePaymentRequestUseCase
	verify    *VerifyPaymentUseCase
	status    *GetPaymentStatusUseCase
	expire    *ExpireIntentsUseCase
	reconcile *ReconcilePaymentsUseCase
	library   *ListPayerPaymentsUseCase
	redeem    *tokenusecases.RedeemAccessTokenUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(migration.AutoMigrateModels()...))
	seedCatalog(t, gdb)

	f := &fixture{
		db:       gdb,
		clock:    &testClock{now: testNow},
		solana:   newFakeVerifier(vo.ChainSolana, vo.ChainKindSolana),
		polygon:  newFakeVerifier(vo.ChainPolygon, vo.ChainKindEVM),
		recorder: newCountingRecorder(),
		tokens:   repository.NewAccessTokenRepository(gdb),
		intents:  repository.NewPaymentIntentRepository(gdb),
		payments: repository.NewPaymentRepository(gdb),
	}
	log := logger.NewNopLogger()
	lookup := repository.NewCatalogLookup(gdb)
	attempts := repository.NewVerificationAttemptRepository(gdb)
	resolver := fakeResolver{vo.ChainSolana: f.solana, vo.ChainPolygon: f.polygon}
	f.resolver = resolver
	chains := ChainDirectory{
		vo.ChainSolana:  {Kind: vo.ChainKindSolana, Currency: "SOL", Decimals: 9},
		vo.ChainPolygon: {Kind: vo.ChainKindEVM, Currency: "POL", Decimals: 18, ChainID: 137},
	}

	key, err := token.ParseKeyMaterial(token.AlgorithmHS256, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	signer, err := token.NewJWTSigner(key, "paygate", f.clock.Now)
	require.NoError(t, err)
	issuer := tokenusecases.NewIssueAccessTokenUseCase(f.tokens, signer, tokenusecases.TokenPolicy{
		DefaultTTL:   24 * time.Hour,
		PermanentTTL: 100 * 365 * 24 * time.Hour,
	}, f.clock.Now, log)
	l := ledger.NewLedger(f.intents, f.payments, db.NewTransactionManager(gdb), f.clock.Now, log)

	f.create = NewCreatePaymentRequestUseCase(f.intents, lookup, resolver, chains,
		IntentPolicy{DefaultTTL: 15 * time.Minute, MaxTTL: 24 * time.Hour}, f.clock.Now, log)
	f.verify = NewVerifyPaymentUseCase(f.intents, f.payments, attempts, lookup, resolver, l, issuer, f.recorder, f.clock.Now, log)
	f.status = NewGetPaymentStatusUseCase(f.payments, attempts)
	f.expire = NewExpireIntentsUseCase(f.intents, 2, f.recorder, f.clock.Now, log)
	f.reconcile = f.newReconcile(ReconcilePolicy{Lookback: time.Hour, BatchSize: 50, MissThreshold: 2})
	f.library = NewListPayerPaymentsUseCase(f.payments)
	f.redeem = tokenusecases.NewRedeemAccessTokenUseCase(f.tokens, lookup, signer, f.clock.Now, log)
	return f
}

func (f *fixture) newReconcile(policy ReconcilePolicy) *ReconcilePaymentsUseCase {
	return NewReconcilePaymentsUseCase(f.payments, f.tokens, f.resolver, policy, f.recorder, f.clock.Now, logger.NewNopLogger())
}

func seedCatalog(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	singleUse := true
	require.NoError(t, gdb.Create(&models.MerchantModel{
		ID:   "m1",
		Name: "Merchant One",
		PayoutAddresses: datatypes.NewJSONType(map[string]string{
			"solana":  "M1payout",
			"polygon": "0x" + strings.ToUpper(polygonPayout[2:]),
		}),
		Active: true,
	}).Error)
	contents := []models.ContentModel{
		{ID: "c1", MerchantID: "m1", Title: "Premium article", Chain: "solana", Price: "1000000", Currency: "SOL", SingleUse: &singleUse, Active: true},
		{ID: "c2", MerchantID: "m1", Title: "Second article", Chain: "solana", Price: "1000000", Currency: "SOL", Active: true},
		{ID: "free", MerchantID: "m1", Title: "Free", Chain: "solana", Price: "0", Currency: "SOL", Active: true},
		{ID: "video", MerchantID: "m1", Title: "Video", Chain: "polygon", Price: "1000000000000000", Currency: "POL", AccessDurationSeconds: 3600, Active: true},
		{ID: "clip", MerchantID: "m1", Title: "Clip", Chain: "polygon", Price: "1000000000000000", Currency: "POL", SingleUse: &singleUse, Active: true},
		{ID: "btc", MerchantID: "m1", Title: "Elsewhere", Chain: "bitcoin", Price: "1000", Currency: "BTC", Active: true},
	}
	for i := range contents {
		require.NoError(t, gdb.Create(&contents[i]).Error)
	}
}

// createIntent opens an intent for contentID whose reference will be ref.
func (f *fixture) createIntent(t *testing.T, v *fakeVerifier, contentID, ref string, duration time.Duration) *CreatePaymentRequestResult {
	t.Helper()
	v.mu.Lock()
	v.references = append(v.references, ref)
	v.mu.Unlock()
	res, err := f.create.Execute(context.Background(), CreatePaymentRequestCommand{
		MerchantID: "m1",
		ContentID:  contentID,
		Duration:   duration,
	})
	require.NoError(t, err)
	return res
}

func solanaTx(signature string, amount uint64, refs ...string) *blockchain.Transaction {
	return &blockchain.Transaction{
		Signature:  signature,
		Succeeded:  true,
		Final:      true,
		Slot:       4242,
		Payer:      "B1buyer",
		Transfers:  []blockchain.Transfer{{From: "B1buyer", To: "M1payout", Amount: amount}},
		References: refs,
	}
}

func (f *fixture) countPayments(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("payments").Count(&n).Error)
	return n
}
