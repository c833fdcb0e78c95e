package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/shared/errors"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
)

func verifyCmd(signature, contentID string) VerifyPaymentCommand {
	return VerifyPaymentCommand{TxSignature: signature, MerchantID: "m1", ContentID: contentID}
}

func TestVerifyPayment_PayRedeemReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.createIntent(t, f.solana, "c1", "r1", 600*time.Second)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))
	f.clock.Set(testNow.Add(time.Minute))

	first, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.Duplicate)
	assert.Equal(t, intent.IntentID, first.IntentID)
	require.NotNil(t, first.AccessToken)

	granted, err := f.redeem.Execute(ctx, tokenusecases.RedeemAccessTokenCommand{Token: first.AccessToken.Token()})
	require.NoError(t, err)
	assert.True(t, granted.Granted)
	assert.Equal(t, "c1", granted.ContentID)
	assert.Equal(t, first.PaymentID, granted.PaymentID)

	_, err = f.redeem.Execute(ctx, tokenusecases.RedeemAccessTokenCommand{Token: first.AccessToken.Token()})
	assert.ErrorIs(t, err, errors.ErrAlreadyRedeemed)

	again, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.PaymentID, again.PaymentID)
	assert.Equal(t, first.AccessToken.Token(), again.AccessToken.Token())
	assert.Equal(t, int64(1), f.countPayments(t))

	stored, err := f.intents.GetByID(ctx, intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, vo.IntentStatusConfirmed, stored.Status())

	status, err := f.status.Execute(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementConfirmed, status.Status)
	assert.Equal(t, first.PaymentID, status.PaymentID)

	assert.Equal(t, 1, f.recorder.count(metrics.VerificationOutcome, outcomeConfirmed))
	assert.Equal(t, 1, f.recorder.count(metrics.VerificationOutcome, outcomeDuplicate))
}

func TestVerifyPayment_ConcurrentSubmissionsCommitOnce(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, f.solana, "c1", "r1", 0)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))

	const callers = 8
	results := make([]*VerifyPaymentResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.verify.Execute(context.Background(), verifyCmd("tx1", "c1"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PaymentID, results[i].PaymentID)
		assert.Equal(t, results[0].AccessToken.Token(), results[i].AccessToken.Token())
	}
	assert.Equal(t, int64(1), f.countPayments(t))
}

func TestVerifyPayment_ExplicitIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.createIntent(t, f.solana, "c1", "r1", 0)
	other := f.createIntent(t, f.solana, "c2", "r2", 0)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))

	t.Run("intent of other content", func(t *testing.T) {
		cmd := verifyCmd("tx1", "c1")
		cmd.IntentID = other.IntentID
		_, err := f.verify.Execute(ctx, cmd)
		assert.ErrorIs(t, err, errors.ErrIntentNotFound)
	})

	t.Run("reference does not match intent", func(t *testing.T) {
		cmd := verifyCmd("tx1", "c2")
		cmd.IntentID = other.IntentID
		_, err := f.verify.Execute(ctx, cmd)
		assert.ErrorIs(t, err, errors.ErrReferenceMismatch)
	})

	t.Run("matching intent", func(t *testing.T) {
		cmd := verifyCmd("tx1", "c1")
		cmd.IntentID = intent.IntentID
		res, err := f.verify.Execute(ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, intent.IntentID, res.IntentID)
	})
}

func TestVerifyPayment_ExplicitIntentUsesItsOwnChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intent := f.createIntent(t, f.solana, "c1", "r1", 0)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))

	// the merchant moves the content to polygon while the quote is open
	require.NoError(t, f.db.Model(&models.ContentModel{}).Where("id = ?", "c1").Update("chain", "polygon").Error)

	cmd := verifyCmd("tx1", "c1")
	cmd.IntentID = intent.IntentID
	res, err := f.verify.Execute(ctx, cmd)

	require.NoError(t, err)
	assert.Equal(t, intent.IntentID, res.IntentID)
	assert.Equal(t, []string{"tx1"}, f.solana.takeFetched())
	assert.Empty(t, f.polygon.takeFetched())

	stored, err := f.payments.GetBySignature(ctx, "tx1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, vo.ChainSolana, stored.Chain())
}

func TestVerifyPayment_ExpiryBoundary(t *testing.T) {
	t.Run("exactly at expiry is accepted", func(t *testing.T) {
		f := newFixture(t)
		intent := f.createIntent(t, f.solana, "c1", "r1", 10*time.Minute)
		f.solana.put(solanaTx("tx1", 1_000_000, "r1"))
		f.clock.Set(intent.ExpiresAt)

		res, err := f.verify.Execute(context.Background(), verifyCmd("tx1", "c1"))
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("after expiry is rejected and recorded", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		intent := f.createIntent(t, f.solana, "c1", "r1", 10*time.Minute)
		f.solana.put(solanaTx("tx1", 1_000_000, "r1"))
		f.clock.Set(intent.ExpiresAt.Add(time.Second))

		_, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
		assert.ErrorIs(t, err, errors.ErrIntentExpired)
		assert.Equal(t, int64(0), f.countPayments(t))

		status, err := f.status.Execute(ctx, "tx1")
		require.NoError(t, err)
		assert.Equal(t, vo.SettlementRejected, status.Status)
		assert.Equal(t, string(errors.ReasonIntentExpired), status.Reason)
		assert.Equal(t, intent.IntentID, status.IntentID)
	})
}

func TestVerifyPayment_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		contentID  string
		prepare    func(f *fixture)
		want       error
		wantStatus vo.SettlementStatus
	}{
		{
			name:       "underpayment",
			prepare:    func(f *fixture) { f.solana.put(solanaTx("tx1", 500_000, "r1")) },
			want:       errors.ErrAmountMismatch,
			wantStatus: vo.SettlementRejected,
		},
		{
			name: "not final yet",
			prepare: func(f *fixture) {
				tx := solanaTx("tx1", 1_000_000, "r1")
				tx.Final = false
				f.solana.put(tx)
			},
			want:       errors.ErrPendingConfirmation,
			wantStatus: vo.SettlementPending,
		},
		{
			name:       "not visible yet",
			prepare:    func(*fixture) {},
			want:       errors.ErrTransactionNotFound,
			wantStatus: vo.SettlementPending,
		},
		{
			name:       "rpc unavailable",
			prepare:    func(f *fixture) { f.solana.fetchErr["tx1"] = errors.ErrRPCUnavailable.Wrapf("all endpoints down") },
			want:       errors.ErrRPCUnavailable,
			wantStatus: vo.SettlementPending,
		},
		{
			name:       "no matching reference",
			prepare:    func(f *fixture) { f.solana.put(solanaTx("tx1", 1_000_000, "r-unknown")) },
			want:       errors.ErrReferenceMismatch,
			wantStatus: vo.SettlementRejected,
		},
		{
			name: "failed on chain",
			prepare: func(f *fixture) {
				tx := solanaTx("tx1", 1_000_000, "r1")
				tx.Succeeded = false
				f.solana.put(tx)
			},
			want:       errors.ErrTransactionFailed,
			wantStatus: vo.SettlementRejected,
		},
		{
			name: "self payment",
			prepare: func(f *fixture) {
				tx := solanaTx("tx1", 1_000_000, "r1")
				tx.Transfers[0].From = "M1payout"
				f.solana.put(tx)
			},
			want:       errors.ErrPayerInvalid,
			wantStatus: vo.SettlementRejected,
		},
		{
			name: "chain without references",
			prepare: func(f *fixture) {
				f.solana.supportsReference = false
				f.solana.put(solanaTx("tx1", 1_000_000))
			},
			want:       errors.ErrReferenceUnverifiable,
			wantStatus: vo.SettlementRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			intent := f.createIntent(t, f.solana, "c1", "r1", 0)
			tt.prepare(f)

			res, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))

			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(0), f.countPayments(t))

			status, err := f.status.Execute(ctx, "tx1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, string(errors.ReasonOf(tt.want)), status.Reason)

			stored, err := f.intents.GetByID(ctx, intent.IntentID)
			require.NoError(t, err)
			assert.Equal(t, vo.IntentStatusPending, stored.Status())
		})
	}
}

func TestVerifyPayment_PendingThenConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createIntent(t, f.solana, "c1", "r1", 0)

	for i := 0; i < 3; i++ {
		_, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
		require.ErrorIs(t, err, errors.ErrTransactionNotFound)
	}
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))
	res, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
	require.NoError(t, err)

	status, err := f.status.Execute(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementConfirmed, status.Status)
	assert.Equal(t, res.PaymentID, status.PaymentID)
}

func TestVerifyPayment_ScopeIsEnforcedOnReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createIntent(t, f.solana, "c1", "r1", 0)
	f.createIntent(t, f.solana, "c2", "r2", 0)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1", "r2"))

	_, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
	require.NoError(t, err)

	_, err = f.verify.Execute(ctx, verifyCmd("tx1", "c2"))
	assert.ErrorIs(t, err, errors.ErrReferenceMismatch)
	assert.Equal(t, int64(1), f.countPayments(t))
}

func TestVerifyPayment_InputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.verify.Execute(ctx, VerifyPaymentCommand{MerchantID: "m1", ContentID: "c1"})
	assert.True(t, errors.IsValidationError(err))

	_, err = f.verify.Execute(ctx, VerifyPaymentCommand{TxSignature: "tx1"})
	assert.True(t, errors.IsValidationError(err))

	_, err = f.verify.Execute(ctx, verifyCmd("tx1", "c9"))
	assert.ErrorIs(t, err, errors.ErrContentNotFound)

	_, err = f.verify.Execute(ctx, verifyCmd("tx1", "btc"))
	assert.ErrorIs(t, err, errors.ErrChainUnsupported)
}

func TestGetPaymentStatus_Unknown(t *testing.T) {
	f := newFixture(t)

	status, err := f.status.Execute(context.Background(), "never-seen")

	require.NoError(t, err)
	assert.Equal(t, vo.SettlementUnknown, status.Status)

	_, err = f.status.Execute(context.Background(), "")
	assert.True(t, errors.IsValidationError(err))
}

var _ blockchain.Verifier = (*fakeVerifier)(nil)
