package usecases

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/shared/errors"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
)

func TestExpireIntents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for _, ref := range []string{"r1", "r2", "r3"} {
		ids = append(ids, f.createIntent(t, f.solana, "c1", ref, 10*time.Minute).IntentID)
	}
	paid := f.createIntent(t, f.solana, "c2", "r4", 10*time.Minute)
	f.solana.put(solanaTx("tx4", 1_000_000, "r4"))
	_, err := f.verify.Execute(ctx, verifyCmd("tx4", "c2"))
	require.NoError(t, err)

	// still open at the boundary
	f.clock.Set(testNow.Add(10 * time.Minute))
	n, err := f.expire.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Set(testNow.Add(11 * time.Minute))
	n, err = f.expire.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, id := range ids {
		intent, err := f.intents.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, vo.IntentStatusExpired, intent.Status())
	}
	confirmed, err := f.intents.GetByID(ctx, paid.IntentID)
	require.NoError(t, err)
	assert.Equal(t, vo.IntentStatusConfirmed, confirmed.Status())

	n, err = f.expire.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, f.recorder.count(metrics.SweepRun, "expire"))
}

func TestExpireIntents_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.expire.Execute(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func polygonTx(signature string, refs ...string) *blockchain.Transaction {
	if len(refs) == 0 {
		refs = []string{"evmref"}
	}
	return &blockchain.Transaction{
		Signature:     signature,
		Succeeded:     true,
		Final:         true,
		Confirmations: 20,
		Slot:          5_000_000,
		Payer:         polygonPayer,
		Transfers:     []blockchain.Transfer{{From: polygonPayer, To: polygonPayout, Amount: 1_000_000_000_000_000}},
		References:    refs,
	}
}

// payPolygon confirms a polygon payment for contentID through verify-payment.
func (f *fixture) payPolygon(t *testing.T, contentID, signature, ref string) *VerifyPaymentResult {
	t.Helper()
	f.createIntent(t, f.polygon, contentID, ref, 0)
	f.polygon.put(polygonTx(signature, ref))
	res, err := f.verify.Execute(context.Background(), verifyCmd(signature, contentID))
	require.NoError(t, err)
	return res
}

func TestReconcilePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	evmPaid := f.payPolygon(t, "video", "0xabc", "evmref")

	f.createIntent(t, f.solana, "c1", "r1", 0)
	f.solana.put(solanaTx("tx1", 1_000_000, "r1"))
	_, err := f.verify.Execute(ctx, verifyCmd("tx1", "c1"))
	require.NoError(t, err)

	f.clock.Set(testNow.Add(10 * time.Minute))
	res, err := f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked, "only reorg-prone chains are re-checked")
	assert.Zero(t, res.Reversed)
	assert.Empty(t, f.solana.takeFetched())

	f.polygon.drop("0xabc")
	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missed)
	assert.Zero(t, res.Reversed, "one miss does not reverse")

	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reversed)

	status, err := f.status.Execute(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementRejected, status.Status)

	stored, err := f.tokens.GetByPaymentID(ctx, evmPaid.PaymentID)
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked())

	_, err = f.verify.Execute(ctx, verifyCmd("0xabc", "video"))
	assert.ErrorIs(t, err, errors.ErrTransactionFailed)

	// reversed payments leave the confirmed window
	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestReconcilePayments_MissIsForgottenOnceTransactionReappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payPolygon(t, "video", "0xabc", "evmref")

	// a lagging endpoint does not know the transaction yet
	f.polygon.drop("0xabc")
	res, err := f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missed)

	f.polygon.put(polygonTx("0xabc"))
	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Missed)
	assert.Zero(t, res.Reversed)

	stored, err := f.payments.GetBySignature(ctx, "0xabc")
	require.NoError(t, err)
	assert.Zero(t, stored.ReconcileMisses())

	// the earlier miss no longer counts towards the threshold
	f.polygon.drop("0xabc")
	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missed)
	assert.Zero(t, res.Reversed)

	status, err := f.status.Execute(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementConfirmed, status.Status)
	token, err := f.tokens.GetByPaymentID(ctx, paid.PaymentID)
	require.NoError(t, err)
	assert.False(t, token.IsRevoked())
}

func TestReconcilePayments_PendingAgainCountsAsMiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payPolygon(t, "video", "0xabc", "evmref")

	// back in the mempool after a reorganization: no receipt yet
	pending := polygonTx("0xabc")
	pending.Succeeded = false
	pending.Final = false
	pending.Confirmations = 0
	f.polygon.put(pending)

	res, err := f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Missed)
	assert.Zero(t, res.Reversed)

	f.polygon.put(polygonTx("0xabc"))
	res, err = f.reconcile.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Reversed)
}

func TestReconcilePayments_FailedTransactionRevokesSingleUseToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.payPolygon(t, "clip", "0xabc", "evmref")
	require.True(t, paid.AccessToken.SingleUse())

	reverted := polygonTx("0xabc")
	reverted.Succeeded = false
	f.polygon.put(reverted)

	for i := 0; i < 2; i++ {
		_, err := f.reconcile.Execute(ctx)
		require.NoError(t, err)
	}
	status, err := f.status.Execute(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementRejected, status.Status)

	_, err = f.redeem.Execute(ctx, tokenusecases.RedeemAccessTokenCommand{Token: paid.AccessToken.Token()})
	assert.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestReconcilePayments_NonEVMPaymentsDoNotStarveBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, ref := range []string{"r1", "r2", "r3"} {
		f.createIntent(t, f.solana, "c2", ref, 0)
		sig := fmt.Sprintf("sol%d", i)
		f.solana.put(solanaTx(sig, 1_000_000, ref))
		_, err := f.verify.Execute(ctx, verifyCmd(sig, "c2"))
		require.NoError(t, err)
	}
	f.clock.Set(testNow.Add(time.Minute))
	f.payPolygon(t, "video", "0xabc", "evmref")
	f.polygon.drop("0xabc")
	f.solana.takeFetched()
	f.polygon.takeFetched()

	reconcile := f.newReconcile(ReconcilePolicy{Lookback: time.Hour, BatchSize: 1, MissThreshold: 2})
	for i := 0; i < 2; i++ {
		res, err := reconcile.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Checked, "run %d", i)
	}

	assert.Empty(t, f.solana.takeFetched())
	assert.Equal(t, []string{"0xabc", "0xabc"}, f.polygon.takeFetched())
	status, err := f.status.Execute(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementRejected, status.Status)
}

func TestReconcilePayments_PagesThroughWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payPolygon(t, "video", "0xa1", "ref-a1")
	f.clock.Set(testNow.Add(time.Minute))
	f.payPolygon(t, "clip", "0xa2", "ref-a2")
	f.polygon.takeFetched()

	reconcile := f.newReconcile(ReconcilePolicy{Lookback: time.Hour, BatchSize: 1})
	var seen []string
	for i := 0; i < 3; i++ {
		res, err := reconcile.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Checked)
		seen = append(seen, f.polygon.takeFetched()...)
	}

	assert.Equal(t, []string{"0xa1", "0xa2", "0xa1"}, seen, "the run after the last page wraps around")
}

func TestReconcilePayments_RPCFailureIsCountedNotReversed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payPolygon(t, "video", "0xabc", "evmref")

	f.polygon.fetchErr["0xabc"] = errors.ErrRPCUnavailable
	for i := 0; i < 3; i++ {
		res, err := f.reconcile.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Reversed)
	}

	status, err := f.status.Execute(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, vo.SettlementConfirmed, status.Status)
}

func TestListPayerPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createIntent(t, f.polygon, "video", "evmref", 0)
	f.polygon.put(polygonTx("0xabc"))
	_, err := f.verify.Execute(ctx, verifyCmd("0xabc", "video"))
	require.NoError(t, err)

	res, err := f.library.Execute(ctx, ListPayerPaymentsQuery{Payer: "0x00000000000000000000000000000000000000BB", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Payments, 1)
	assert.Equal(t, "video", res.Payments[0].ContentID)
	assert.Equal(t, vo.ChainPolygon, res.Payments[0].Chain)

	empty, err := f.library.Execute(ctx, ListPayerPaymentsQuery{Payer: "B1buyer", Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)

	_, err = f.library.Execute(ctx, ListPayerPaymentsQuery{})
	assert.True(t, errors.IsValidationError(err))
}
