package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
)

func newTestToken(t *testing.T, jti, paymentID string) *accesstoken.AccessToken {
	t.Helper()
	tok, err := accesstoken.NewAccessToken(accesstoken.Claims{
		ID:         jti,
		MerchantID: "m1",
		ContentID:  "c1",
		PaymentID:  paymentID,
		SingleUse:  true,
		IssuedAt:   testNow,
		ExpiresAt:  testNow.Add(time.Hour),
	}, "signed."+jti)
	require.NoError(t, err)
	return tok
}

func TestAccessTokenRepository_OneTokenPerPayment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccessTokenRepository(db)
	ctx := context.Background()

	stored, err := repo.CreateIfAbsent(ctx, newTestToken(t, "jti-1", "pay_1"))
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.CreateIfAbsent(ctx, newTestToken(t, "jti-2", "pay_1"))
	require.NoError(t, err)
	assert.False(t, stored)

	found, err := repo.GetByPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "jti-1", found.JTI())
	assert.Equal(t, "signed.jti-1", found.Token())

	byJTI, err := repo.GetByJTI(ctx, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, byJTI)
	assert.True(t, byJTI.SingleUse())
}

func TestAccessTokenRepository_MarkRedeemedIsCompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccessTokenRepository(db)
	ctx := context.Background()

	_, err := repo.CreateIfAbsent(ctx, newTestToken(t, "jti-1", "pay_1"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkRedeemed(ctx, "jti-1", testNow)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	found, err := repo.GetByJTI(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found.IsRedeemed())
}

func TestAccessTokenRepository_RevokedTokenCannotBeRedeemed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccessTokenRepository(db)
	ctx := context.Background()

	_, err := repo.CreateIfAbsent(ctx, newTestToken(t, "jti-1", "pay_1"))
	require.NoError(t, err)
	require.NoError(t, repo.RevokeByPaymentID(ctx, "pay_1", testNow))

	ok, err := repo.MarkRedeemed(ctx, "jti-1", testNow)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.GetByJTI(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, found.IsRevoked())
	assert.False(t, found.IsRedeemed())
}
