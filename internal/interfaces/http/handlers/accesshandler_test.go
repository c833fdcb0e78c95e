package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
	"github.com/micropaywall/paygate/internal/interfaces/http/handlers/testutil"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

type mockRedeemUC struct {
	cmd    tokenusecases.RedeemAccessTokenCommand
	calls  int
	result *tokenusecases.RedeemAccessTokenResult
	err    error
}

func (m *mockRedeemUC) Execute(_ context.Context, cmd tokenusecases.RedeemAccessTokenCommand) (*tokenusecases.RedeemAccessTokenResult, error) {
	m.cmd = cmd
	m.calls++
	return m.result, m.err
}

func grantedResult() *tokenusecases.RedeemAccessTokenResult {
	return &tokenusecases.RedeemAccessTokenResult{
		Granted:    true,
		MerchantID: "m1",
		ContentID:  "c1",
		PaymentID:  "pay_1",
		SingleUse:  true,
		ExpiresAt:  handlerNow.Add(time.Hour),
	}
}

func TestAccessHandler_Redeem_Success(t *testing.T) {
	uc := &mockRedeemUC{result: grantedResult()}
	h := NewAccessHandler(uc, logger.NewNopLogger())

	c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/access/redeem", RedeemAccessTokenRequest{
		Token:      "tok",
		MerchantID: "m1",
		ContentID:  "c1",
	})
	h.Redeem(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tokenusecases.RedeemAccessTokenCommand{Token: "tok", MerchantID: "m1", ContentID: "c1"}, uc.cmd)

	var data RedeemAccessTokenResponse
	dataOf(t, w.Body.Bytes(), &data)
	assert.True(t, data.Granted)
	assert.Equal(t, "pay_1", data.PaymentID)
	assert.Equal(t, "2026-03-01T13:00:00Z", data.ExpiresAt)
}

func TestAccessHandler_Redeem_BearerHeader(t *testing.T) {
	uc := &mockRedeemUC{result: grantedResult()}
	h := NewAccessHandler(uc, logger.NewNopLogger())

	c, w := testutil.NewRawTestContext(http.MethodPost, "/api/v1/access/redeem", `{}`)
	c.Request.Header.Set("Authorization", "Bearer header-token")
	h.Redeem(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header-token", uc.cmd.Token)
}

func TestAccessHandler_Redeem_MissingToken(t *testing.T) {
	uc := &mockRedeemUC{}
	h := NewAccessHandler(uc, logger.NewNopLogger())

	c, w := testutil.NewRawTestContext(http.MethodPost, "/api/v1/access/redeem", `{"merchant_id":"m1"}`)
	h.Redeem(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, uc.calls)
}

func TestAccessHandler_Redeem_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{"invalid", errors.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{"scope", errors.ErrInvalidToken.Wrapf("scope mismatch"), http.StatusUnauthorized, "invalid_token"},
		{"expired", errors.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{"redeemed", errors.ErrAlreadyRedeemed, http.StatusConflict, "already_redeemed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAccessHandler(&mockRedeemUC{err: tt.err}, logger.NewNopLogger())
			c, w := testutil.NewTestContext(http.MethodPost, "/api/v1/access/redeem", RedeemAccessTokenRequest{Token: "tok"})

			h.Redeem(c)

			assert.Equal(t, tt.status, w.Code)
			info := errorOf(t, w.Body.Bytes())
			assert.Equal(t, tt.errType, info.Type)
			assert.False(t, info.Retryable)
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	c, w := testutil.NewTestContext(http.MethodGet, "/health", nil)
	NewHealthHandler(stubPinger{}).Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)

	c, w = testutil.NewTestContext(http.MethodGet, "/health", nil)
	NewHealthHandler(stubPinger{err: context.DeadlineExceeded}).Health(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = testutil.NewTestContext(http.MethodGet, "/health", nil)
	NewHealthHandler(nil).Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
