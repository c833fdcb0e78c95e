package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/domain/catalog"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) GetMerchant(ctx context.Context, merchantID string) (*catalog.Merchant, error) {
	args := m.Called(ctx, merchantID)
	merchant, _ := args.Get(0).(*catalog.Merchant)
	return merchant, args.Error(1)
}

func (m *mockLookup) GetContent(ctx context.Context, merchantID, contentID string) (*catalog.Content, error) {
	args := m.Called(ctx, merchantID, contentID)
	content, _ := args.Get(0).(*catalog.Content)
	return content, args.Error(1)
}

// memTokenRepo mirrors the unique payment_id and compare-and-set semantics of
// the gorm repository.
type memTokenRepo struct {
	mu        sync.Mutex
	byPayment map[string]*accesstoken.AccessToken
	redeemed  map[string]time.Time
	revoked   map[string]time.Time
	creates   int
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{
		byPayment: map[string]*accesstoken.AccessToken{},
		redeemed:  map[string]time.Time{},
		revoked:   map[string]time.Time{},
	}
}

func (r *memTokenRepo) CreateIfAbsent(_ context.Context, t *accesstoken.AccessToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPayment[t.PaymentID()]; ok {
		return false, nil
	}
	r.byPayment[t.PaymentID()] = t
	r.creates++
	return true, nil
}

func (r *memTokenRepo) GetByPaymentID(_ context.Context, paymentID string) (*accesstoken.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPayment[paymentID], nil
}

func (r *memTokenRepo) GetByJTI(_ context.Context, jti string) (*accesstoken.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byPayment {
		if t.JTI() != jti {
			continue
		}
		p := accesstoken.ReconstructParams{
			ID:         t.ID(),
			JTI:        t.JTI(),
			Token:      t.Token(),
			MerchantID: t.MerchantID(),
			ContentID:  t.ContentID(),
			PaymentID:  t.PaymentID(),
			SingleUse:  t.SingleUse(),
			IssuedAt:   t.IssuedAt(),
			ExpiresAt:  t.ExpiresAt(),
		}
		if at, ok := r.redeemed[jti]; ok {
			p.RedeemedAt = &at
		}
		if at, ok := r.revoked[jti]; ok {
			p.RevokedAt = &at
		}
		return accesstoken.ReconstructAccessToken(p), nil
	}
	return nil, nil
}

func (r *memTokenRepo) MarkRedeemed(_ context.Context, jti string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.redeemed[jti]; ok {
		return false, nil
	}
	if _, ok := r.revoked[jti]; ok {
		return false, nil
	}
	for _, t := range r.byPayment {
		if t.JTI() == jti {
			r.redeemed[jti] = at
			return true, nil
		}
	}
	return false, nil
}

func (r *memTokenRepo) RevokeByPaymentID(_ context.Context, paymentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byPayment[paymentID]; ok {
		r.revoked[t.JTI()] = at
	}
	return nil
}
