package accesstoken

import (
	"context"
	"time"
)

// Repository persists issued tokens. Getters return (nil, nil) when no row matches.
type Repository interface {
	// CreateIfAbsent stores the token unless its payment already has one and
	// reports whether it was stored.
	CreateIfAbsent(ctx context.Context, token *AccessToken) (bool, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*AccessToken, error)
	GetByJTI(ctx context.Context, jti string) (*AccessToken, error)
	// MarkRedeemed sets redeemed_at only if the token is neither redeemed nor
	// revoked, and reports whether this call won.
	MarkRedeemed(ctx context.Context, jti string, at time.Time) (bool, error)
	RevokeByPaymentID(ctx context.Context, paymentID string, at time.Time) error
}
