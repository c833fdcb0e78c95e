package accesstoken

import (
	"fmt"
	"time"

	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/id"
)

// Claims is the signed content of an access token.
type Claims struct {
	ID         string
	MerchantID string
	ContentID  string
	PaymentID  string
	SingleUse  bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Covers reports whether the claims grant access to the merchant/content pair.
func (c Claims) Covers(merchantID, contentID string) bool {
	return c.MerchantID == merchantID && c.ContentID == contentID
}

// AccessToken is the issued capability for one payment. Each payment owns at
// most one token.
type AccessToken struct {
	id         string
	jti        string
	token      string
	merchantID string
	contentID  string
	paymentID  string
	singleUse  bool
	issuedAt   time.Time
	expiresAt  time.Time
	redeemedAt *time.Time
	revokedAt  *time.Time
}

// NewAccessToken records a token that was signed from claims.
func NewAccessToken(claims Claims, signed string) (*AccessToken, error) {
	if signed == "" {
		return nil, errors.NewValidationError("signed token is required")
	}
	if claims.ID == "" || claims.PaymentID == "" {
		return nil, errors.NewValidationError("token ID and payment ID are required")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return nil, errors.NewValidationError("token must expire after it is issued")
	}

	tokenID, err := id.NewAccessTokenID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}

	return &AccessToken{
		id:         tokenID,
		jti:        claims.ID,
		token:      signed,
		merchantID: claims.MerchantID,
		contentID:  claims.ContentID,
		paymentID:  claims.PaymentID,
		singleUse:  claims.SingleUse,
		issuedAt:   claims.IssuedAt.UTC(),
		expiresAt:  claims.ExpiresAt.UTC(),
	}, nil
}

// Claims returns the claims the token was signed with.
func (t *AccessToken) Claims() Claims {
	return Claims{
		ID:         t.jti,
		MerchantID: t.merchantID,
		ContentID:  t.contentID,
		PaymentID:  t.paymentID,
		SingleUse:  t.singleUse,
		IssuedAt:   t.issuedAt,
		ExpiresAt:  t.expiresAt,
	}
}

func (t *AccessToken) IsRedeemed() bool { return t.redeemedAt != nil }
func (t *AccessToken) IsRevoked() bool  { return t.revokedAt != nil }

func (t *AccessToken) ID() string             { return t.id }
func (t *AccessToken) JTI() string            { return t.jti }
func (t *AccessToken) Token() string          { return t.token }
func (t *AccessToken) MerchantID() string     { return t.merchantID }
func (t *AccessToken) ContentID() string      { return t.contentID }
func (t *AccessToken) PaymentID() string      { return t.paymentID }
func (t *AccessToken) SingleUse() bool        { return t.singleUse }
func (t *AccessToken) IssuedAt() time.Time    { return t.issuedAt }
func (t *AccessToken) ExpiresAt() time.Time   { return t.expiresAt }
func (t *AccessToken) RedeemedAt() *time.Time { return t.redeemedAt }
func (t *AccessToken) RevokedAt() *time.Time  { return t.revokedAt }

type ReconstructParams struct {
	ID         string
	JTI        string
	Token      string
	MerchantID string
	ContentID  string
	PaymentID  string
	SingleUse  bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RedeemedAt *time.Time
	RevokedAt  *time.Time
}

func ReconstructAccessToken(p ReconstructParams) *AccessToken {
	return &AccessToken{
		id:         p.ID,
		jti:        p.JTI,
		token:      p.Token,
		merchantID: p.MerchantID,
		contentID:  p.ContentID,
		paymentID:  p.PaymentID,
		singleUse:  p.SingleUse,
		issuedAt:   p.IssuedAt,
		expiresAt:  p.ExpiresAt,
		redeemedAt: p.RedeemedAt,
		revokedAt:  p.RevokedAt,
	}
}
