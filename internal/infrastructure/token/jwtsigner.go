package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	apperrors "github.com/micropaywall/paygate/internal/shared/errors"
)

type accessClaims struct {
	MerchantID string `json:"merchant_id"`
	ContentID  string `json:"content_id"`
	PaymentID  string `json:"payment_id"`
	SingleUse  bool   `json:"single_use"`
	jwt.RegisteredClaims
}

// JWTSigner signs and verifies access tokens. Verification is a pure function
// of the token, the clock and the key.
type JWTSigner struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	clock     biztime.Clock
}

func NewJWTSigner(key *KeyMaterial, issuer string, clock biztime.Clock) (*JWTSigner, error) {
	s := &JWTSigner{issuer: issuer, clock: biztime.OrDefault(clock)}

	switch key.Algorithm {
	case AlgorithmHS256:
		s.method = jwt.SigningMethodHS256
		s.signKey = key.HMACSecret
		s.verifyKey = key.HMACSecret
	case AlgorithmEdDSA:
		s.method = jwt.SigningMethodEdDSA
		s.signKey = key.PrivateKey
		s.verifyKey = key.PrivateKey.Public()
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", key.Algorithm)
	}
	return s, nil
}

// Sign encodes claims. Timestamps are carried at second precision.
func (s *JWTSigner) Sign(c accesstoken.Claims) (string, error) {
	claims := &accessClaims{
		MerchantID: c.MerchantID,
		ContentID:  c.ContentID,
		PaymentID:  c.PaymentID,
		SingleUse:  c.SingleUse,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Issuer:    s.issuer,
			Subject:   c.PaymentID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString and returns its claims. Expired tokens yield
// ErrTokenExpired; anything else that fails verification yields ErrInvalidToken.
func (s *JWTSigner) Parse(tokenString string) (accesstoken.Claims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.verifyKey, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return accesstoken.Claims{}, apperrors.ErrTokenExpired
		}
		return accesstoken.Claims{}, apperrors.ErrInvalidToken.Wrapf("%v", err)
	}

	if claims.ID == "" || claims.MerchantID == "" || claims.ContentID == "" || claims.PaymentID == "" {
		return accesstoken.Claims{}, apperrors.ErrInvalidToken.Wrapf("missing required claims")
	}

	out := accesstoken.Claims{
		ID:         claims.ID,
		MerchantID: claims.MerchantID,
		ContentID:  claims.ContentID,
		PaymentID:  claims.PaymentID,
		SingleUse:  claims.SingleUse,
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// Algorithm reports the JWS algorithm in use.
func (s *JWTSigner) Algorithm() string {
	return s.method.Alg()
}

