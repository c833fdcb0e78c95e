package usecases

import (
	"time"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
)

// TokenSigner turns claims into a bearer string and back.
type TokenSigner interface {
	Sign(claims accesstoken.Claims) (string, error)
	Parse(token string) (accesstoken.Claims, error)
}

// TokenPolicy holds the platform defaults applied when content does not
// configure its own access policy.
type TokenPolicy struct {
	DefaultTTL       time.Duration
	PermanentTTL     time.Duration
	SingleUseDefault bool
}
