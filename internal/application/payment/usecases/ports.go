package usecases

import (
	"context"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/application/payment/ledger"
	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
)

// Committer is the payment ledger.
type Committer interface {
	Commit(ctx context.Context, intent *payment.PaymentIntent, outcome *blockchain.Outcome) (*ledger.CommitResult, error)
}

// TokenIssuer mints, or returns the already minted, access token of a payment.
type TokenIssuer interface {
	Execute(ctx context.Context, cmd tokenusecases.IssueAccessTokenCommand) (*accesstoken.AccessToken, error)
}

// TokenRevoker revokes the access token of a reversed payment.
type TokenRevoker interface {
	RevokeByPaymentID(ctx context.Context, paymentID string, at time.Time) error
}

var _ TokenIssuer = (*tokenusecases.IssueAccessTokenUseCase)(nil)

// ChainSettings is the display metadata of a configured chain.
type ChainSettings struct {
	Kind     vo.ChainKind
	Currency string
	Decimals int32
	// ChainID is set for EVM chains only.
	ChainID int64
}

// ChainDirectory maps configured chains to their settings.
type ChainDirectory map[vo.Chain]ChainSettings

// IntentPolicy bounds the time-to-live of new intents.
type IntentPolicy struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// ttl resolves a requested duration. Zero means the default and anything above
// the maximum is clamped.
func (p IntentPolicy) ttl(requested time.Duration) time.Duration {
	switch {
	case requested == 0:
		return p.DefaultTTL
	case p.MaxTTL > 0 && requested > p.MaxTTL:
		return p.MaxTTL
	default:
		return requested
	}
}

// contentLookup narrows catalog.Lookup to what verification needs.
type contentLookup interface {
	GetContent(ctx context.Context, merchantID, contentID string) (*catalog.Content, error)
}
