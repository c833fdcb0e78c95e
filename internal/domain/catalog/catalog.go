// Package catalog holds the read models of merchants and their content as the
// payment engine sees them. Merchant and content management live elsewhere;
// the engine only resolves them through Lookup.
package catalog

import (
	"context"
	"time"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
)

// Merchant is a seller with one payout address per chain.
type Merchant struct {
	ID              string
	Name            string
	PayoutAddresses map[vo.Chain]string
	Active          bool
}

// PayoutAddress returns the merchant's address on chain, if one is configured.
func (m *Merchant) PayoutAddress(chain vo.Chain) (string, bool) {
	addr, ok := m.PayoutAddresses[chain]
	return addr, ok && addr != ""
}

// Content is one purchasable item and its access policy.
type Content struct {
	ID         string
	MerchantID string
	Title      string
	Chain      vo.Chain
	Price      uint64
	Currency   string
	// AccessDuration is how long a token stays valid. Zero means the platform default.
	AccessDuration time.Duration
	Permanent      bool
	// SingleUse overrides the platform default when set.
	SingleUse *bool
	Active    bool
}

// ResolveSingleUse applies the content override over the platform default.
func (c *Content) ResolveSingleUse(platformDefault bool) bool {
	if c.SingleUse != nil {
		return *c.SingleUse
	}
	return platformDefault
}

// Lookup resolves merchants and content. Both methods return (nil, nil) when
// the record does not exist or is inactive.
type Lookup interface {
	GetMerchant(ctx context.Context, merchantID string) (*Merchant, error)
	GetContent(ctx context.Context, merchantID, contentID string) (*Content, error)
}
