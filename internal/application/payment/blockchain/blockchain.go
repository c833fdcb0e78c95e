// Package blockchain defines the chain-neutral view of an on-chain payment and
// the capability every chain adapter implements. The rules that decide whether
// a transaction satisfies a payment intent live here, once, in Evaluate.
package blockchain

import (
	"context"
	"time"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
)

// Transfer is one native-currency movement inside a transaction. Addresses are
// normalized by the adapter so that equal addresses compare equal as strings.
type Transfer struct {
	From   string
	To     string
	Amount uint64
}

// Transaction is what an adapter extracted from a fetched transaction.
type Transaction struct {
	Signature string
	Chain     vo.Chain
	// Succeeded is false when the chain executed the transaction and it failed.
	Succeeded bool
	// Final reports whether the configured confirmation depth or commitment was reached.
	Final         bool
	Confirmations uint64
	Slot          uint64
	BlockTime     *time.Time
	// Payer is the fee payer or sender of the transaction.
	Payer     string
	Transfers []Transfer
	// References holds every value the transaction carries that can correlate
	// it with an intent: memos, referenced account keys or calldata.
	References []string
}

// HasReference reports whether ref appears among the transaction references.
func (t *Transaction) HasReference(ref string) bool {
	for _, r := range t.References {
		if r == ref {
			return true
		}
	}
	return false
}

// Outcome is a successful, finalized verification of one transaction against
// one intent.
type Outcome struct {
	Signature string
	Chain     vo.Chain
	Payer     string
	Recipient string
	Amount    uint64
	Slot      uint64
	BlockTime *time.Time
}

// Verifier is implemented once per chain family.
type Verifier interface {
	Chain() vo.Chain
	Kind() vo.ChainKind
	// SupportsReference reports whether transactions on this chain can carry
	// an intent reference the adapter knows how to read.
	SupportsReference() bool
	// NewReference generates a fresh correlation value for a new intent.
	NewReference() (string, error)
	// Fetch returns the parsed transaction or ErrTransactionNotFound or
	// ErrRPCUnavailable.
	Fetch(ctx context.Context, signature string) (*Transaction, error)
	// Height returns the current slot or block number of the chain head.
	Height(ctx context.Context) (uint64, error)
	// Verify fetches signature and evaluates it against intent.
	Verify(ctx context.Context, signature string, intent *payment.PaymentIntent) (*Outcome, error)
}

// Resolver selects the verifier registered for a chain.
type Resolver interface {
	Get(chain vo.Chain) (Verifier, error)
	Chains() []vo.Chain
}
