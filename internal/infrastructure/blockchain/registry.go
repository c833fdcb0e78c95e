// Package blockchain holds the chain adapters that implement the
// blockchain.Verifier capability, and the registry that routes to them.
package blockchain

import (
	"context"
	"sort"
	"sync"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

const maxConfirmations = 100

// Registry routes verification to the verifier registered for a chain.
type Registry struct {
	mu        sync.RWMutex // Protects verifiers for concurrent access
	verifiers map[vo.Chain]blockchain.Verifier
	logger    logger.Interface
}

// NewRegistry creates an empty verifier registry
func NewRegistry(logger logger.Interface) *Registry {
	return &Registry{
		verifiers: make(map[vo.Chain]blockchain.Verifier),
		logger:    logger,
	}
}

// Ensure Registry implements Resolver
var _ blockchain.Resolver = (*Registry)(nil)

// Register adds or replaces the verifier for its chain.
func (r *Registry) Register(v blockchain.Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.verifiers[v.Chain()]; exists {
		r.logger.Infow("replacing chain verifier", "chain", v.Chain())
	}
	r.verifiers[v.Chain()] = v
}

// Get returns the verifier for chain, or ErrChainUnsupported.
func (r *Registry) Get(chain vo.Chain) (blockchain.Verifier, error) {
	r.mu.RLock()
	v, ok := r.verifiers[chain]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.ErrChainUnsupported.Wrapf("chain %q is not configured", chain)
	}
	return v, nil
}

// Chains lists the registered chains in name order.
func (r *Registry) Chains() []vo.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chains := make([]vo.Chain, 0, len(r.verifiers))
	for c := range r.verifiers {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

func verifyWith(ctx context.Context, v blockchain.Verifier, signature string, intent *payment.PaymentIntent) (*blockchain.Outcome, error) {
	if intent.Chain() != v.Chain() {
		return nil, errors.ErrChainUnsupported.Wrapf("intent is for %s, verifier serves %s", intent.Chain(), v.Chain())
	}
	tx, err := v.Fetch(ctx, signature)
	if err != nil {
		return nil, err
	}
	return blockchain.Evaluate(tx, intent, v.SupportsReference())
}

// validateConfirmations normalizes a configured confirmation depth.
// Returns the kind default if value is <= 0, caps at maxConfirmations if too high
func validateConfirmations(value int, kind vo.ChainKind) int {
	if value <= 0 {
		return kind.DefaultConfirmations()
	}
	if value > maxConfirmations {
		return maxConfirmations
	}
	return value
}
