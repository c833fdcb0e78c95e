package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
)

// fakeVerifier serves canned transactions keyed by signature.
type fakeVerifier struct {
	mu                sync.Mutex
	chain             vo.Chain
	kind              vo.ChainKind
	supportsReference bool
	references        []string
	txs               map[string]*blockchain.Transaction
	fetchErr          map[string]error
	fetches           int
	fetched           []string
}

func newFakeVerifier(chain vo.Chain, kind vo.ChainKind) *fakeVerifier {
	return &fakeVerifier{
		chain:             chain,
		kind:              kind,
		supportsReference: true,
		txs:               map[string]*blockchain.Transaction{},
		fetchErr:          map[string]error{},
	}
}

func (v *fakeVerifier) Chain() vo.Chain         { return v.chain }
func (v *fakeVerifier) Kind() vo.ChainKind      { return v.kind }
func (v *fakeVerifier) SupportsReference() bool { return v.supportsReference }

// NewReference hands out the queued references in order.
func (v *fakeVerifier) NewReference() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.references) == 0 {
		return "", errors.NewInternalError("no reference queued")
	}
	ref := v.references[0]
	v.references = v.references[1:]
	return ref, nil
}

func (v *fakeVerifier) put(tx *blockchain.Transaction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	tx.Chain = v.chain
	v.txs[tx.Signature] = tx
}

// takeFetched returns the signatures fetched since the last call.
func (v *fakeVerifier) takeFetched() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.fetched
	v.fetched = nil
	return out
}

func (v *fakeVerifier) drop(signature string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.txs, signature)
}

func (v *fakeVerifier) Fetch(_ context.Context, signature string) (*blockchain.Transaction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fetches++
	v.fetched = append(v.fetched, signature)
	if err, ok := v.fetchErr[signature]; ok {
		return nil, err
	}
	tx, ok := v.txs[signature]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

func (v *fakeVerifier) Height(context.Context) (uint64, error) {
	return 1000, nil
}

func (v *fakeVerifier) Verify(ctx context.Context, signature string, intent *payment.PaymentIntent) (*blockchain.Outcome, error) {
	tx, err := v.Fetch(ctx, signature)
	if err != nil {
		return nil, err
	}
	return blockchain.Evaluate(tx, intent, v.supportsReference)
}

type fakeResolver map[vo.Chain]blockchain.Verifier

func (r fakeResolver) Get(chain vo.Chain) (blockchain.Verifier, error) {
	v, ok := r[chain]
	if !ok {
		return nil, errors.ErrChainUnsupported.Wrapf("chain %s", chain)
	}
	return v, nil
}

func (r fakeResolver) Chains() []vo.Chain {
	chains := make([]vo.Chain, 0, len(r))
	for c := range r {
		chains = append(chains, c)
	}
	return chains
}

type countingRecorder struct {
	mu       sync.Mutex
	counters map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counters: map[string]int{}}
}

func (r *countingRecorder) IncCounter(name string, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"/"+labels["reason"]]++
}

func (r *countingRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func (r *countingRecorder) count(name, reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name+"/"+reason]
}
