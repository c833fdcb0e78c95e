package usecases

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// defaultMissThreshold is used when a policy leaves MissThreshold unset.
const defaultMissThreshold = 3

type ReconcileResult struct {
	Checked int
	// Missed counts payments whose transaction was not seen in a succeeded
	// state this run but have not yet reached the miss threshold.
	Missed   int
	Reversed int
	Failed   int
}

// ReconcilePolicy bounds one reconcile run.
type ReconcilePolicy struct {
	Lookback  time.Duration
	BatchSize int
	// MissThreshold is how many consecutive checks must fail to see a
	// succeeded transaction before its payment is reversed. One lagging or
	// forked endpoint is not enough to reverse a payment.
	MissThreshold int
}

// ReconcilePaymentsUseCase re-fetches recently confirmed payments on chains
// that can reorganize and reverses those whose transaction vanished or failed
// on MissThreshold consecutive checks. The reversed payment's access token is
// revoked. Each run continues where the previous one stopped, so the whole
// lookback window is covered even when it holds more than one batch.
type ReconcilePaymentsUseCase struct {
	payments  payment.PaymentRepository
	tokens    TokenRevoker
	verifiers blockchain.Resolver
	policy    ReconcilePolicy
	recorder  metrics.Recorder
	clock     biztime.Clock
	logger    logger.Interface

	mu     sync.Mutex
	cursor *payment.ConfirmedCursor
}

func NewReconcilePaymentsUseCase(
	payments payment.PaymentRepository,
	tokens TokenRevoker,
	verifiers blockchain.Resolver,
	policy ReconcilePolicy,
	recorder metrics.Recorder,
	clock biztime.Clock,
	logger logger.Interface,
) *ReconcilePaymentsUseCase {
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaultSweepBatch
	}
	if policy.MissThreshold <= 0 {
		policy.MissThreshold = defaultMissThreshold
	}
	return &ReconcilePaymentsUseCase{
		payments:  payments,
		tokens:    tokens,
		verifiers: verifiers,
		policy:    policy,
		recorder:  metrics.OrNoop(recorder),
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

func (uc *ReconcilePaymentsUseCase) Execute(ctx context.Context) (*ReconcileResult, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.clock()
	result := &ReconcileResult{}
	defer uc.recorder.IncCounter(metrics.SweepRun, map[string]string{metrics.LabelReason: "reconcile"})

	chains := uc.reorgProneChains()
	batch, err := uc.nextBatch(ctx, chains, now.Add(-uc.policy.Lookback))
	if err != nil {
		return nil, err
	}

	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		uc.cursor = &payment.ConfirmedCursor{ConfirmedAt: p.ConfirmedAt(), ID: p.ID()}

		verifier, err := uc.verifiers.Get(p.Chain())
		if err != nil {
			continue
		}
		result.Checked++

		outcome, err := uc.reconcile(ctx, verifier, p, now)
		if err != nil {
			result.Failed++
			uc.logger.Warnw("failed to reconcile payment",
				"payment_id", p.ID(),
				"tx_signature", p.TxSignature(),
				"chain", p.Chain(),
				"error", err,
			)
			continue
		}
		switch outcome {
		case reconcileMissed:
			result.Missed++
		case reconcileReversed:
			result.Reversed++
		}
	}
	if len(batch) < uc.policy.BatchSize {
		// the window is exhausted; the next run starts from its oldest payment
		uc.cursor = nil
	}

	if result.Checked > 0 {
		uc.logger.Infow("payments reconciled",
			"checked", result.Checked,
			"missed", result.Missed,
			"reversed", result.Reversed,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// nextBatch reads the page after the cursor, wrapping to the start of the
// window when the cursor has run past its end.
func (uc *ReconcilePaymentsUseCase) nextBatch(ctx context.Context, chains []vo.Chain, since time.Time) ([]*payment.Payment, error) {
	if len(chains) == 0 {
		uc.cursor = nil
		return nil, nil
	}
	if uc.cursor != nil && uc.cursor.ConfirmedAt.Before(since) {
		uc.cursor = nil
	}

	query := payment.ConfirmedQuery{Chains: chains, Since: since, After: uc.cursor, Limit: uc.policy.BatchSize}
	batch, err := uc.payments.ListConfirmed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 && query.After != nil {
		uc.cursor = nil
		query.After = nil
		return uc.payments.ListConfirmed(ctx, query)
	}
	return batch, nil
}

func (uc *ReconcilePaymentsUseCase) reorgProneChains() []vo.Chain {
	var chains []vo.Chain
	for _, c := range uc.verifiers.Chains() {
		v, err := uc.verifiers.Get(c)
		if err == nil && v.Kind() == vo.ChainKindEVM {
			chains = append(chains, c)
		}
	}
	return chains
}

type reconcileOutcome int

const (
	reconcileHealthy reconcileOutcome = iota
	reconcileMissed
	reconcileReversed
)

func (uc *ReconcilePaymentsUseCase) reconcile(ctx context.Context, verifier blockchain.Verifier, p *payment.Payment, now time.Time) (reconcileOutcome, error) {
	tx, err := verifier.Fetch(ctx, p.TxSignature())
	switch {
	case stderrors.Is(err, errors.ErrTransactionNotFound), stderrors.Is(err, errors.ErrPendingConfirmation):
	case err != nil:
		return reconcileHealthy, err
	case tx != nil && tx.Succeeded:
		if p.ReconcileMisses() > 0 {
			if err := uc.payments.ClearMisses(ctx, p.ID()); err != nil {
				return reconcileHealthy, err
			}
		}
		return reconcileHealthy, nil
	}

	misses, err := uc.payments.RecordMiss(ctx, p.ID(), now)
	if err != nil {
		return reconcileHealthy, err
	}
	if misses < uc.policy.MissThreshold {
		uc.logger.Infow("payment transaction not seen, will recheck",
			"payment_id", p.ID(),
			"tx_signature", p.TxSignature(),
			"chain", p.Chain(),
			"misses", misses,
		)
		return reconcileMissed, nil
	}

	if err := uc.payments.MarkReversed(ctx, p.ID(), now); err != nil {
		return reconcileHealthy, err
	}
	if err := uc.tokens.RevokeByPaymentID(ctx, p.ID(), now); err != nil {
		return reconcileReversed, fmt.Errorf("payment reversed but token revocation failed: %w", err)
	}

	uc.logger.Warnw("payment reversed",
		"payment_id", p.ID(),
		"intent_id", p.IntentID(),
		"tx_signature", p.TxSignature(),
		"chain", p.Chain(),
		"misses", misses,
	)
	return reconcileReversed, nil
}
