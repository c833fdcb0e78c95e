// Package ledger records verified payments exactly once per transaction signature.
package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// TransactionRunner opens a unit of work shared by the repositories.
type TransactionRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CommitResult is the payment recorded for a signature. Duplicate is set when
// the signature had already been committed, by this or a concurrent call.
type CommitResult struct {
	Payment   *payment.Payment
	Duplicate bool
}

// errLostRace rolls back a transaction whose insert was skipped because a
// concurrent commit recorded the same signature first.
var errLostRace = stderrors.New("payment inserted concurrently")

type Ledger struct {
	intents  payment.IntentRepository
	payments payment.PaymentRepository
	txMgr    TransactionRunner
	clock    biztime.Clock
	logger   logger.Interface
}

func NewLedger(
	intents payment.IntentRepository,
	payments payment.PaymentRepository,
	txMgr TransactionRunner,
	clock biztime.Clock,
	log logger.Interface,
) *Ledger {
	return &Ledger{
		intents:  intents,
		payments: payments,
		txMgr:    txMgr,
		clock:    biztime.OrDefault(clock),
		logger:   log.Named("ledger"),
	}
}

// Commit inserts the payment for outcome and confirms intent in one
// transaction. The unique index on tx_signature is the only synchronization
// point: a concurrent loser observes the winner's payment as a duplicate.
func (l *Ledger) Commit(ctx context.Context, intent *payment.PaymentIntent, outcome *blockchain.Outcome) (*CommitResult, error) {
	if intent == nil || outcome == nil {
		return nil, errors.NewValidationError("intent and verification outcome are required")
	}

	var result *CommitResult
	err := l.txMgr.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := l.payments.GetBySignature(ctx, outcome.Signature)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &CommitResult{Payment: existing, Duplicate: true}
			return nil
		}

		current, err := l.intents.GetByID(ctx, intent.ID())
		if err != nil {
			return err
		}
		if current == nil {
			return errors.ErrIntentNotFound
		}

		now := l.clock()
		switch {
		case current.Status() == vo.IntentStatusConfirmed:
			l.logConsistencyFault(current, outcome, "intent already confirmed by another transaction")
			return errors.ErrIntentAlreadyConfirmed
		case current.Status() != vo.IntentStatusPending, current.IsExpiredAt(now):
			return errors.ErrIntentExpired.Wrapf("intent %s expired at %s", current.ID(), current.ExpiresAt().Format(time.RFC3339))
		}

		p, err := payment.NewPayment(payment.NewPaymentParams{
			Intent:      current,
			TxSignature: outcome.Signature,
			Payer:       outcome.Payer,
			Recipient:   outcome.Recipient,
			Amount:      outcome.Amount,
			Slot:        outcome.Slot,
			BlockTime:   outcome.BlockTime,
			ConfirmedAt: now,
		})
		if err != nil {
			return err
		}

		inserted, err := l.payments.CreateIfAbsent(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		if !inserted {
			return errLostRace
		}

		confirmed, err := l.intents.MarkConfirmed(ctx, current.ID(), now)
		if err != nil {
			return fmt.Errorf("failed to confirm intent: %w", err)
		}
		if !confirmed {
			l.logConsistencyFault(current, outcome, "intent left pending state during commit")
			return errors.ErrIntentAlreadyConfirmed
		}

		result = &CommitResult{Payment: p}
		return nil
	})

	if stderrors.Is(err, errLostRace) {
		return l.resolveLostRace(ctx, intent, outcome)
	}
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		l.logger.Infow("payment committed",
			"payment_id", result.Payment.ID(),
			"intent_id", intent.ID(),
			"tx_signature", outcome.Signature,
			"chain", outcome.Chain,
			"amount", outcome.Amount,
		)
	}
	return result, nil
}

// resolveLostRace re-reads outside the aborted transaction so the winner's
// committed row is visible under any isolation level.
func (l *Ledger) resolveLostRace(ctx context.Context, intent *payment.PaymentIntent, outcome *blockchain.Outcome) (*CommitResult, error) {
	winner, err := l.payments.GetBySignature(ctx, outcome.Signature)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		return &CommitResult{Payment: winner, Duplicate: true}, nil
	}
	// The insert conflicted on intent_id: another signature paid this intent.
	l.logConsistencyFault(intent, outcome, "intent paid by a different transaction")
	return nil, errors.ErrIntentAlreadyConfirmed
}

func (l *Ledger) logConsistencyFault(intent *payment.PaymentIntent, outcome *blockchain.Outcome, msg string) {
	l.logger.Errorw(msg,
		"intent_id", intent.ID(),
		"tx_signature", outcome.Signature,
		"chain", outcome.Chain,
		"reason", errors.ReasonIntentAlreadyConfirmed,
	)
}
