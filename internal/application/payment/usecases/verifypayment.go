package usecases

import (
	"context"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
)

const (
	outcomeConfirmed = "confirmed"
	outcomeDuplicate = "duplicate"
)

type VerifyPaymentCommand struct {
	TxSignature string
	MerchantID  string
	ContentID   string
	// IntentID is optional. Without it the intent is located through the
	// references the transaction carries.
	IntentID string
}

type VerifyPaymentResult struct {
	Success bool
	// Duplicate is set when the signature had already been committed.
	Duplicate   bool
	PaymentID   string
	IntentID    string
	AccessToken *accesstoken.AccessToken
}

// VerifyPaymentUseCase checks a submitted transaction against an intent,
// commits it through the ledger and returns the payment's access token.
// Submitting the same signature again yields the same token.
type VerifyPaymentUseCase struct {
	intents   payment.IntentRepository
	payments  payment.PaymentRepository
	attempts  payment.AttemptRepository
	catalog   contentLookup
	verifiers blockchain.Resolver
	ledger    Committer
	issuer    TokenIssuer
	recorder  metrics.Recorder
	clock     biztime.Clock
	logger    logger.Interface
}

func NewVerifyPaymentUseCase(
	intents payment.IntentRepository,
	payments payment.PaymentRepository,
	attempts payment.AttemptRepository,
	lookup catalog.Lookup,
	verifiers blockchain.Resolver,
	ledger Committer,
	issuer TokenIssuer,
	recorder metrics.Recorder,
	clock biztime.Clock,
	logger logger.Interface,
) *VerifyPaymentUseCase {
	return &VerifyPaymentUseCase{
		intents:   intents,
		payments:  payments,
		attempts:  attempts,
		catalog:   lookup,
		verifiers: verifiers,
		ledger:    ledger,
		issuer:    issuer,
		recorder:  metrics.OrNoop(recorder),
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

func (uc *VerifyPaymentUseCase) Execute(ctx context.Context, cmd VerifyPaymentCommand) (*VerifyPaymentResult, error) {
	if cmd.TxSignature == "" {
		return nil, errors.NewValidationError("transaction signature is required")
	}
	if cmd.MerchantID == "" || cmd.ContentID == "" {
		return nil, errors.NewValidationError("merchant ID and content ID are required")
	}

	started := uc.clock()

	existing, err := uc.payments.GetBySignature(ctx, cmd.TxSignature)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		result, err := uc.replay(ctx, cmd, existing)
		uc.observe(existing.Chain(), started, err, true)
		return result, err
	}

	content, err := uc.catalog.GetContent(ctx, cmd.MerchantID, cmd.ContentID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.ErrContentNotFound.Wrapf("content %s", cmd.ContentID)
	}

	// an explicit intent fixes the chain it was quoted on, even if the
	// content has since moved to another chain
	chain := content.Chain
	var intent *payment.PaymentIntent
	if cmd.IntentID != "" {
		intent, err = uc.explicitIntent(ctx, cmd)
		if err != nil {
			uc.recordAttempt(ctx, cmd, chain, cmd.IntentID, err)
			uc.observe(chain, started, err, false)
			return nil, err
		}
		chain = intent.Chain()
	}

	outcome, intent, err := uc.verify(ctx, cmd, chain, intent)
	if err != nil {
		uc.recordAttempt(ctx, cmd, chain, intentIDOf(intent, cmd.IntentID), err)
		uc.observe(chain, started, err, false)
		return nil, err
	}

	committed, err := uc.ledger.Commit(ctx, intent, outcome)
	if err != nil {
		if errors.ReasonOf(err) == errors.ReasonIntentExpired {
			uc.logger.Warnw("late payment rejected",
				"intent_id", intent.ID(),
				"tx_signature", cmd.TxSignature,
				"chain", chain,
				"expires_at", intent.ExpiresAt(),
			)
		}
		uc.recordAttempt(ctx, cmd, chain, intent.ID(), err)
		uc.observe(chain, started, err, false)
		return nil, err
	}

	token, err := uc.issuer.Execute(ctx, tokenusecases.IssueAccessTokenCommand{Payment: committed.Payment, Content: content})
	if err != nil {
		return nil, err
	}

	uc.observe(chain, started, nil, committed.Duplicate)
	return &VerifyPaymentResult{
		Success:     true,
		Duplicate:   committed.Duplicate,
		PaymentID:   committed.Payment.ID(),
		IntentID:    committed.Payment.IntentID(),
		AccessToken: token,
	}, nil
}

// replay answers a signature the ledger already holds.
func (uc *VerifyPaymentUseCase) replay(ctx context.Context, cmd VerifyPaymentCommand, existing *payment.Payment) (*VerifyPaymentResult, error) {
	if !existing.SameScope(cmd.MerchantID, cmd.ContentID) {
		return nil, errors.ErrReferenceMismatch.Wrapf("transaction paid for different content")
	}
	if cmd.IntentID != "" && cmd.IntentID != existing.IntentID() {
		return nil, errors.ErrIntentAlreadyConfirmed.Wrapf("transaction confirmed intent %s", existing.IntentID())
	}
	if existing.Status() == vo.PaymentStatusReversed {
		return nil, errors.ErrTransactionFailed.Wrapf("payment reversed")
	}

	content, err := uc.catalog.GetContent(ctx, cmd.MerchantID, cmd.ContentID)
	if err != nil {
		return nil, err
	}
	token, err := uc.issuer.Execute(ctx, tokenusecases.IssueAccessTokenCommand{Payment: existing, Content: content})
	if err != nil {
		return nil, err
	}
	return &VerifyPaymentResult{
		Success:     true,
		Duplicate:   true,
		PaymentID:   existing.ID(),
		IntentID:    existing.IntentID(),
		AccessToken: token,
	}, nil
}

func (uc *VerifyPaymentUseCase) explicitIntent(ctx context.Context, cmd VerifyPaymentCommand) (*payment.PaymentIntent, error) {
	intent, err := uc.intents.GetByID(ctx, cmd.IntentID)
	if err != nil {
		return nil, err
	}
	if intent == nil || !intent.Matches(cmd.MerchantID, cmd.ContentID) {
		return nil, errors.ErrIntentNotFound.Wrapf("intent %s", cmd.IntentID)
	}
	return intent, nil
}

// verify checks the transaction against intent, or locates the intent from
// the transaction's references when none was given.
func (uc *VerifyPaymentUseCase) verify(ctx context.Context, cmd VerifyPaymentCommand, chain vo.Chain, intent *payment.PaymentIntent) (*blockchain.Outcome, *payment.PaymentIntent, error) {
	verifier, err := uc.verifiers.Get(chain)
	if err != nil {
		return nil, intent, err
	}

	if intent != nil {
		outcome, err := verifier.Verify(ctx, cmd.TxSignature, intent)
		return outcome, intent, err
	}

	tx, err := verifier.Fetch(ctx, cmd.TxSignature)
	if err != nil {
		return nil, nil, err
	}
	intent, err = uc.locateIntent(ctx, tx, cmd.MerchantID, cmd.ContentID)
	if err != nil {
		return nil, nil, err
	}
	if intent == nil {
		switch {
		case !tx.Final:
			return nil, nil, errors.ErrPendingConfirmation.Wrapf("%d confirmations", tx.Confirmations)
		case !verifier.SupportsReference():
			return nil, nil, errors.ErrReferenceUnverifiable.Wrapf("chain %s", chain)
		default:
			return nil, nil, errors.ErrReferenceMismatch.Wrapf("transaction references no intent for this content")
		}
	}

	outcome, err := blockchain.Evaluate(tx, intent, verifier.SupportsReference())
	return outcome, intent, err
}

// locateIntent returns the first referenced intent that belongs to the
// merchant/content pair.
func (uc *VerifyPaymentUseCase) locateIntent(ctx context.Context, tx *blockchain.Transaction, merchantID, contentID string) (*payment.PaymentIntent, error) {
	for _, ref := range tx.References {
		intent, err := uc.intents.GetByReference(ctx, ref)
		if err != nil {
			return nil, err
		}
		if intent != nil && intent.Matches(merchantID, contentID) {
			return intent, nil
		}
	}
	return nil, nil
}

// recordAttempt keeps the outcome of a verification that did not commit so
// payment-status can report it. Only payment failures are recorded.
func (uc *VerifyPaymentUseCase) recordAttempt(ctx context.Context, cmd VerifyPaymentCommand, chain vo.Chain, intentID string, cause error) {
	payErr := errors.GetPaymentError(cause)
	if payErr == nil {
		return
	}

	outcome := vo.AttemptOutcomeRejected
	if payErr.Retryable {
		outcome = vo.AttemptOutcomePending
	}
	details := map[string]any{
		"merchant_id": cmd.MerchantID,
		"content_id":  cmd.ContentID,
	}
	if payErr.Details != "" {
		details["details"] = payErr.Details
	}

	attempt, err := payment.NewVerificationAttempt(cmd.TxSignature, intentID, chain, outcome, string(payErr.Reason), details, uc.clock())
	if err != nil {
		uc.logger.Errorw("failed to build verification attempt", "tx_signature", cmd.TxSignature, "error", err)
		return
	}
	if err := uc.attempts.Record(ctx, attempt); err != nil {
		uc.logger.Errorw("failed to record verification attempt", "tx_signature", cmd.TxSignature, "error", err)
		return
	}

	uc.logger.Debugw("verification attempt recorded",
		"tx_signature", cmd.TxSignature,
		"intent_id", intentID,
		"outcome", outcome,
		"reason", payErr.Reason,
	)
}

func (uc *VerifyPaymentUseCase) observe(chain vo.Chain, started time.Time, err error, duplicate bool) {
	reason := outcomeConfirmed
	switch {
	case err != nil:
		reason = string(errors.ReasonOf(err))
		if reason == "" {
			reason = "internal_error"
		}
	case duplicate:
		reason = outcomeDuplicate
	}

	labels := map[string]string{metrics.LabelChain: chain.String(), metrics.LabelReason: reason}
	uc.recorder.IncCounter(metrics.VerificationOutcome, labels)
	uc.recorder.ObserveLatency(metrics.VerificationOutcome, uc.clock().Sub(started), map[string]string{
		metrics.LabelChain:   chain.String(),
		metrics.LabelOutcome: reason,
	})
}

func intentIDOf(intent *payment.PaymentIntent, fallback string) string {
	if intent != nil {
		return intent.ID()
	}
	return fallback
}
