package payment

import (
	"fmt"
	"time"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/id"
)

// VerificationAttempt tracks a transaction signature that was submitted but not
// committed, either because it is still settling or because it was rejected.
type VerificationAttempt struct {
	id          string
	txSignature string
	intentID    string
	chain       vo.Chain
	outcome     vo.AttemptOutcome
	reason      string
	attempts    int
	details     map[string]any
	firstSeenAt time.Time
	lastSeenAt  time.Time
}

func NewVerificationAttempt(txSignature, intentID string, chain vo.Chain, outcome vo.AttemptOutcome, reason string, details map[string]any, now time.Time) (*VerificationAttempt, error) {
	attemptID, err := id.NewAttemptID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attempt ID: %w", err)
	}
	now = now.UTC()
	return &VerificationAttempt{
		id:          attemptID,
		txSignature: txSignature,
		intentID:    intentID,
		chain:       chain,
		outcome:     outcome,
		reason:      reason,
		attempts:    1,
		details:     details,
		firstSeenAt: now,
		lastSeenAt:  now,
	}, nil
}

// SettlementStatus maps the attempt outcome onto the externally reported status.
func (a *VerificationAttempt) SettlementStatus() vo.SettlementStatus {
	if a.outcome == vo.AttemptOutcomeRejected {
		return vo.SettlementRejected
	}
	return vo.SettlementPending
}

func (a *VerificationAttempt) ID() string                 { return a.id }
func (a *VerificationAttempt) TxSignature() string        { return a.txSignature }
func (a *VerificationAttempt) IntentID() string           { return a.intentID }
func (a *VerificationAttempt) Chain() vo.Chain            { return a.chain }
func (a *VerificationAttempt) Outcome() vo.AttemptOutcome { return a.outcome }
func (a *VerificationAttempt) Reason() string             { return a.reason }
func (a *VerificationAttempt) Attempts() int              { return a.attempts }
func (a *VerificationAttempt) Details() map[string]any    { return a.details }
func (a *VerificationAttempt) FirstSeenAt() time.Time     { return a.firstSeenAt }
func (a *VerificationAttempt) LastSeenAt() time.Time      { return a.lastSeenAt }

type AttemptReconstructParams struct {
	ID          string
	TxSignature string
	IntentID    string
	Chain       vo.Chain
	Outcome     vo.AttemptOutcome
	Reason      string
	Attempts    int
	Details     map[string]any
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

func ReconstructVerificationAttempt(p AttemptReconstructParams) *VerificationAttempt {
	return &VerificationAttempt{
		id:          p.ID,
		txSignature: p.TxSignature,
		intentID:    p.IntentID,
		chain:       p.Chain,
		outcome:     p.Outcome,
		reason:      p.Reason,
		attempts:    p.Attempts,
		details:     p.Details,
		firstSeenAt: p.FirstSeenAt,
		lastSeenAt:  p.LastSeenAt,
	}
}
