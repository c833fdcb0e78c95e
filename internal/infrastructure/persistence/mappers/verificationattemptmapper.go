package mappers

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

func VerificationAttemptToModel(a *payment.VerificationAttempt) *models.VerificationAttemptModel {
	m := &models.VerificationAttemptModel{
		ID:          a.ID(),
		TxSignature: a.TxSignature(),
		IntentID:    a.IntentID(),
		Chain:       a.Chain().String(),
		Outcome:     a.Outcome().String(),
		Reason:      a.Reason(),
		Attempts:    a.Attempts(),
		FirstSeenAt: a.FirstSeenAt(),
		LastSeenAt:  a.LastSeenAt(),
	}
	if len(a.Details()) > 0 {
		m.Details = datatypes.JSONMap(a.Details())
	}
	return m
}

func VerificationAttemptToDomain(m *models.VerificationAttemptModel) (*payment.VerificationAttempt, error) {
	outcome := vo.AttemptOutcome(m.Outcome)
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid attempt outcome: %s", m.Outcome)
	}

	return payment.ReconstructVerificationAttempt(payment.AttemptReconstructParams{
		ID:          m.ID,
		TxSignature: m.TxSignature,
		IntentID:    m.IntentID,
		Chain:       vo.Chain(m.Chain),
		Outcome:     outcome,
		Reason:      m.Reason,
		Attempts:    m.Attempts,
		Details:     map[string]any(m.Details),
		FirstSeenAt: m.FirstSeenAt.UTC(),
		LastSeenAt:  m.LastSeenAt.UTC(),
	}), nil
}
