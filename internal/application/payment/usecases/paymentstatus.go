package usecases

import (
	"context"
	"time"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
)

type PaymentStatusResult struct {
	TxSignature string
	Status      vo.SettlementStatus
	// Reason is the failure reason of a pending or rejected attempt.
	Reason    string
	PaymentID string
	IntentID  string
	Chain     vo.Chain
	Attempts  int
	UpdatedAt *time.Time
}

// GetPaymentStatusUseCase reports how far a submitted signature got. It never
// contacts the chain.
type GetPaymentStatusUseCase struct {
	payments payment.PaymentRepository
	attempts payment.AttemptRepository
}

func NewGetPaymentStatusUseCase(payments payment.PaymentRepository, attempts payment.AttemptRepository) *GetPaymentStatusUseCase {
	return &GetPaymentStatusUseCase{payments: payments, attempts: attempts}
}

func (uc *GetPaymentStatusUseCase) Execute(ctx context.Context, txSignature string) (*PaymentStatusResult, error) {
	if txSignature == "" {
		return nil, errors.NewValidationError("transaction signature is required")
	}

	p, err := uc.payments.GetBySignature(ctx, txSignature)
	if err != nil {
		return nil, err
	}
	if p != nil {
		result := &PaymentStatusResult{
			TxSignature: txSignature,
			Status:      vo.SettlementConfirmed,
			PaymentID:   p.ID(),
			IntentID:    p.IntentID(),
			Chain:       p.Chain(),
		}
		confirmedAt := p.ConfirmedAt()
		result.UpdatedAt = &confirmedAt
		if p.Status() == vo.PaymentStatusReversed {
			result.Status = vo.SettlementRejected
			result.Reason = "payment_reversed"
			result.UpdatedAt = p.ReversedAt()
		}
		return result, nil
	}

	attempt, err := uc.attempts.GetBySignature(ctx, txSignature)
	if err != nil {
		return nil, err
	}
	if attempt != nil {
		lastSeen := attempt.LastSeenAt()
		return &PaymentStatusResult{
			TxSignature: txSignature,
			Status:      attempt.SettlementStatus(),
			Reason:      attempt.Reason(),
			IntentID:    attempt.IntentID(),
			Chain:       attempt.Chain(),
			Attempts:    attempt.Attempts(),
			UpdatedAt:   &lastSeen,
		}, nil
	}

	return &PaymentStatusResult{TxSignature: txSignature, Status: vo.SettlementUnknown}, nil
}
