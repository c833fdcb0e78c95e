package usecases

import (
	"context"
	"strings"
	"time"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
)

type ListPayerPaymentsQuery struct {
	Payer  string
	Offset int
	Limit  int
}

type PaymentSummary struct {
	PaymentID   string
	IntentID    string
	MerchantID  string
	ContentID   string
	Chain       vo.Chain
	TxSignature string
	Amount      uint64
	Status      vo.PaymentStatus
	ConfirmedAt time.Time
}

type ListPayerPaymentsResult struct {
	Payments []PaymentSummary
	Total    int64
}

// ListPayerPaymentsUseCase lists a buyer's confirmed payments, newest
// first. It is the buyer's content library.
type ListPayerPaymentsUseCase struct {
	payments payment.PaymentRepository
}

func NewListPayerPaymentsUseCase(payments payment.PaymentRepository) *ListPayerPaymentsUseCase {
	return &ListPayerPaymentsUseCase{payments: payments}
}

func (uc *ListPayerPaymentsUseCase) Execute(ctx context.Context, query ListPayerPaymentsQuery) (*ListPayerPaymentsResult, error) {
	payer := strings.TrimSpace(query.Payer)
	if payer == "" {
		return nil, errors.NewValidationError("payer address is required")
	}
	if strings.HasPrefix(payer, "0x") {
		payer = vo.ChainKindEVM.NormalizeAddress(payer)
	}

	rows, total, err := uc.payments.ListByPayer(ctx, payer, query.Offset, query.Limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]PaymentSummary, 0, len(rows))
	for _, p := range rows {
		summaries = append(summaries, PaymentSummary{
			PaymentID:   p.ID(),
			IntentID:    p.IntentID(),
			MerchantID:  p.MerchantID(),
			ContentID:   p.ContentID(),
			Chain:       p.Chain(),
			TxSignature: p.TxSignature(),
			Amount:      p.Amount(),
			Status:      p.Status(),
			ConfirmedAt: p.ConfirmedAt(),
		})
	}
	return &ListPayerPaymentsResult{Payments: summaries, Total: total}, nil
}
