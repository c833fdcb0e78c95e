package mappers

import (
	"fmt"
	"time"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

func PaymentToModel(p *payment.Payment) *models.PaymentModel {
	return &models.PaymentModel{
		ID:          p.ID(),
		IntentID:    p.IntentID(),
		MerchantID:  p.MerchantID(),
		ContentID:   p.ContentID(),
		Chain:       p.Chain().String(),
		TxSignature: p.TxSignature(),
		Payer:       p.Payer(),
		Recipient:   p.Recipient(),
		Amount:      formatAmount(p.Amount()),
		Slot:        p.Slot(),
		BlockTime:   p.BlockTime(),
		Status:      p.Status().String(),
		ConfirmedAt: p.ConfirmedAt(),
		ReversedAt:  p.ReversedAt(),
	}
}

func PaymentToDomain(m *models.PaymentModel) (*payment.Payment, error) {
	status := vo.PaymentStatus(m.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid payment status: %s", m.Status)
	}
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	return payment.ReconstructPayment(payment.PaymentReconstructParams{
		ID:          m.ID,
		IntentID:    m.IntentID,
		MerchantID:  m.MerchantID,
		ContentID:   m.ContentID,
		Chain:       vo.Chain(m.Chain),
		TxSignature: m.TxSignature,
		Payer:       m.Payer,
		Recipient:   m.Recipient,
		Amount:      amount,
		Slot:        m.Slot,
		BlockTime:   utcPtr(m.BlockTime),
		Status:      status,
		ConfirmedAt: m.ConfirmedAt.UTC(),
		ReversedAt:  utcPtr(m.ReversedAt),

		ReconcileMisses: m.ReconcileMisses,
	}), nil
}

func PaymentsToDomain(ms []models.PaymentModel) ([]*payment.Payment, error) {
	out := make([]*payment.Payment, 0, len(ms))
	for i := range ms {
		p, err := PaymentToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
