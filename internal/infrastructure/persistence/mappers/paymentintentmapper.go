package mappers

import (
	"fmt"
	"strconv"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

func PaymentIntentToModel(i *payment.PaymentIntent) *models.PaymentIntentModel {
	return &models.PaymentIntentModel{
		ID:                i.ID(),
		MerchantID:        i.MerchantID(),
		ContentID:         i.ContentID(),
		Chain:             i.Chain().String(),
		ExpectedRecipient: i.ExpectedRecipient(),
		Amount:            formatAmount(i.Amount()),
		Currency:          i.Currency(),
		Reference:         i.Reference(),
		Status:            i.Status().String(),
		ExpiresAt:         i.ExpiresAt(),
		ConfirmedAt:       i.ConfirmedAt(),
		CreatedAt:         i.CreatedAt(),
		UpdatedAt:         i.UpdatedAt(),
	}
}

func PaymentIntentToDomain(m *models.PaymentIntentModel) (*payment.PaymentIntent, error) {
	status := vo.IntentStatus(m.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid intent status: %s", m.Status)
	}
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	return payment.ReconstructPaymentIntent(payment.IntentReconstructParams{
		ID:                m.ID,
		MerchantID:        m.MerchantID,
		ContentID:         m.ContentID,
		Chain:             vo.Chain(m.Chain),
		ExpectedRecipient: m.ExpectedRecipient,
		Amount:            amount,
		Currency:          m.Currency,
		Reference:         m.Reference,
		Status:            status,
		CreatedAt:         m.CreatedAt.UTC(),
		ExpiresAt:         m.ExpiresAt.UTC(),
		ConfirmedAt:       utcPtr(m.ConfirmedAt),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}), nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return v, nil
}
