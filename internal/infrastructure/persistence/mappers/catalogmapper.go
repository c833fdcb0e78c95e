package mappers

import (
	"time"

	"github.com/micropaywall/paygate/internal/domain/catalog"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

func MerchantToDomain(m *models.MerchantModel) *catalog.Merchant {
	stored := m.PayoutAddresses.Data()
	addrs := make(map[vo.Chain]string, len(stored))
	for chain, addr := range stored {
		addrs[vo.Chain(chain)] = addr
	}
	return &catalog.Merchant{
		ID:              m.ID,
		Name:            m.Name,
		PayoutAddresses: addrs,
		Active:          m.Active,
	}
}

func ContentToDomain(m *models.ContentModel) (*catalog.Content, error) {
	price, err := parseAmount(m.Price)
	if err != nil {
		return nil, err
	}
	return &catalog.Content{
		ID:             m.ID,
		MerchantID:     m.MerchantID,
		Title:          m.Title,
		Chain:          vo.Chain(m.Chain),
		Price:          price,
		Currency:       m.Currency,
		AccessDuration: time.Duration(m.AccessDurationSeconds) * time.Second,
		Permanent:      m.Permanent,
		SingleUse:      m.SingleUse,
		Active:         m.Active,
	}, nil
}
