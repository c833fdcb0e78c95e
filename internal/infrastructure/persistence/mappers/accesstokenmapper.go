package mappers

import (
	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

func AccessTokenToModel(t *accesstoken.AccessToken) *models.AccessTokenModel {
	return &models.AccessTokenModel{
		ID:         t.ID(),
		JTI:        t.JTI(),
		PaymentID:  t.PaymentID(),
		Token:      t.Token(),
		MerchantID: t.MerchantID(),
		ContentID:  t.ContentID(),
		SingleUse:  t.SingleUse(),
		IssuedAt:   t.IssuedAt(),
		ExpiresAt:  t.ExpiresAt(),
		RedeemedAt: t.RedeemedAt(),
		RevokedAt:  t.RevokedAt(),
	}
}

func AccessTokenToDomain(m *models.AccessTokenModel) *accesstoken.AccessToken {
	return accesstoken.ReconstructAccessToken(accesstoken.ReconstructParams{
		ID:         m.ID,
		JTI:        m.JTI,
		Token:      m.Token,
		MerchantID: m.MerchantID,
		ContentID:  m.ContentID,
		PaymentID:  m.PaymentID,
		SingleUse:  m.SingleUse,
		IssuedAt:   m.IssuedAt.UTC(),
		ExpiresAt:  m.ExpiresAt.UTC(),
		RedeemedAt: utcPtr(m.RedeemedAt),
		RevokedAt:  utcPtr(m.RevokedAt),
	})
}
