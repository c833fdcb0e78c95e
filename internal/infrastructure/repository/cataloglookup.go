package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/mappers"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

// CatalogLookup reads merchants and content from the tables shared with the
// merchant management service. Inactive rows resolve as missing.
type CatalogLookup struct {
	db *gorm.DB
}

func NewCatalogLookup(db *gorm.DB) *CatalogLookup {
	return &CatalogLookup{db: db}
}

func (l *CatalogLookup) GetMerchant(ctx context.Context, merchantID string) (*catalog.Merchant, error) {
	var model models.MerchantModel

	if err := l.db.WithContext(ctx).
		Where("id = ? AND active = ?", merchantID, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return mappers.MerchantToDomain(&model), nil
}

func (l *CatalogLookup) GetContent(ctx context.Context, merchantID, contentID string) (*catalog.Content, error) {
	var model models.ContentModel

	if err := l.db.WithContext(ctx).
		Where("merchant_id = ? AND id = ? AND active = ?", merchantID, contentID, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return mappers.ContentToDomain(&model)
}
