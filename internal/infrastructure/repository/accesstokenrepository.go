package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/mappers"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/shared/db"
)

type AccessTokenRepository struct {
	db *gorm.DB
}

func NewAccessTokenRepository(db *gorm.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// CreateIfAbsent relies on the unique index on payment_id.
func (r *AccessTokenRepository) CreateIfAbsent(ctx context.Context, t *accesstoken.AccessToken) (bool, error) {
	model := mappers.AccessTokenToModel(t)

	result := db.GetTxFromContext(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create access token: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *AccessTokenRepository) GetByPaymentID(ctx context.Context, paymentID string) (*accesstoken.AccessToken, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

func (r *AccessTokenRepository) GetByJTI(ctx context.Context, jti string) (*accesstoken.AccessToken, error) {
	return r.first(ctx, "jti = ?", jti)
}

func (r *AccessTokenRepository) first(ctx context.Context, query string, arg any) (*accesstoken.AccessToken, error) {
	var model models.AccessTokenModel

	if err := db.GetTxFromContext(ctx, r.db).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return mappers.AccessTokenToDomain(&model), nil
}

// MarkRedeemed is a compare-and-set on redeemed_at; exactly one concurrent
// caller observes true.
func (r *AccessTokenRepository) MarkRedeemed(ctx context.Context, jti string, at time.Time) (bool, error) {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.AccessTokenModel{}).
		Where("jti = ? AND redeemed_at IS NULL AND revoked_at IS NULL", jti).
		Update("redeemed_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("failed to redeem access token: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *AccessTokenRepository) RevokeByPaymentID(ctx context.Context, paymentID string, at time.Time) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.AccessTokenModel{}).
		Where("payment_id = ? AND revoked_at IS NULL", paymentID).
		Update("revoked_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke access token: %w", result.Error)
	}
	return nil
}
