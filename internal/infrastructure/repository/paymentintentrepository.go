package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/mappers"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/shared/db"
)

type PaymentIntentRepository struct {
	db *gorm.DB
}

func NewPaymentIntentRepository(db *gorm.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

func (r *PaymentIntentRepository) Create(ctx context.Context, intent *payment.PaymentIntent) error {
	model := mappers.PaymentIntentToModel(intent)

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	return nil
}

func (r *PaymentIntentRepository) GetByID(ctx context.Context, id string) (*payment.PaymentIntent, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PaymentIntentRepository) GetByReference(ctx context.Context, reference string) (*payment.PaymentIntent, error) {
	return r.first(ctx, "reference = ?", reference)
}

func (r *PaymentIntentRepository) first(ctx context.Context, query string, arg any) (*payment.PaymentIntent, error) {
	var model models.PaymentIntentModel

	if err := db.GetTxFromContext(ctx, r.db).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return mappers.PaymentIntentToDomain(&model)
}

func (r *PaymentIntentRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error) {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentIntentModel{}).
		Where("id = ? AND status = ?", id, vo.IntentStatusPending).
		Updates(map[string]any{
			"status":       vo.IntentStatusConfirmed,
			"confirmed_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to confirm payment intent: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ExpirePending flips pending intents whose window closed strictly before now.
// Intents are selected first so the batch size holds on every dialect.
func (r *PaymentIntentRepository) ExpirePending(ctx context.Context, now time.Time, limit int) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)

	var ids []string
	if err := tx.Model(&models.PaymentIntentModel{}).
		Where("status = ? AND expires_at < ?", vo.IntentStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to select expired intents: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := tx.Model(&models.PaymentIntentModel{}).
		Where("id IN ? AND status = ?", ids, vo.IntentStatusPending).
		Updates(map[string]any{
			"status":     vo.IntentStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire intents: %w", result.Error)
	}
	return result.RowsAffected, nil
}
