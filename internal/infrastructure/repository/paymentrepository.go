package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/mappers"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/shared/db"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateIfAbsent relies on the unique indexes on tx_signature and intent_id.
// A conflict on either leaves the table untouched and reports false.
func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (bool, error) {
	model := mappers.PaymentToModel(p)

	result := db.GetTxFromContext(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create payment: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepository) GetBySignature(ctx context.Context, txSignature string) (*payment.Payment, error) {
	return r.first(ctx, "tx_signature = ?", txSignature)
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*payment.Payment, error) {
	return r.first(ctx, "intent_id = ?", intentID)
}

func (r *PaymentRepository) first(ctx context.Context, query string, arg any) (*payment.Payment, error) {
	var model models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return mappers.PaymentToDomain(&model)
}

// ListByPayer returns the payer's confirmed payments, newest first.
func (r *PaymentRepository) ListByPayer(ctx context.Context, payer string, offset, limit int) ([]*payment.Payment, int64, error) {
	query := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("payer = ? AND status = ?", payer, vo.PaymentStatusConfirmed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []models.PaymentModel
	if err := query.Order("confirmed_at DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	payments, err := mappers.PaymentsToDomain(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListConfirmed returns nothing when query.Chains is empty.
func (r *PaymentRepository) ListConfirmed(ctx context.Context, query payment.ConfirmedQuery) ([]*payment.Payment, error) {
	if len(query.Chains) == 0 || query.Limit <= 0 {
		return nil, nil
	}
	chains := make([]string, 0, len(query.Chains))
	for _, c := range query.Chains {
		chains = append(chains, c.String())
	}

	tx := db.GetTxFromContext(ctx, r.db).
		Where("status = ? AND confirmed_at >= ? AND chain IN ?", vo.PaymentStatusConfirmed, query.Since, chains)
	if after := query.After; after != nil {
		tx = tx.Where("(confirmed_at > ? OR (confirmed_at = ? AND id > ?))", after.ConfirmedAt, after.ConfirmedAt, after.ID)
	}

	var rows []models.PaymentModel
	if err := tx.Order("confirmed_at ASC").Order("id ASC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list confirmed payments: %w", err)
	}
	return mappers.PaymentsToDomain(rows)
}

func (r *PaymentRepository) MarkReversed(ctx context.Context, id string, at time.Time) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("id = ? AND status = ?", id, vo.PaymentStatusConfirmed).
		Updates(map[string]any{
			"status":      vo.PaymentStatusReversed,
			"reversed_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reverse payment: %w", result.Error)
	}
	return nil
}

func (r *PaymentRepository) RecordMiss(ctx context.Context, id string, at time.Time) (int, error) {
	tx := db.GetTxFromContext(ctx, r.db)

	if err := tx.Model(&models.PaymentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reconcile_misses": gorm.Expr("reconcile_misses + 1"),
			"last_missed_at":   at,
		}).Error; err != nil {
		return 0, fmt.Errorf("failed to record reconcile miss: %w", err)
	}

	var misses []int
	if err := tx.Model(&models.PaymentModel{}).Where("id = ?", id).Pluck("reconcile_misses", &misses).Error; err != nil {
		return 0, fmt.Errorf("failed to read reconcile misses: %w", err)
	}
	if len(misses) == 0 {
		return 0, fmt.Errorf("payment %s not found", id)
	}
	return misses[0], nil
}

func (r *PaymentRepository) ClearMisses(ctx context.Context, id string) error {
	if err := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("id = ? AND reconcile_misses > 0", id).
		Updates(map[string]any{
			"reconcile_misses": 0,
			"last_missed_at":   nil,
		}).Error; err != nil {
		return fmt.Errorf("failed to clear reconcile misses: %w", err)
	}
	return nil
}
