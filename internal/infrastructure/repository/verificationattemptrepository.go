package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/micropaywall/paygate/internal/domain/payment"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/mappers"
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
	"github.com/micropaywall/paygate/internal/shared/db"
)

type VerificationAttemptRepository struct {
	db *gorm.DB
}

func NewVerificationAttemptRepository(db *gorm.DB) *VerificationAttemptRepository {
	return &VerificationAttemptRepository{db: db}
}

// Record upserts on tx_signature. A repeated signature keeps its first_seen_at
// and increments the attempt counter.
func (r *VerificationAttemptRepository) Record(ctx context.Context, a *payment.VerificationAttempt) error {
	model := mappers.VerificationAttemptToModel(a)

	err := db.GetTxFromContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tx_signature"}},
			DoUpdates: clause.Assignments(map[string]any{
				"intent_id":    model.IntentID,
				"outcome":      model.Outcome,
				"reason":       model.Reason,
				"details":      model.Details,
				"last_seen_at": model.LastSeenAt,
				"attempts":     gorm.Expr("verification_attempts.attempts + 1"),
			}),
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to record verification attempt: %w", err)
	}
	return nil
}

func (r *VerificationAttemptRepository) GetBySignature(ctx context.Context, txSignature string) (*payment.VerificationAttempt, error) {
	var model models.VerificationAttemptModel

	if err := db.GetTxFromContext(ctx, r.db).Where("tx_signature = ?", txSignature).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get verification attempt: %w", err)
	}
	return mappers.VerificationAttemptToDomain(&model)
}
