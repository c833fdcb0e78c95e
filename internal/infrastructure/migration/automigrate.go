package migration

import (
	"github.com/micropaywall/paygate/internal/infrastructure/persistence/models"
)

// AutoMigrateModels lists every table the engine owns or reads.
func AutoMigrateModels() []any {
	return []any{
		&models.MerchantModel{},
		&models.ContentModel{},
		&models.PaymentIntentModel{},
		&models.PaymentModel{},
		&models.VerificationAttemptModel{},
		&models.AccessTokenModel{},
	}
}
