package models

import "time"

// Amounts are stored as decimal strings: EVM values overflow signed 64-bit columns.
type PaymentIntentModel struct {
	ID                string    `gorm:"primaryKey;size:32"`
	MerchantID        string    `gorm:"index:idx_intents_scope;size:64;not null"`
	ContentID         string    `gorm:"index:idx_intents_scope;size:64;not null"`
	Chain             string    `gorm:"size:20;not null"`
	ExpectedRecipient string    `gorm:"size:128;not null"`
	Amount            string    `gorm:"size:78;not null"`
	Currency          string    `gorm:"size:16;not null"`
	Reference         string    `gorm:"uniqueIndex;size:128;not null"`
	Status            string    `gorm:"index:idx_intents_status_expires;size:20;not null"`
	ExpiresAt         time.Time `gorm:"index:idx_intents_status_expires;not null"`
	ConfirmedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (PaymentIntentModel) TableName() string {
	return "payment_intents"
}
