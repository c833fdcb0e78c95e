package models

import "time"

type PaymentModel struct {
	ID          string `gorm:"primaryKey;size:32"`
	IntentID    string `gorm:"uniqueIndex;size:32;not null"`
	MerchantID  string `gorm:"size:64;not null"`
	ContentID   string `gorm:"size:64;not null"`
	Chain       string `gorm:"size:20;not null"`
	TxSignature string `gorm:"uniqueIndex;size:128;not null"`
	Payer       string `gorm:"index;size:128;not null"`
	Recipient   string `gorm:"size:128;not null"`
	Amount      string `gorm:"size:78;not null"`
	Slot        uint64
	BlockTime   *time.Time
	Status      string    `gorm:"index:idx_payments_status_confirmed;size:20;not null"`
	ConfirmedAt time.Time `gorm:"index:idx_payments_status_confirmed;not null"`
	ReversedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// ReconcileMisses counts consecutive reconcile checks that did not find
	// the transaction.
	ReconcileMisses int `gorm:"not null;default:0"`
	LastMissedAt    *time.Time
}

func (PaymentModel) TableName() string {
	return "payments"
}
