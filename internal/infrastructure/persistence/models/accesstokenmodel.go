package models

import "time"

type AccessTokenModel struct {
	ID         string    `gorm:"primaryKey;size:32"`
	JTI        string    `gorm:"uniqueIndex;size:64;not null"`
	PaymentID  string    `gorm:"uniqueIndex;size:32;not null"`
	Token      string    `gorm:"type:text;not null"`
	MerchantID string    `gorm:"size:64;not null"`
	ContentID  string    `gorm:"size:64;not null"`
	SingleUse  bool      `gorm:"not null"`
	IssuedAt   time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	RedeemedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

func (AccessTokenModel) TableName() string {
	return "access_tokens"
}
