package models

import (
	"time"

	"gorm.io/datatypes"
)

type VerificationAttemptModel struct {
	ID          string `gorm:"primaryKey;size:32"`
	TxSignature string `gorm:"uniqueIndex;size:128;not null"`
	IntentID    string `gorm:"index;size:32"`
	Chain       string `gorm:"size:20;not null"`
	Outcome     string `gorm:"size:20;not null"`
	Reason      string `gorm:"size:64"`
	Attempts    int    `gorm:"not null;default:1"`
	Details     datatypes.JSONMap
	FirstSeenAt time.Time `gorm:"not null"`
	LastSeenAt  time.Time `gorm:"not null"`
}

func (VerificationAttemptModel) TableName() string {
	return "verification_attempts"
}
