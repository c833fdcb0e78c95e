package models

import (
	"time"

	"gorm.io/datatypes"
)

// MerchantModel is the engine's read-only view of a merchant. Rows are owned
// by the merchant management service.
type MerchantModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:255;not null"`
	PayoutAddresses datatypes.JSONType[map[string]string]
	Active          bool `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (MerchantModel) TableName() string {
	return "merchants"
}

type ContentModel struct {
	ID                    string `gorm:"primaryKey;size:64"`
	MerchantID            string `gorm:"primaryKey;size:64"`
	Title                 string `gorm:"size:255"`
	Chain                 string `gorm:"size:20;not null"`
	Price                 string `gorm:"size:78;not null"`
	Currency              string `gorm:"size:16;not null"`
	AccessDurationSeconds int64
	Permanent             bool
	SingleUse             *bool
	Active                bool `gorm:"not null;default:true"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (ContentModel) TableName() string {
	return "contents"
}
