package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account represents a registered paper-trading account.
// The secret is stored as a bcrypt hash, never in plain text.
type Account struct {
	gorm.Model
	Username     string          `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string          `gorm:"not null" json:"-"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance"`
	AccountType  string          `gorm:"default:demo" json:"account_type"`
}
