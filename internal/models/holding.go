package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding represents an account's current position in one symbol.
// A holding only exists while its quantity is positive; selling a
// position down to zero deletes the row.
type Holding struct {
	gorm.Model
	AccountID uint            `gorm:"uniqueIndex:idx_account_symbol;not null" json:"account_id"`
	Symbol    string          `gorm:"uniqueIndex:idx_account_symbol;not null" json:"symbol"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	AvgCost   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"avg_cost"`
}
