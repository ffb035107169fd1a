package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Order is an immutable record of an executed trade. ProfitLoss is
// only populated for sells; buys carry a null value.
type Order struct {
	gorm.Model
	AccountID  uint                `gorm:"index;not null" json:"account_id"`
	Symbol     string              `gorm:"not null" json:"symbol"`
	Side       string              `gorm:"not null" json:"side"` // "BUY" or "SELL"
	Quantity   int64               `gorm:"not null" json:"quantity"`
	Price      decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"price"`
	ProfitLoss decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"profit_loss"`
	Timestamp  int64               `gorm:"index" json:"timestamp"`
}
