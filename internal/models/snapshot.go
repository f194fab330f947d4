package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Snapshot is a stored copy of the metrics computed for one /orders request.
// Decimals are kept as text so sqlite does not coerce them to REAL.
type Snapshot struct {
	gorm.Model
	RequestID                    string          `gorm:"index" json:"requestId"`
	Symbol                       string          `gorm:"index;not null" json:"symbol"`
	BaseAsset                    string          `json:"baseAsset"`
	OrderCount                   int             `json:"orderCount"`
	TradeCount                   int             `json:"tradeCount"`
	TotalPurchased               decimal.Decimal `gorm:"type:text" json:"totalPurchased"`
	TotalSold                    decimal.Decimal `gorm:"type:text" json:"totalSold"`
	NetBalance                   decimal.Decimal `gorm:"type:text" json:"netBalance"`
	WeightedAveragePurchasePrice decimal.Decimal `gorm:"type:text" json:"weightedAveragePurchasePrice"`
	CurrentPrice                 decimal.Decimal `gorm:"type:text" json:"currentPrice"`
	CurrentPositionValue         decimal.Decimal `gorm:"type:text" json:"currentPositionValue"`
	UnrealizedPnL                decimal.Decimal `gorm:"type:text" json:"unrealizedPnL"`
	PercentageReturn             decimal.Decimal `gorm:"type:text" json:"percentageReturn"`
}
