// Package report joins the exchange reads for a trading pair with the
// portfolio metrics derived from them.
package report

import (
	"binance-portfolio-api/internal/models"
	"binance-portfolio-api/internal/portfolio"
)

// Report is the response body of GET /orders.
type Report struct {
	Pair      string            `json:"pair"`
	Orders    OrderList         `json:"orders"`
	Trades    TradeList         `json:"trades"`
	Portfolio portfolio.Metrics `json:"portfolio"`
}

// OrderList is a counted list of orders.
type OrderList struct {
	Total int            `json:"total"`
	Data  []models.Order `json:"data"`
}

// TradeList is a counted list of trades.
type TradeList struct {
	Total int            `json:"total"`
	Data  []models.Trade `json:"data"`
}

// Assemble merges the passthrough records and metrics into one report.
func Assemble(pair string, orders []models.Order, trades []models.Trade, metrics portfolio.Metrics) *Report {
	if orders == nil {
		orders = []models.Order{}
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	return &Report{
		Pair:      pair,
		Orders:    OrderList{Total: len(orders), Data: orders},
		Trades:    TradeList{Total: len(trades), Data: trades},
		Portfolio: metrics,
	}
}

// Snapshot copies the report's metrics into a storable row.
func (r *Report) Snapshot(requestID, baseAsset string) *models.Snapshot {
	m := r.Portfolio
	return &models.Snapshot{
		RequestID:                    requestID,
		Symbol:                       r.Pair,
		BaseAsset:                    baseAsset,
		OrderCount:                   r.Orders.Total,
		TradeCount:                   r.Trades.Total,
		TotalPurchased:               m.TotalPurchased,
		TotalSold:                    m.TotalSold,
		NetBalance:                   m.NetBalance,
		WeightedAveragePurchasePrice: m.WeightedAveragePurchasePrice,
		CurrentPrice:                 m.CurrentPrice,
		CurrentPositionValue:         m.CurrentPositionValue,
		UnrealizedPnL:                m.UnrealizedPnL,
		PercentageReturn:             m.PercentageReturn,
	}
}
