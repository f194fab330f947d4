// Package portfolio derives cost-basis and performance figures for a single
// trading pair from its trade history.
package portfolio

import (
	"encoding/json"

	"binance-portfolio-api/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position is the result of folding a trade history into buy and sell totals.
type Position struct {
	// TotalPurchased is the bought quantity net of commissions paid in the base asset.
	TotalPurchased decimal.Decimal
	// TotalSold is the sold quantity plus commissions paid in the base asset.
	TotalSold decimal.Decimal
	// TotalPurchaseCost is the sum of price × raw quantity over all buys.
	TotalPurchaseCost decimal.Decimal
}

// Accumulate folds trades into a Position. A commission only adjusts the
// quantity when it was charged in baseAsset; commissions in any other asset
// leave the raw quantity untouched.
func Accumulate(trades []models.Trade, baseAsset string) Position {
	var p Position
	for _, t := range trades {
		qty := t.Quantity.Decimal
		feeInBase := t.CommissionAsset == baseAsset

		switch t.Side() {
		case models.SideBuy:
			if feeInBase {
				qty = qty.Sub(t.Commission.Decimal)
			}
			p.TotalPurchased = p.TotalPurchased.Add(qty)
			p.TotalPurchaseCost = p.TotalPurchaseCost.Add(t.Price.Mul(t.Quantity.Decimal))
		case models.SideSell:
			if feeInBase {
				qty = qty.Add(t.Commission.Decimal)
			}
			p.TotalSold = p.TotalSold.Add(qty)
		}
	}
	return p
}

// NetBalance is the quantity of the base asset still held.
func (p Position) NetBalance() decimal.Decimal {
	return p.TotalPurchased.Sub(p.TotalSold)
}

// WeightedAveragePurchasePrice is the total buy cost per effective unit bought,
// or zero when nothing was bought.
func (p Position) WeightedAveragePurchasePrice() decimal.Decimal {
	if !p.TotalPurchased.IsPositive() {
		return decimal.Zero
	}
	return p.TotalPurchaseCost.Div(p.TotalPurchased)
}

// Valuate marks the position to currentPrice.
func (p Position) Valuate(currentPrice decimal.Decimal) Metrics {
	net := p.NetBalance()
	avg := p.WeightedAveragePurchasePrice()

	pct := decimal.Zero
	if avg.IsPositive() {
		pct = currentPrice.Div(avg).Sub(decimal.NewFromInt(1)).Mul(hundred)
	}

	return Metrics{
		TotalPurchased:               p.TotalPurchased,
		TotalSold:                    p.TotalSold,
		NetBalance:                   net,
		WeightedAveragePurchasePrice: avg,
		CurrentPrice:                 currentPrice,
		CurrentPositionValue:         net.Mul(currentPrice),
		UnrealizedPnL:                net.Mul(currentPrice.Sub(avg)),
		PercentageReturn:             pct,
	}
}

// Calculate computes the metrics for trades in baseAsset at currentPrice.
// It never fails: an empty history yields all-zero figures.
func Calculate(trades []models.Trade, baseAsset string, currentPrice decimal.Decimal) Metrics {
	return Accumulate(trades, baseAsset).Valuate(currentPrice)
}

// Metrics are the position figures reported for a pair.
type Metrics struct {
	TotalPurchased               decimal.Decimal
	TotalSold                    decimal.Decimal
	NetBalance                   decimal.Decimal
	WeightedAveragePurchasePrice decimal.Decimal
	CurrentPrice                 decimal.Decimal
	CurrentPositionValue         decimal.Decimal
	UnrealizedPnL                decimal.Decimal
	PercentageReturn             decimal.Decimal
}

type metricsJSON struct {
	TotalPurchased               json.Number `json:"totalPurchased"`
	TotalSold                    json.Number `json:"totalSold"`
	NetBalance                   json.Number `json:"netBalance"`
	WeightedAveragePurchasePrice json.Number `json:"weightedAveragePurchasePrice"`
	CurrentPrice                 json.Number `json:"currentPrice"`
	CurrentPositionValue         json.Number `json:"currentPositionValue"`
	UnrealizedPnL                json.Number `json:"unrealizedPnL"`
	PercentageReturn             json.Number `json:"percentageReturn"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// MarshalJSON encodes every figure as a JSON number without losing precision.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		TotalPurchased:               number(m.TotalPurchased),
		TotalSold:                    number(m.TotalSold),
		NetBalance:                   number(m.NetBalance),
		WeightedAveragePurchasePrice: number(m.WeightedAveragePurchasePrice),
		CurrentPrice:                 number(m.CurrentPrice),
		CurrentPositionValue:         number(m.CurrentPositionValue),
		UnrealizedPnL:                number(m.UnrealizedPnL),
		PercentageReturn:             number(m.PercentageReturn),
	})
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		dst *decimal.Decimal
		src json.Number
	}{
		{&m.TotalPurchased, raw.TotalPurchased},
		{&m.TotalSold, raw.TotalSold},
		{&m.NetBalance, raw.NetBalance},
		{&m.WeightedAveragePurchasePrice, raw.WeightedAveragePurchasePrice},
		{&m.CurrentPrice, raw.CurrentPrice},
		{&m.CurrentPositionValue, raw.CurrentPositionValue},
		{&m.UnrealizedPnL, raw.UnrealizedPnL},
		{&m.PercentageReturn, raw.PercentageReturn},
	}
	for _, f := range fields {
		if f.src == "" {
			*f.dst = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(f.src.String())
		if err != nil {
			return err
		}
		*f.dst = d
	}
	return nil
}
