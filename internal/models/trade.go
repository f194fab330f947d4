package models

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an account trade as returned by the Binance /myTrades endpoint.
// Numeric fields keep the exchange's text, so a trade re-encodes byte for byte.
type Trade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	OrderListID     int64  `json:"orderListId"`
	Price           Amount `json:"price"`
	Quantity        Amount `json:"qty"`
	QuoteQuantity   Amount `json:"quoteQty"`
	Commission      Amount `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
	IsBestMatch     bool   `json:"isBestMatch"`
}

// Side reports BUY when the account was the buyer of the trade.
func (t Trade) Side() Side {
	if t.IsBuyer {
		return SideBuy
	}
	return SideSell
}
