package portfolio

import "strings"

// DefaultQuoteAsset is the quote currency assumed when none is configured.
const DefaultQuoteAsset = "USDT"

// BaseAsset returns the base asset of a trading pair by stripping the quote
// asset suffix, e.g. BaseAsset("RUNEUSDT", "USDT") == "RUNE". Symbols that do
// not end in quote are returned unchanged.
func BaseAsset(symbol, quote string) string {
	if quote == "" {
		return symbol
	}
	return strings.TrimSuffix(symbol, quote)
}
