package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a decimal that keeps the exact text it was decoded from.
// Re-encoding an Amount yields that text unchanged, so exchange records can be
// passed through without their numbers being reformatted.
type Amount struct {
	decimal.Decimal
	raw string
}

// NewAmount parses s, remembering it as the amount's text.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{Decimal: d, raw: s}, nil
}

// RequireAmount is like NewAmount but panics on malformed input.
func RequireAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the original text, or the canonical decimal form for an
// amount that was not decoded from text.
func (a Amount) String() string {
	if a.raw != "" {
		return a.raw
	}
	return a.Decimal.String()
}

// MarshalJSON encodes the amount as a JSON string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both quoted and bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}

	parsed, err := NewAmount(text)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
