package billing

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in minor currency units (cents).
// Integer arithmetic keeps totals currency-exact; floats appear only at
// the formatting boundary.
type Money int64

// Dollars returns the amount in major units for display math.
func (m Money) Dollars() float64 {
	return float64(m) / 100
}

// Format renders the amount with its currency symbol, e.g. "A$500.00".
// Unknown codes fall back to AUD, the home currency of the platform.
func (m Money) Format(code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.AUD
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(m.Dollars())))
}
