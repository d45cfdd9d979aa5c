package domain

import (
	"fmt"
	"math"
)

// Credits is a monetary credit amount in hundredths of a credit. Integer
// arithmetic keeps ledger sums exact; rendering to two decimal places only
// happens at the API boundary.
type Credits int64

// CreditsFromFloat converts a fractional credit amount, rounding to the
// nearest hundredth.
func CreditsFromFloat(v float64) Credits {
	return Credits(math.Round(v * 100))
}

// Float returns the amount as fractional credits.
func (c Credits) Float() float64 {
	return float64(c) / 100
}

// String renders the amount with two decimal places, e.g. "10.00" or "-0.15".
func (c Credits) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
