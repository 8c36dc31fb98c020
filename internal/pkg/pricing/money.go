package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// minorUnits lists ISO 4217 currencies whose minor unit is not two digits.
var minorUnits = map[string]int32{
	"JPY": 0, "KRW": 0, "CLP": 0, "ISK": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimal places of currency.
func MinorUnits(currency string) int32 {
	if places, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return places
	}
	return 2
}

// RoundHalfUp rounds d to the currency's minor unit, halves away from zero.
func RoundHalfUp(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(MinorUnits(currency))
}

// ApplyMarkup returns base × (1 + pct/100) rounded to the minor unit.
func ApplyMarkup(base, pct decimal.Decimal, currency string) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(pct.Div(hundred))
	return RoundHalfUp(base.Mul(factor), currency)
}

// allocate splits total across weights proportionally. Every share is
// rounded down to the minor unit and the leftover units go to the shares with
// the largest remainders (lowest index first on ties), so no share is negative
// and the shares sum to total.
func allocate(total decimal.Decimal, weights []decimal.Decimal, currency string) []decimal.Decimal {
	n := len(weights)
	shares := make([]decimal.Decimal, n)
	if n == 0 {
		return shares
	}
	places := MinorUnits(currency)
	total = RoundHalfUp(total, currency)

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}

	remainders := make([]decimal.Decimal, n)
	assigned := decimal.Zero
	for i, w := range weights {
		var exact decimal.Decimal
		if sum.IsZero() {
			exact = total.Div(decimal.NewFromInt(int64(n)))
		} else {
			exact = total.Mul(w).Div(sum)
		}
		shares[i] = exact.RoundFloor(places)
		remainders[i] = exact.Sub(shares[i])
		assigned = assigned.Add(shares[i])
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	unit := decimal.New(1, -places)
	left := int(total.Sub(assigned).Div(unit).IntPart())
	for k := 0; k < left; k++ {
		i := order[k%n]
		shares[i] = shares[i].Add(unit)
	}
	return shares
}
