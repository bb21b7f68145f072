package amendment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deltas summarises the financial effect of a modification set.
// A nil field means the corresponding value is not modified.
type Deltas struct {
	Budget           *decimal.Decimal
	TauxCommission   *decimal.Decimal
	ImpactDelaiJours *int
}

// ComputeDeltas compares mods against the snapshot taken before the change.
func ComputeDeltas(before Snapshot, mods map[string]string) Deltas {
	var out Deltas
	if v, ok := mods[string(FieldBudget)]; ok {
		out.Budget = decimalDelta(before[string(FieldBudget)], v)
	}
	if v, ok := mods[string(FieldTauxCommission)]; ok {
		out.TauxCommission = decimalDelta(before[string(FieldTauxCommission)], v)
	}
	if v, ok := mods[string(FieldDateFin)]; ok {
		from, err1 := time.Parse(DateLayout, before[string(FieldDateFin)])
		to, err2 := time.Parse(DateLayout, v)
		if err1 == nil && err2 == nil {
			days := int(to.Sub(from).Hours() / 24)
			out.ImpactDelaiJours = &days
		}
	}
	return out
}

// decimalDelta returns after - before; an empty before counts as zero.
func decimalDelta(before, after string) *decimal.Decimal {
	a, err := decimal.NewFromString(after)
	if err != nil {
		return nil
	}
	b := decimal.Zero
	if before != "" {
		if parsed, err := decimal.NewFromString(before); err == nil {
			b = parsed
		}
	}
	d := a.Sub(b)
	return &d
}
