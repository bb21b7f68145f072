// Package commission computes commission amounts from a budget base and a
// commission policy. Everything here is pure: no storage, no clock.
package commission

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-conventions/internal/assert"
	"github.com/shopspring/decimal"
)

// Mode selects how the commission is computed.
type Mode string

const (
	ModeFixedRate Mode = "FIXED_RATE"
	ModeTranches  Mode = "TRANCHES"
	ModeMixte     Mode = "MIXTE"
)

// ErrNotImplemented is returned for MIXTE, whose arithmetic is undefined.
var ErrNotImplemented = errors.New("commission mode MIXTE is not implemented")

var (
	hundred = decimal.NewFromInt(100)
	// Scale of every monetary result.
	Scale int32 = 2
)

// Tranche is an amount band [Start, End) taxed at Rate percent.
type Tranche struct {
	Start decimal.Decimal `json:"debut"`
	End   decimal.Decimal `json:"fin"`
	Rate  decimal.Decimal `json:"taux"`
}

// Width returns End - Start.
func (t Tranche) Width() decimal.Decimal { return t.End.Sub(t.Start) }

// Policy describes a commission computation.
type Policy struct {
	Mode     Mode             `json:"mode"`
	Rate     decimal.Decimal  `json:"taux"`
	Tranches []Tranche        `json:"tranches,omitempty"`
	Minimum  *decimal.Decimal `json:"minimum,omitempty"`
	Plafond  *decimal.Decimal `json:"plafond,omitempty"`
}

// Compute returns the commission due on base under p.
//
// Tranches are walked in the order given. A band with negative width means
// the policy is corrupt and is reported as an assertion failure.
func Compute(base decimal.Decimal, p Policy) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}
	var raw decimal.Decimal
	switch p.Mode {
	case ModeFixedRate, "":
		raw = fixed(base, p.Rate)
	case ModeTranches:
		if len(p.Tranches) == 0 {
			raw = fixed(base, p.Rate)
			break
		}
		v, err := tiered(base, p.Tranches)
		if err != nil {
			return decimal.Zero, err
		}
		raw = v
	case ModeMixte:
		return decimal.Zero, ErrNotImplemented
	default:
		return decimal.Zero, assert.Never("commission", "unknown commission mode", "mode", p.Mode)
	}
	return clamp(raw, p.Minimum, p.Plafond).Round(Scale), nil
}

func fixed(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred)
}

func tiered(base decimal.Decimal, tranches []Tranche) (decimal.Decimal, error) {
	remaining := base
	acc := decimal.Zero
	for i, t := range tranches {
		width := t.Width()
		if err := assert.That(!width.IsNegative(), "commission", "tranche width must not be negative",
			"index", i, "start", t.Start, "end", t.End); err != nil {
			return decimal.Zero, err
		}
		consumed := decimal.Min(remaining, width)
		if consumed.IsPositive() {
			acc = acc.Add(consumed.Mul(t.Rate).Div(hundred))
			remaining = remaining.Sub(consumed)
		}
		if !remaining.IsPositive() {
			break
		}
	}
	return acc, nil
}

// clamp applies the floor first, then the ceiling.
func clamp(v decimal.Decimal, floor, ceiling *decimal.Decimal) decimal.Decimal {
	if floor != nil && v.LessThan(*floor) {
		v = *floor
	}
	if ceiling != nil && v.GreaterThan(*ceiling) {
		v = *ceiling
	}
	return v
}

// Breakdown is a commission split into pre-tax, tax and total.
type Breakdown struct {
	HT  decimal.Decimal `json:"montant_ht"`
	TVA decimal.Decimal `json:"montant_tva"`
	TTC decimal.Decimal `json:"montant_ttc"`
}

// WithVAT applies tauxTva percent on ht.
func WithVAT(ht, tauxTva decimal.Decimal) Breakdown {
	ht = ht.Round(Scale)
	tva := ht.Mul(tauxTva).Div(hundred).Round(Scale)
	return Breakdown{HT: ht, TVA: tva, TTC: ht.Add(tva)}
}

// ValidatePolicy checks a policy at configuration time. Gaps between tranches
// are accepted (amounts falling in a gap are not taxed); overlaps are not.
func ValidatePolicy(p Policy) map[string]string {
	v := map[string]string{}
	switch p.Mode {
	case ModeFixedRate, ModeTranches, ModeMixte, "":
	default:
		v["mode"] = "unknown_mode"
	}
	if !inPercentRange(p.Rate) {
		v["taux"] = "out_of_range"
	}
	for i, t := range p.Tranches {
		key := fmt.Sprintf("tranches[%d]", i)
		switch {
		case t.Start.IsNegative():
			v[key] = "negative_start"
		case !t.End.GreaterThan(t.Start):
			v[key] = "non_positive_width"
		case !inPercentRange(t.Rate):
			v[key] = "rate_out_of_range"
		case i > 0 && t.Start.LessThan(p.Tranches[i-1].End):
			v[key] = "overlaps_previous"
		}
	}
	if p.Minimum != nil && p.Minimum.IsNegative() {
		v["minimum"] = "must_not_be_negative"
	}
	if p.Minimum != nil && p.Plafond != nil && p.Minimum.GreaterThan(*p.Plafond) {
		v["plafond"] = "below_minimum"
	}
	if len(v) == 0 {
		return nil
	}
	return v
}

func inPercentRange(r decimal.Decimal) bool {
	return !r.IsNegative() && !r.GreaterThan(hundred)
}
