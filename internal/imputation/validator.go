// Package imputation validates and aggregates monetary lines tagged with
// analytical dimension values. Dimensions are configured at runtime, so the
// map of a line is checked against a Registry rather than a static schema.
package imputation

import (
	"context"
	"sort"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/shopspring/decimal"
)

// Tolerance is the accepted gap between an expected total and the imputed sum.
var Tolerance = decimal.RequireFromString("0.01")

// Dimension is an active classification axis.
type Dimension struct {
	Code        string `json:"code"`
	Libelle     string `json:"libelle"`
	Obligatoire bool   `json:"obligatoire"`
}

// Value is an allowed value of a dimension.
type Value struct {
	Code    string `json:"code"`
	Libelle string `json:"libelle"`
}

// Registry is the read-only dimension lookup.
type Registry interface {
	ActiveDimensions(ctx context.Context) ([]Dimension, error)
	ActiveValues(ctx context.Context, dimensionCode string) ([]Value, error)
}

// Line is the part of an imputation the validator needs.
type Line struct {
	Montant    decimal.Decimal
	Dimensions map[string]string
}

// RequiredCodes returns the codes of the mandatory dimensions.
func RequiredCodes(dims []Dimension) []string {
	var out []string
	for _, d := range dims {
		if d.Obligatoire {
			out = append(out, d.Code)
		}
	}
	return out
}

// IsComplete reports whether every required code is a key of dims.
// Keys unknown to the registry are tolerated.
func IsComplete(dims map[string]string, required []string) bool {
	return len(Missing(dims, required)) == 0
}

// Missing lists the required codes absent from dims.
func Missing(dims map[string]string, required []string) []string {
	var out []string
	for _, code := range required {
		if _, ok := dims[code]; !ok {
			out = append(out, code)
		}
	}
	return out
}

// TotalResult is the outcome of ValidateTotal.
type TotalResult struct {
	IsValid     bool            `json:"is_valid"`
	TotalImpute decimal.Decimal `json:"total_impute"`
	Difference  decimal.Decimal `json:"difference"`
}

// Total sums the line amounts.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Montant)
	}
	return total
}

// ValidateTotal compares the imputed sum with expected. Difference is
// expected minus imputed.
func ValidateTotal(lines []Line, expected decimal.Decimal) TotalResult {
	total := Total(lines)
	diff := expected.Sub(total)
	return TotalResult{
		IsValid:     !diff.Abs().GreaterThan(Tolerance),
		TotalImpute: total,
		Difference:  diff,
	}
}

// AggregateByDimension sums amounts per value of code. Lines without code
// are left out.
func AggregateByDimension(lines []Line, code string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, l := range lines {
		v, ok := l.Dimensions[code]
		if !ok {
			continue
		}
		out[v] = out[v].Add(l.Montant)
	}
	return out
}

// Pair is one cell of a two-dimension aggregation.
type Pair struct {
	Dim1Value string          `json:"dim1_value"`
	Dim2Value string          `json:"dim2_value"`
	Montant   decimal.Decimal `json:"montant"`
}

// AggregateByTwoDimensions sums amounts per (dim1, dim2) value pair, sorted
// by dim1 then dim2. Lines missing either key are left out.
func AggregateByTwoDimensions(lines []Line, dim1, dim2 string) []Pair {
	type key struct{ a, b string }
	sums := map[key]decimal.Decimal{}
	for _, l := range lines {
		a, ok1 := l.Dimensions[dim1]
		b, ok2 := l.Dimensions[dim2]
		if !ok1 || !ok2 {
			continue
		}
		k := key{a, b}
		sums[k] = sums[k].Add(l.Montant)
	}
	out := make([]Pair, 0, len(sums))
	for k, v := range sums {
		out = append(out, Pair{Dim1Value: k.a, Dim2Value: k.b, Montant: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dim1Value != out[j].Dim1Value {
			return out[i].Dim1Value < out[j].Dim1Value
		}
		return out[i].Dim2Value < out[j].Dim2Value
	})
	return out
}

// Validator checks imputations against the live registry.
type Validator struct {
	registry Registry
}

// NewValidator returns a validator reading from registry.
func NewValidator(registry Registry) *Validator {
	return &Validator{registry: registry}
}

// Registry exposes the underlying registry.
func (v *Validator) Registry() Registry { return v.registry }

// Check returns an IncompleteImputation error listing every mandatory
// dimension absent from dims.
func (v *Validator) Check(ctx context.Context, dims map[string]string) error {
	active, err := v.registry.ActiveDimensions(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "imputation.check", err)
	}
	missing := Missing(dims, RequiredCodes(active))
	if len(missing) == 0 {
		return nil
	}
	details := make(map[string]string, len(missing))
	for _, code := range missing {
		details[code] = "required"
	}
	return apperr.WithDetails(apperr.CodeIncompleteImputation, "imputation.check",
		"mandatory dimensions missing", details)
}

// RequireBalanced returns an ImputationMismatch error when lines do not sum
// to expected within Tolerance.
func RequireBalanced(lines []Line, expected decimal.Decimal) (TotalResult, error) {
	res := ValidateTotal(lines, expected)
	if res.IsValid {
		return res, nil
	}
	return res, apperr.WithDetails(apperr.CodeImputationMismatch, "imputation.balance",
		"imputed total does not match expected amount", map[string]string{
			"expected":     expected.StringFixed(2),
			"total_impute": res.TotalImpute.StringFixed(2),
			"difference":   res.Difference.StringFixed(2),
		})
}
