package validation

import (
	"strings"
	"time"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/shopspring/decimal"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Err turns non-empty violations into a ValidationRequired error.
func (v Violations) Err(op string) error {
	if v.Empty() {
		return nil
	}
	return apperr.WithDetails(apperr.CodeValidationRequired, op, "validation failed", map[string]string(v))
}

// Merge copies other into v, keeping existing entries.
func (v Violations) Merge(other map[string]string) {
	for k, msg := range other {
		if _, ok := v[k]; !ok {
			v[k] = msg
		}
	}
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v[field] = "must_be_positive"
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v[field] = "out_of_range"
	}
}

// Percentage checks 0 <= val <= 100.
func Percentage(field string, val decimal.Decimal, v Violations) {
	RangeDecimal(field, val, decimal.Zero, decimal.NewFromInt(100), v)
}

func RequiredDate(field string, val time.Time, v Violations) {
	if val.IsZero() {
		v[field] = "required"
	}
}

// DateOrder flags field when end is before start.
func DateOrder(field string, start, end time.Time, v Violations) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		v[field] = "before_start"
	}
}
