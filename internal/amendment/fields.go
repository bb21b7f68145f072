// Package amendment knows which convention fields an avenant may change, how
// their values are written in a snapshot, and how snapshots are replayed.
//
// Every value is held in canonical string form: money with two decimals,
// rates without trailing zeros, dates as YYYY-MM-DD. Two snapshots of the
// same convention therefore compare equal field by field.
package amendment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-conventions/internal/models"
	"github.com/shopspring/decimal"
)

// Field is the key of an amendable convention field.
type Field string

const (
	FieldBudget         Field = "budget"
	FieldTauxCommission Field = "tauxCommission"
	FieldLibelle        Field = "libelle"
	FieldObjet          Field = "objet"
	FieldDateDebut      Field = "dateDebut"
	FieldDateFin        Field = "dateFin"
	FieldBaseCalcul     Field = "baseCalcul"
	FieldTauxTva        Field = "tauxTva"
	FieldDescription    Field = "description"
)

// DateLayout is the canonical date form.
const DateLayout = "2006-01-02"

type kind int

const (
	kindMoney kind = iota
	kindRate
	kindText
	kindRequiredText
	kindDate
	kindBase
)

type fieldDef struct {
	kind kind
	get  func(*models.Convention) string
	set  func(*models.Convention, string) error
}

var hundred = decimal.NewFromInt(100)

var fields = map[Field]fieldDef{
	FieldBudget: {kindMoney,
		func(c *models.Convention) string { return money(c.Budget) },
		func(c *models.Convention, v string) error { return setDecimal(&c.Budget, v) },
	},
	FieldTauxCommission: {kindRate,
		func(c *models.Convention) string {
			if c.TauxCommission == nil {
				return ""
			}
			return rate(*c.TauxCommission)
		},
		func(c *models.Convention, v string) error {
			if v == "" {
				c.TauxCommission = nil
				return nil
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return err
			}
			c.TauxCommission = &d
			return nil
		},
	},
	FieldLibelle: {kindRequiredText,
		func(c *models.Convention) string { return c.Libelle },
		func(c *models.Convention, v string) error { c.Libelle = v; return nil },
	},
	FieldObjet: {kindText,
		func(c *models.Convention) string { return c.Objet },
		func(c *models.Convention, v string) error { c.Objet = v; return nil },
	},
	FieldDescription: {kindText,
		func(c *models.Convention) string { return c.Description },
		func(c *models.Convention, v string) error { c.Description = v; return nil },
	},
	FieldDateDebut: {kindDate,
		func(c *models.Convention) string { return date(c.DateDebut) },
		func(c *models.Convention, v string) error { return setDate(&c.DateDebut, v) },
	},
	FieldDateFin: {kindDate,
		func(c *models.Convention) string { return date(c.DateFin) },
		func(c *models.Convention, v string) error { return setDate(&c.DateFin, v) },
	},
	FieldBaseCalcul: {kindBase,
		func(c *models.Convention) string {
			if c.BaseCalcul == nil {
				return ""
			}
			return string(*c.BaseCalcul)
		},
		func(c *models.Convention, v string) error {
			if v == "" {
				c.BaseCalcul = nil
				return nil
			}
			b := models.BaseCalcul(v)
			c.BaseCalcul = &b
			return nil
		},
	},
	FieldTauxTva: {kindRate,
		func(c *models.Convention) string { return rate(c.TauxTva) },
		func(c *models.Convention, v string) error { return setDecimal(&c.TauxTva, v) },
	},
}

// Fields lists the amendable fields in a stable order.
var Fields = []Field{
	FieldBudget, FieldTauxCommission, FieldLibelle, FieldObjet, FieldDateDebut,
	FieldDateFin, FieldBaseCalcul, FieldTauxTva, FieldDescription,
}

// IsAmendable reports whether key names an amendable field.
func IsAmendable(key string) bool {
	_, ok := fields[Field(key)]
	return ok
}

// Snapshot is a set of amendable field values in canonical form.
type Snapshot map[string]string

// Capture copies every amendable field of c.
func Capture(c *models.Convention) Snapshot {
	s := make(Snapshot, len(fields))
	for name, f := range fields {
		s[string(name)] = f.get(c)
	}
	return s
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Normalize validates raw modification values and returns them in canonical
// form. The second result maps offending keys to a violation code.
func Normalize(raw map[string]any) (map[string]string, map[string]string) {
	out := make(map[string]string, len(raw))
	violations := map[string]string{}
	for key, value := range raw {
		f, ok := fields[Field(key)]
		if !ok {
			violations[key] = "not_amendable"
			continue
		}
		s, err := stringOf(value)
		if err != nil {
			violations[key] = "invalid_value"
			continue
		}
		canonical, code := normalizeValue(f.kind, s)
		if code != "" {
			violations[key] = code
			continue
		}
		out[key] = canonical
	}
	if len(violations) == 0 {
		violations = nil
	}
	return out, violations
}

func normalizeValue(k kind, s string) (string, string) {
	s = strings.TrimSpace(s)
	switch k {
	case kindMoney:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", "invalid_decimal"
		}
		if !d.IsPositive() {
			return "", "must_be_positive"
		}
		return money(d), ""
	case kindRate:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", "invalid_decimal"
		}
		if d.IsNegative() || d.GreaterThan(hundred) {
			return "", "out_of_range"
		}
		return rate(d), ""
	case kindRequiredText:
		if s == "" {
			return "", "required"
		}
		return s, ""
	case kindText:
		return s, ""
	case kindDate:
		t, err := parseDate(s)
		if err != nil {
			return "", "invalid_date"
		}
		return date(t), ""
	case kindBase:
		switch models.BaseCalcul(strings.ToUpper(s)) {
		case models.BaseHT, models.BaseTTC:
			return strings.ToUpper(s), ""
		}
		return "", "invalid_base"
	}
	return "", "invalid_value"
}

// Apply writes canonical modification values onto c.
func Apply(c *models.Convention, mods map[string]string) error {
	for key, value := range mods {
		f, ok := fields[Field(key)]
		if !ok {
			return fmt.Errorf("field %q is not amendable", key)
		}
		if err := f.set(c, value); err != nil {
			return fmt.Errorf("apply %s: %w", key, err)
		}
	}
	return nil
}

// Replay applies each modification set, in order, over base.
func Replay(base Snapshot, steps ...map[string]string) Snapshot {
	out := base.Clone()
	for _, mods := range steps {
		for k, v := range mods {
			out[k] = v
		}
	}
	return out
}

// Diff lists the fields whose values differ between a and b.
func Diff(a, b Snapshot) []string {
	var out []string
	for _, f := range Fields {
		if a[string(f)] != b[string(f)] {
			out = append(out, string(f))
		}
	}
	return out
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func rate(d decimal.Decimal) string { return d.Round(4).String() }

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.Day(t).Format(DateLayout)
}

func setDecimal(dst *decimal.Decimal, v string) error {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setDate(dst *time.Time, v string) error {
	t, err := parseDate(v)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return models.Day(t), nil
}

func stringOf(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case json.Number:
		return x.String(), nil
	case decimal.Decimal:
		return x.String(), nil
	case time.Time:
		return models.Day(x).Format(DateLayout), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
