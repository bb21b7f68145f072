package services

import (
	"errors"

	"github.com/diewo77/go-conventions/internal/amendment"
	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/assert"
	"github.com/diewo77/go-conventions/internal/commission"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxInheritanceDepth bounds the parent walk of inheriting sub-conventions.
const MaxInheritanceDepth = 16

// Parameters are the financial parameters a convention actually applies,
// after resolving inheritance from its ancestors.
type Parameters struct {
	// SourceID is the convention the rate and policy were read from.
	SourceID       uint              `json:"source_id"`
	TauxCommission decimal.Decimal   `json:"taux_commission"`
	BaseCalcul     models.BaseCalcul `json:"base_calcul"`
	TauxTva        decimal.Decimal   `json:"taux_tva"`
	Policy         commission.Policy `json:"policy"`
}

func resolveParameters(tx *gorm.DB, c *models.Convention) (Parameters, error) {
	src := c
	for depth := 0; src.HeriteParametres && src.ParentID != nil; depth++ {
		if depth >= MaxInheritanceDepth {
			return Parameters{}, assert.Never("services.params", "inheritance chain too deep",
				"convention_id", c.ID, "depth", depth)
		}
		var parent models.Convention
		if err := tx.First(&parent, *src.ParentID).Error; err != nil {
			return Parameters{}, loadErr(err, "services.params", "convention", *src.ParentID)
		}
		src = &parent
	}
	rate := decimal.Zero
	if src.TauxCommission != nil {
		rate = *src.TauxCommission
	}
	base := models.BaseHT
	if src.BaseCalcul != nil {
		base = *src.BaseCalcul
	}
	return Parameters{
		SourceID:       src.ID,
		TauxCommission: rate,
		BaseCalcul:     base,
		TauxTva:        c.TauxTva,
		Policy:         src.Policy(rate),
	}, nil
}

// inheritedFields are the amendable fields an inheriting convention reads
// from its source.
var inheritedFields = []amendment.Field{amendment.FieldTauxCommission, amendment.FieldBaseCalcul}

// effectiveSnapshot captures c with its inherited fields filled from the
// resolved parameters.
func effectiveSnapshot(tx *gorm.DB, c *models.Convention) (amendment.Snapshot, error) {
	if !c.HeriteParametres {
		return amendment.Capture(c), nil
	}
	p, err := resolveParameters(tx, c)
	if err != nil {
		return nil, err
	}
	cp := *c
	cp.TauxCommission = &p.TauxCommission
	cp.BaseCalcul = &p.BaseCalcul
	return amendment.Capture(&cp), nil
}

// detachParameters stores on c the parameters it inherits and stops the
// inheritance. The effective policy is kept unchanged.
func detachParameters(tx *gorm.DB, c *models.Convention) error {
	p, err := resolveParameters(tx, c)
	if err != nil {
		return err
	}
	rate, base := p.TauxCommission, p.BaseCalcul
	c.TauxCommission = &rate
	c.BaseCalcul = &base
	c.ModeCommission = p.Policy.Mode
	c.Tranches = datatypes.NewJSONType(p.Policy.Tranches)
	c.MinimumCommission = p.Policy.Minimum
	c.PlafondCommission = p.Policy.Plafond
	c.HeriteParametres = false
	return nil
}

// policyViolations checks p as configured, keyed under "commission.".
func policyViolations(p commission.Policy) map[string]string {
	raw := commission.ValidatePolicy(p)
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, msg := range raw {
		out["commission."+k] = msg
	}
	return out
}

// bandsOf is the policy c stores itself without its rate. Drafts may carry an
// out of range rate until submission, malformed bands are refused at once.
func bandsOf(c *models.Convention) commission.Policy {
	return c.Policy(decimal.Zero)
}

// commissionBase converts an HT amount into the base the convention taxes.
func commissionBase(montantHT decimal.Decimal, p Parameters) decimal.Decimal {
	if p.BaseCalcul == models.BaseTTC {
		return commission.WithVAT(montantHT, p.TauxTva).TTC
	}
	return montantHT
}

// computeCommission maps calculator failures onto engine error codes.
func computeCommission(op string, base decimal.Decimal, p commission.Policy) (decimal.Decimal, error) {
	v, err := commission.Compute(base, p)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, commission.ErrNotImplemented):
		return decimal.Zero, apperr.Wrap(apperr.CodeNotImplemented, op, err)
	default:
		return decimal.Zero, apperr.Wrap(apperr.CodeInternal, op, err)
	}
}
