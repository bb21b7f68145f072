package services

import (
	"context"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/commission"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/tracing"
	"github.com/diewo77/go-conventions/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// billable lists the statuses under which commissions are billed.
var billable = map[models.ConventionStatus]bool{
	models.ConventionValidee:  true,
	models.ConventionEnCours:  true,
	models.ConventionEnRetard: true,
	models.ConventionAcheve:   true,
}

type CommissionService struct {
	core
}

func NewCommissionService(db *gorm.DB, locker lock.Locker, log *logger.Logger) *CommissionService {
	return &CommissionService{core: newCore(db, locker, log, "commissions")}
}

// CommissionTotals sums the billed commissions of a convention.
type CommissionTotals struct {
	ConventionID uint            `json:"convention_id"`
	Nombre       int             `json:"nombre"`
	MontantHT    decimal.Decimal `json:"montant_ht"`
	MontantTVA   decimal.Decimal `json:"montant_tva"`
	MontantTTC   decimal.Decimal `json:"montant_ttc"`
}

// Facturer bills the commission owed on montantHT under reference. A
// reference is billed once per convention.
func (s *CommissionService) Facturer(ctx context.Context, conventionID, actor uint, reference string, montantHT decimal.Decimal) (_ *models.Commission, err error) {
	const op = "commission.facturer"
	ctx, span := tracing.Start(ctx, op, tracing.ConventionID(conventionID))
	defer func() { tracing.End(span, err) }()

	reference = strings.TrimSpace(reference)
	v := validation.Violations{}
	validation.Required("reference", reference, v)
	validation.PositiveDecimal("montant_ht", montantHT, v)
	if err := v.Err(op); err != nil {
		return nil, err
	}

	var bill *models.Commission
	err = s.lockedTx(ctx, op, conventionID, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, conventionID)
		if err != nil {
			return err
		}
		if !billable[c.Statut] {
			return apperr.Newf(apperr.CodeInvalidTransition, op, "commissions cannot be billed on a %s convention", c.Statut)
		}
		var n int64
		if err := tx.Model(&models.Commission{}).
			Where("convention_id = ? AND reference = ?", conventionID, reference).
			Count(&n).Error; err != nil {
			return internalErr(op, err)
		}
		if n > 0 {
			return apperr.Newf(apperr.CodeConflict, op, "reference %s already billed", reference)
		}
		params, err := resolveParameters(tx, c)
		if err != nil {
			return err
		}
		base := commissionBase(montantHT.Round(2), params)
		ht, err := computeCommission(op, base, params.Policy)
		if err != nil {
			return err
		}
		b := commission.WithVAT(ht, params.TauxTva)
		bill = &models.Commission{
			ConventionID:      conventionID,
			Reference:         reference,
			MontantBase:       base,
			BaseCalcul:        params.BaseCalcul,
			Mode:              params.Policy.Mode,
			TauxApplique:      appliedRate(ht, base),
			TauxTva:           params.TauxTva,
			MontantHT:         b.HT,
			MontantTVA:        b.TVA,
			MontantTTC:        b.TTC,
			DateCalcul:        s.now().UTC(),
			CalculeParID:      actor,
			VersionConvention: c.Version,
		}
		if err := tx.Create(bill).Error; err != nil {
			return createErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("commission billed", "convention_id", conventionID, "reference", reference,
		"montant_ht", bill.MontantHT.StringFixed(2), "actor", actor)
	return bill, nil
}

// appliedRate is the effective percentage ht represents of base.
func appliedRate(ht, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return ht.Mul(hundred).Div(base).Round(4)
}

// List returns the commissions billed on a convention, oldest first.
func (s *CommissionService) List(ctx context.Context, conventionID uint) ([]models.Commission, error) {
	var out []models.Commission
	if err := s.db.WithContext(ctx).Where("convention_id = ?", conventionID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, internalErr("commission.list", err)
	}
	return out, nil
}

func (s *CommissionService) Total(ctx context.Context, conventionID uint) (CommissionTotals, error) {
	bills, err := s.List(ctx, conventionID)
	if err != nil {
		return CommissionTotals{}, err
	}
	t := CommissionTotals{ConventionID: conventionID, Nombre: len(bills)}
	for _, b := range bills {
		t.MontantHT = t.MontantHT.Add(b.MontantHT)
		t.MontantTVA = t.MontantTVA.Add(b.MontantTVA)
		t.MontantTTC = t.MontantTTC.Add(b.MontantTTC)
	}
	return t, nil
}
