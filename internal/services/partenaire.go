package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/validation"
	"github.com/diewo77/go-conventions/internal/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// Allocation is one partner's requested share. BudgetAlloue is derived from
// the percentage when nil.
type Allocation struct {
	PartenaireCode string           `json:"partenaire_code"`
	Nom            string           `json:"nom"`
	Pourcentage    decimal.Decimal  `json:"pourcentage"`
	BudgetAlloue   *decimal.Decimal `json:"budget_alloue"`
}

// PartnerCommission is a partner's share of the convention commission.
type PartnerCommission struct {
	PartenaireCode string          `json:"partenaire_code"`
	Nom            string          `json:"nom"`
	BudgetAlloue   decimal.Decimal `json:"budget_alloue"`
	Taux           decimal.Decimal `json:"taux"`
	Commission     decimal.Decimal `json:"commission"`
}

type PartenaireService struct {
	core
}

func NewPartenaireService(db *gorm.DB, locker lock.Locker, log *logger.Logger) *PartenaireService {
	return &PartenaireService{core: newCore(db, locker, log, "partenaires")}
}

// Definir replaces the partner breakdown of a draft convention.
func (s *PartenaireService) Definir(ctx context.Context, conventionID, actor uint, allocations []Allocation) ([]models.ConventionPartenaire, error) {
	const op = "partenaire.definir"
	v := validation.Violations{}
	if len(allocations) == 0 {
		v["partenaires"] = "required"
	}
	seen := map[string]bool{}
	sum := decimal.Zero
	for i, a := range allocations {
		key := fmt.Sprintf("partenaires[%d]", i)
		code := strings.ToUpper(strings.TrimSpace(a.PartenaireCode))
		validation.Required(key+".partenaire_code", code, v)
		validation.Required(key+".nom", a.Nom, v)
		validation.PositiveDecimal(key+".pourcentage", a.Pourcentage, v)
		validation.Percentage(key+".pourcentage", a.Pourcentage, v)
		if seen[code] {
			v[key+".partenaire_code"] = "duplicate"
		}
		seen[code] = true
		sum = sum.Add(a.Pourcentage)
	}
	if len(allocations) > 0 && sum.Sub(hundred).Abs().GreaterThan(imputation.Tolerance) {
		v["partenaires"] = "sum_not_100"
	}
	if err := v.Err(op); err != nil {
		return nil, err
	}

	var out []models.ConventionPartenaire
	err := s.lockedTx(ctx, op, conventionID, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, conventionID)
		if err != nil {
			return err
		}
		if !workflow.ConventionPermits(c.Statut, workflow.ActionEdit) || c.IsLocked {
			return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionEdit))
		}
		if err := tx.Where("convention_id = ?", conventionID).Delete(&models.ConventionPartenaire{}).Error; err != nil {
			return internalErr(op, err)
		}
		out = make([]models.ConventionPartenaire, 0, len(allocations))
		for _, a := range allocations {
			p := models.ConventionPartenaire{
				ConventionID:   conventionID,
				PartenaireCode: strings.ToUpper(strings.TrimSpace(a.PartenaireCode)),
				Nom:            strings.TrimSpace(a.Nom),
				Pourcentage:    a.Pourcentage.Round(4),
			}
			if a.BudgetAlloue != nil {
				p.BudgetAlloue = a.BudgetAlloue.Round(2)
			} else {
				p.BudgetAlloue = c.Budget.Mul(a.Pourcentage).Div(hundred).Round(2)
			}
			out = append(out, p)
		}
		if err := tx.Create(&out).Error; err != nil {
			return createErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("partners defined", "convention_id", conventionID, "actor", actor, "count", len(out))
	return out, nil
}

// List returns the partners of a convention.
func (s *PartenaireService) List(ctx context.Context, conventionID uint) ([]models.ConventionPartenaire, error) {
	var out []models.ConventionPartenaire
	if err := s.db.WithContext(ctx).Where("convention_id = ?", conventionID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, internalErr("partenaire.list", err)
	}
	return out, nil
}

// CommissionsIntervention splits the effective commission rate over the
// partner allocations.
func (s *PartenaireService) CommissionsIntervention(ctx context.Context, conventionID uint) ([]PartnerCommission, error) {
	const op = "partenaire.commissions"
	db := s.db.WithContext(ctx)
	c, err := loadConvention(db, op, conventionID)
	if err != nil {
		return nil, err
	}
	params, err := resolveParameters(db, c)
	if err != nil {
		return nil, err
	}
	partners, err := s.List(ctx, conventionID)
	if err != nil {
		return nil, err
	}
	out := make([]PartnerCommission, 0, len(partners))
	for _, p := range partners {
		out = append(out, PartnerCommission{
			PartenaireCode: p.PartenaireCode,
			Nom:            p.Nom,
			BudgetAlloue:   p.BudgetAlloue,
			Taux:           params.TauxCommission,
			Commission:     p.BudgetAlloue.Mul(params.TauxCommission).Div(hundred).Round(2),
		})
	}
	return out, nil
}
