package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/commission"
	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/tracing"
	"github.com/diewo77/go-conventions/internal/validation"
	"github.com/diewo77/go-conventions/internal/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LigneInput is one line of a budget revision.
type LigneInput struct {
	Code    string          `json:"code"`
	Libelle string          `json:"libelle"`
	Montant decimal.Decimal `json:"montant"`
	TauxTva decimal.Decimal `json:"taux_tva"`
}

// Revision proposes a new budget version. Plafond overrides the convention
// budget as ceiling when set.
type Revision struct {
	Justification string           `json:"justification"`
	Lignes        []LigneInput     `json:"lignes"`
	Plafond       *decimal.Decimal `json:"plafond"`
}

// CommissionEstimate previews the commission a budget total would generate.
type CommissionEstimate struct {
	BudgetID   uint              `json:"budget_id"`
	Base       decimal.Decimal   `json:"base"`
	BaseCalcul models.BaseCalcul `json:"base_calcul"`
	commission.Breakdown
}

type BudgetService struct {
	core
}

func NewBudgetService(db *gorm.DB, locker lock.Locker, log *logger.Logger) *BudgetService {
	return &BudgetService{core: newCore(db, locker, log, "budgets")}
}

func buildLignes(op string, in []LigneInput) ([]models.LigneBudget, error) {
	v := validation.Violations{}
	if len(in) == 0 {
		v["lignes"] = "required"
	}
	out := make([]models.LigneBudget, 0, len(in))
	for i, l := range in {
		key := fmt.Sprintf("lignes[%d]", i)
		validation.Required(key+".code", l.Code, v)
		validation.Required(key+".libelle", l.Libelle, v)
		if l.Montant.IsNegative() {
			v[key+".montant"] = "must_not_be_negative"
		}
		validation.Percentage(key+".taux_tva", l.TauxTva, v)
		out = append(out, models.LigneBudget{
			Ordre:   i + 1,
			Code:    strings.TrimSpace(l.Code),
			Libelle: strings.TrimSpace(l.Libelle),
			Montant: l.Montant.Round(2),
			TauxTva: l.TauxTva,
		})
	}
	if err := v.Err(op); err != nil {
		return nil, err
	}
	return out, nil
}

func plafondErr(op string, total, plafond decimal.Decimal) error {
	return apperr.WithDetails(apperr.CodePlafondExceeded, op, "budget total exceeds the ceiling",
		map[string]string{
			"total":   total.StringFixed(2),
			"plafond": plafond.StringFixed(2),
			"depasse": total.Sub(plafond).StringFixed(2),
		})
}

// CreateNextVersion drafts the next budget version of a convention. Only one
// version may await a decision at a time.
func (s *BudgetService) CreateNextVersion(ctx context.Context, conventionID, actor uint, r Revision) (_ *models.Budget, err error) {
	const op = "budget.create_next_version"
	ctx, span := tracing.Start(ctx, op, tracing.ConventionID(conventionID))
	defer func() { tracing.End(span, err) }()

	lignes, err := buildLignes(op, r.Lignes)
	if err != nil {
		return nil, err
	}
	var b *models.Budget
	err = s.lockedTx(ctx, op, conventionID, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, conventionID)
		if err != nil {
			return err
		}
		if !workflow.ConventionPermits(c.Statut, workflow.ActionReviserBudget) {
			return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionReviserBudget))
		}
		var pending int64
		if err := tx.Model(&models.Budget{}).
			Where("convention_id = ? AND statut IN ?", conventionID, []models.BudgetStatus{models.BudgetBrouillon, models.BudgetSoumis}).
			Count(&pending).Error; err != nil {
			return internalErr(op, err)
		}
		if pending > 0 {
			return apperr.New(apperr.CodeInvalidTransition, op, "a budget version is already awaiting a decision")
		}
		prev, err := activeBudget(tx, conventionID)
		if err != nil {
			return internalErr(op, err)
		}

		total := models.SumLignes(lignes)
		plafond := c.Budget
		if r.Plafond != nil {
			plafond = r.Plafond.Round(2)
		}
		if total.GreaterThan(plafond) {
			return plafondErr(op, total, plafond)
		}
		var count int64
		if err := tx.Unscoped().Model(&models.Budget{}).Where("convention_id = ?", conventionID).Count(&count).Error; err != nil {
			return internalErr(op, err)
		}
		b = &models.Budget{
			ConventionID:      conventionID,
			Version:           models.VersionTag(int(count)),
			Statut:            models.BudgetBrouillon,
			PlafondConvention: plafond,
			Total:             total,
			Justification:     strings.TrimSpace(r.Justification),
			CreeParID:         actor,
			Lignes:            lignes,
		}
		if prev != nil {
			delta := total.Sub(prev.Total)
			b.BudgetPrecedentID = &prev.ID
			b.DeltaMontant = &delta
		}
		if err := tx.Create(b).Error; err != nil {
			return createErr(op, err)
		}
		return s.record(tx, transition{conventionID: conventionID, entity: models.EntityBudget, entityID: b.ID,
			to: string(b.Statut), actor: actor, motif: b.Justification})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("budget version created", "budget_id", b.ID, "convention_id", conventionID, "version", b.Version, "total", b.Total.StringFixed(2))
	return b, nil
}

// run loads budget id, takes its convention lock and calls fn in a transaction.
func (s *BudgetService) run(ctx context.Context, op string, id uint, fn func(tx *gorm.DB, b *models.Budget) ([]transition, error)) (*models.Budget, error) {
	current, err := loadBudget(s.db.WithContext(ctx), op, id)
	if err != nil {
		return nil, err
	}
	var done []transition
	var out *models.Budget
	err = s.lockedTx(ctx, op, current.ConventionID, func(tx *gorm.DB) error {
		b, err := loadBudget(tx, op, id)
		if err != nil {
			return err
		}
		done, err = fn(tx, b)
		if err != nil {
			return err
		}
		out, err = loadBudget(tx, op, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, t := range done {
		s.logTransition(t)
	}
	return out, nil
}

func (s *BudgetService) budgetStep(tx *gorm.DB, op string, b *models.Budget, actor uint, action workflow.Action, motif string, updates map[string]any) (transition, error) {
	from := b.Statut
	to, ok := workflow.BudgetTarget(from, action)
	if !ok {
		return transition{}, apperr.InvalidTransition(op, string(from), string(action))
	}
	updates["statut"] = to
	swapped, err := dbx.UpdateByStatus(tx, &models.Budget{}, b.ID, string(from), updates)
	if err != nil {
		return transition{}, internalErr(op, err)
	}
	if !swapped {
		return transition{}, apperr.Concurrent(op, "budget status changed concurrently")
	}
	t := transition{conventionID: b.ConventionID, entity: models.EntityBudget, entityID: b.ID,
		from: string(from), to: string(to), actor: actor, motif: motif}
	if err := s.record(tx, t); err != nil {
		return transition{}, internalErr(op, err)
	}
	return t, nil
}

// requireRevisable rejects budget work on a convention whose status no
// longer permits budget revisions.
func requireRevisable(tx *gorm.DB, op string, conventionID uint) error {
	c, err := loadConvention(tx, op, conventionID)
	if err != nil {
		return err
	}
	if !workflow.ConventionPermits(c.Statut, workflow.ActionReviserBudget) {
		return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionReviserBudget))
	}
	return nil
}

// Soumettre submits a BROUILLON version; the ceiling is checked again.
func (s *BudgetService) Soumettre(ctx context.Context, id, actor uint) (*models.Budget, error) {
	const op = "budget.soumettre"
	return s.run(ctx, op, id, func(tx *gorm.DB, b *models.Budget) ([]transition, error) {
		if err := requireRevisable(tx, op, b.ConventionID); err != nil {
			return nil, err
		}
		if b.ExceedsPlafond() {
			return nil, plafondErr(op, b.Total, b.PlafondConvention)
		}
		now := s.now().UTC()
		t, err := s.budgetStep(tx, op, b, actor, workflow.ActionSoumettre, "", map[string]any{"date_soumission": &now})
		return []transition{t}, err
	})
}

// Valider activates a pending version and archives the version it replaces
// in the same transaction.
func (s *BudgetService) Valider(ctx context.Context, id, actor uint) (_ *models.Budget, err error) {
	const op = "budget.valider"
	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	return s.run(ctx, op, id, func(tx *gorm.DB, b *models.Budget) ([]transition, error) {
		if _, ok := workflow.BudgetTarget(b.Statut, workflow.ActionValider); !ok {
			return nil, apperr.InvalidTransition(op, string(b.Statut), string(workflow.ActionValider))
		}
		if err := requireRevisable(tx, op, b.ConventionID); err != nil {
			return nil, err
		}
		if b.ExceedsPlafond() {
			return nil, plafondErr(op, b.Total, b.PlafondConvention)
		}
		active, err := activeBudget(tx, b.ConventionID)
		if err != nil {
			return nil, internalErr(op, err)
		}
		if !samePredecessor(active, b.BudgetPrecedentID) {
			return nil, apperr.Concurrent(op, "the active budget version changed since this version was drafted")
		}
		var done []transition
		if active != nil {
			swapped, err := dbx.UpdateByStatus(tx, &models.Budget{}, active.ID, string(models.BudgetValide),
				map[string]any{"statut": models.BudgetArchive})
			if err != nil {
				return nil, internalErr(op, err)
			}
			if !swapped {
				return nil, apperr.Concurrent(op, "predecessor already archived")
			}
			archived := transition{conventionID: b.ConventionID, entity: models.EntityBudget, entityID: active.ID,
				from: string(models.BudgetValide), to: string(models.BudgetArchive), actor: actor,
				motif: "remplacé par " + b.Version}
			if err := s.record(tx, archived); err != nil {
				return nil, internalErr(op, err)
			}
			done = append(done, archived)
		}
		now := s.now().UTC()
		t, err := s.budgetStep(tx, op, b, actor, workflow.ActionValider, "", map[string]any{
			"date_validation": &now,
			"valide_par_id":   &actor,
		})
		if err != nil {
			return nil, err
		}
		return append(done, t), nil
	})
}

func samePredecessor(active *models.Budget, prevID *uint) bool {
	switch {
	case active == nil && prevID == nil:
		return true
	case active == nil || prevID == nil:
		return false
	default:
		return active.ID == *prevID
	}
}

// Rejeter refuses a SOUMIS version.
func (s *BudgetService) Rejeter(ctx context.Context, id, actor uint, motif string) (*models.Budget, error) {
	const op = "budget.rejeter"
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return nil, apperr.Required(op, "motif")
	}
	return s.run(ctx, op, id, func(tx *gorm.DB, b *models.Budget) ([]transition, error) {
		t, err := s.budgetStep(tx, op, b, actor, workflow.ActionRejeter, motif, map[string]any{"motif_rejet": motif})
		return []transition{t}, err
	})
}

// UpdateLignes replaces the lines of a BROUILLON version and recomputes its total once.
func (s *BudgetService) UpdateLignes(ctx context.Context, id, actor uint, in []LigneInput) (*models.Budget, error) {
	const op = "budget.update_lignes"
	lignes, err := buildLignes(op, in)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, op, id, func(tx *gorm.DB, b *models.Budget) ([]transition, error) {
		if b.Statut != models.BudgetBrouillon {
			return nil, apperr.InvalidTransition(op, string(b.Statut), string(workflow.ActionEdit))
		}
		if err := requireRevisable(tx, op, b.ConventionID); err != nil {
			return nil, err
		}
		total := models.SumLignes(lignes)
		if total.GreaterThan(b.PlafondConvention) {
			return nil, plafondErr(op, total, b.PlafondConvention)
		}
		if err := tx.Where("budget_id = ?", b.ID).Delete(&models.LigneBudget{}).Error; err != nil {
			return nil, internalErr(op, err)
		}
		for i := range lignes {
			lignes[i].BudgetID = b.ID
		}
		if err := tx.Create(&lignes).Error; err != nil {
			return nil, internalErr(op, err)
		}
		updates := map[string]any{"total": total}
		if b.BudgetPrecedentID != nil {
			var prev models.Budget
			if err := tx.First(&prev, *b.BudgetPrecedentID).Error; err != nil {
				return nil, internalErr(op, err)
			}
			delta := total.Sub(prev.Total)
			updates["delta_montant"] = &delta
		}
		if err := tx.Model(&models.Budget{}).Where("id = ?", b.ID).Updates(updates).Error; err != nil {
			return nil, internalErr(op, err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("budget lines replaced", "budget_id", id, "actor", actor, "total", out.Total.StringFixed(2))
	return out, nil
}

// Get loads a budget version with its ordered lines.
func (s *BudgetService) Get(ctx context.Context, id uint) (*models.Budget, error) {
	return loadBudget(s.db.WithContext(ctx), "budget.get", id)
}

// Active returns the VALIDE version of a convention, or a not found error.
func (s *BudgetService) Active(ctx context.Context, conventionID uint) (*models.Budget, error) {
	const op = "budget.active"
	db := s.db.WithContext(ctx)
	b, err := activeBudget(db, conventionID)
	if err != nil {
		return nil, internalErr(op, err)
	}
	if b == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, op, "convention %d has no active budget", conventionID)
	}
	return loadBudget(db, op, b.ID)
}

// Historique lists every version of a convention, oldest first.
func (s *BudgetService) Historique(ctx context.Context, conventionID uint) ([]models.Budget, error) {
	var out []models.Budget
	if err := s.db.WithContext(ctx).Where("convention_id = ?", conventionID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, internalErr("budget.historique", err)
	}
	return out, nil
}

// EstimateCommission computes the commission the budget total would generate
// under the convention's effective policy.
func (s *BudgetService) EstimateCommission(ctx context.Context, id uint) (*CommissionEstimate, error) {
	const op = "budget.estimate_commission"
	db := s.db.WithContext(ctx)
	b, err := loadBudget(db, op, id)
	if err != nil {
		return nil, err
	}
	c, err := loadConvention(db, op, b.ConventionID)
	if err != nil {
		return nil, err
	}
	params, err := resolveParameters(db, c)
	if err != nil {
		return nil, err
	}
	base := b.Total
	if params.BaseCalcul == models.BaseTTC {
		base = b.TotalTTC()
	}
	ht, err := computeCommission(op, base, params.Policy)
	if err != nil {
		return nil, err
	}
	return &CommissionEstimate{
		BudgetID:   b.ID,
		Base:       base,
		BaseCalcul: params.BaseCalcul,
		Breakdown:  commission.WithVAT(ht, params.TauxTva),
	}, nil
}
