package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-conventions/internal/amendment"
	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/commission"
	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/tracing"
	"github.com/diewo77/go-conventions/internal/validation"
	"github.com/diewo77/go-conventions/internal/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GlobalLineCode is the single line of the budget created at validation.
const GlobalLineCode = "GLOBAL"

// ConventionDraft carries the fields of a new convention.
type ConventionDraft struct {
	Code              string                `json:"code"`
	Numero            string                `json:"numero"`
	Libelle           string                `json:"libelle"`
	Objet             string                `json:"objet"`
	Description       string                `json:"description"`
	Type              models.ConventionType `json:"type"`
	Budget            decimal.Decimal       `json:"budget"`
	TauxCommission    *decimal.Decimal      `json:"taux_commission"`
	BaseCalcul        *models.BaseCalcul    `json:"base_calcul"`
	TauxTva           decimal.Decimal       `json:"taux_tva"`
	ModeCommission    commission.Mode       `json:"mode_commission"`
	Tranches          []commission.Tranche  `json:"tranches"`
	MinimumCommission *decimal.Decimal      `json:"minimum_commission"`
	PlafondCommission *decimal.Decimal      `json:"plafond_commission"`
	DateDebut         time.Time             `json:"date_debut"`
	DateFin           time.Time             `json:"date_fin"`
}

// ConventionPatch lists direct edits; nil fields are left untouched.
type ConventionPatch struct {
	Libelle           *string               `json:"libelle"`
	Objet             *string               `json:"objet"`
	Description       *string               `json:"description"`
	Numero            *string               `json:"numero"`
	Budget            *decimal.Decimal      `json:"budget"`
	TauxCommission    *decimal.Decimal      `json:"taux_commission"`
	BaseCalcul        *models.BaseCalcul    `json:"base_calcul"`
	TauxTva           *decimal.Decimal      `json:"taux_tva"`
	ModeCommission    *commission.Mode      `json:"mode_commission"`
	Tranches          *[]commission.Tranche `json:"tranches"`
	MinimumCommission *decimal.Decimal      `json:"minimum_commission"`
	PlafondCommission *decimal.Decimal      `json:"plafond_commission"`
	DateDebut         *time.Time            `json:"date_debut"`
	DateFin           *time.Time            `json:"date_fin"`
}

type ConventionService struct {
	core
}

func NewConventionService(db *gorm.DB, locker lock.Locker, log *logger.Logger) *ConventionService {
	return &ConventionService{core: newCore(db, locker, log, "conventions")}
}

// Create stores a new convention in BROUILLON at version V0.
func (s *ConventionService) Create(ctx context.Context, actor uint, d ConventionDraft) (*models.Convention, error) {
	const op = "convention.create"
	c := newConventionFrom(d)
	v := validation.Violations{}
	validation.Required("libelle", d.Libelle, v)
	validation.Required("numero", d.Numero, v)
	validation.DateOrder("date_fin", d.DateDebut, d.DateFin, v)
	v.Merge(policyViolations(bandsOf(c)))
	if err := v.Err(op); err != nil {
		return nil, err
	}
	if c.Code == "" {
		c.Code = generateCode("CONV")
	}
	err := s.tx.InTx(ctx, func(tx *gorm.DB) error {
		if err := ensureUnique(tx, op, c.Code, c.Numero); err != nil {
			return err
		}
		if err := tx.Create(c).Error; err != nil {
			return createErr(op, err)
		}
		return s.record(tx, transition{conventionID: c.ID, entity: models.EntityConvention, entityID: c.ID,
			to: string(c.Statut), actor: actor})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("convention created", "convention_id", c.ID, "code", c.Code, "actor", actor)
	return c, nil
}

func newConventionFrom(d ConventionDraft) *models.Convention {
	c := &models.Convention{
		Code:              strings.TrimSpace(d.Code),
		Numero:            strings.TrimSpace(d.Numero),
		Libelle:           strings.TrimSpace(d.Libelle),
		Objet:             d.Objet,
		Description:       d.Description,
		Type:              d.Type,
		Statut:            models.ConventionBrouillon,
		Budget:            d.Budget.Round(2),
		TauxCommission:    d.TauxCommission,
		BaseCalcul:        d.BaseCalcul,
		TauxTva:           d.TauxTva,
		ModeCommission:    d.ModeCommission,
		Tranches:          datatypes.NewJSONType(d.Tranches),
		MinimumCommission: d.MinimumCommission,
		PlafondCommission: d.PlafondCommission,
		DateDebut:         models.Day(d.DateDebut),
		DateFin:           models.Day(d.DateFin),
		Version:           models.InitialVersion,
	}
	if c.Type == "" {
		c.Type = models.ConventionCadre
	}
	if c.ModeCommission == "" {
		c.ModeCommission = commission.ModeFixedRate
	}
	return c
}

func generateCode(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

func ensureUnique(tx *gorm.DB, op, code, numero string) error {
	var n int64
	if err := tx.Unscoped().Model(&models.Convention{}).
		Where("code = ? OR numero = ?", code, numero).Count(&n).Error; err != nil {
		return internalErr(op, err)
	}
	if n > 0 {
		return apperr.WithDetails(apperr.CodeConflict, op, "code or numero already used",
			map[string]string{"code": code, "numero": numero})
	}
	return nil
}

func createErr(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.CodeConflict, op, err)
	}
	return internalErr(op, err)
}

// Get loads a convention with its partners.
func (s *ConventionService) Get(ctx context.Context, id uint) (*models.Convention, error) {
	var c models.Convention
	if err := s.db.WithContext(ctx).Preload("Partenaires").First(&c, id).Error; err != nil {
		return nil, loadErr(err, "convention.get", "convention", id)
	}
	return &c, nil
}

// List returns conventions, optionally filtered by status, newest first.
func (s *ConventionService) List(ctx context.Context, statut models.ConventionStatus) ([]models.Convention, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if statut != "" {
		q = q.Where("statut = ?", statut)
	}
	var out []models.Convention
	if err := q.Find(&out).Error; err != nil {
		return nil, internalErr("convention.list", err)
	}
	return out, nil
}

// Update applies direct edits. Only an unlocked BROUILLON convention accepts them.
func (s *ConventionService) Update(ctx context.Context, id, actor uint, p ConventionPatch) (*models.Convention, error) {
	const op = "convention.update"
	var out *models.Convention
	err := s.lockedTx(ctx, op, id, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, id)
		if err != nil {
			return err
		}
		if err := requireEditable(op, c); err != nil {
			return err
		}
		if p.Numero != nil && strings.TrimSpace(*p.Numero) != c.Numero {
			var n int64
			if err := tx.Unscoped().Model(&models.Convention{}).Where("numero = ? AND id <> ?", strings.TrimSpace(*p.Numero), id).Count(&n).Error; err != nil {
				return internalErr(op, err)
			}
			if n > 0 {
				return apperr.New(apperr.CodeConflict, op, "numero already used")
			}
		}
		applyPatch(c, p)
		v := validation.Violations{}
		validation.Required("libelle", c.Libelle, v)
		validation.Required("numero", c.Numero, v)
		validation.DateOrder("date_fin", c.DateDebut, c.DateFin, v)
		if !c.HeriteParametres {
			v.Merge(policyViolations(bandsOf(c)))
		}
		if err := v.Err(op); err != nil {
			return err
		}
		if err := tx.Omit("Partenaires", "SousConventions").Save(c).Error; err != nil {
			return internalErr(op, err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("convention updated", "convention_id", id, "actor", actor)
	return out, nil
}

func requireEditable(op string, c *models.Convention) error {
	if !workflow.ConventionPermits(c.Statut, workflow.ActionEdit) {
		return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionEdit))
	}
	if c.IsLocked {
		return apperr.New(apperr.CodeInvalidTransition, op, "convention is locked")
	}
	return nil
}

func applyPatch(c *models.Convention, p ConventionPatch) {
	if p.Libelle != nil {
		c.Libelle = strings.TrimSpace(*p.Libelle)
	}
	if p.Objet != nil {
		c.Objet = *p.Objet
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Numero != nil {
		c.Numero = strings.TrimSpace(*p.Numero)
	}
	if p.Budget != nil {
		c.Budget = p.Budget.Round(2)
	}
	if p.TauxCommission != nil {
		c.TauxCommission = p.TauxCommission
	}
	if p.BaseCalcul != nil {
		c.BaseCalcul = p.BaseCalcul
	}
	if p.TauxTva != nil {
		c.TauxTva = *p.TauxTva
	}
	if p.ModeCommission != nil {
		c.ModeCommission = *p.ModeCommission
	}
	if p.Tranches != nil {
		c.Tranches = datatypes.NewJSONType(*p.Tranches)
	}
	if p.MinimumCommission != nil {
		c.MinimumCommission = p.MinimumCommission
	}
	if p.PlafondCommission != nil {
		c.PlafondCommission = p.PlafondCommission
	}
	if p.DateDebut != nil {
		c.DateDebut = models.Day(*p.DateDebut)
	}
	if p.DateFin != nil {
		c.DateFin = models.Day(*p.DateFin)
	}
}

// Delete soft-deletes a BROUILLON convention.
func (s *ConventionService) Delete(ctx context.Context, id, actor uint) error {
	const op = "convention.delete"
	err := s.lockedTx(ctx, op, id, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, id)
		if err != nil {
			return err
		}
		if !workflow.ConventionPermits(c.Statut, workflow.ActionDelete) {
			return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionDelete))
		}
		if err := tx.Delete(c).Error; err != nil {
			return internalErr(op, err)
		}
		return nil
	})
	if err == nil {
		s.log.Info("convention deleted", "convention_id", id, "actor", actor)
	}
	return err
}

// transitionFunc adds columns to a status update and may write related rows.
type transitionFunc func(tx *gorm.DB, c *models.Convention, updates map[string]any) error

// apply moves convention id through action under the convention lock.
func (s *ConventionService) apply(ctx context.Context, id, actor uint, action workflow.Action, motif string, fn transitionFunc) (_ *models.Convention, err error) {
	op := "convention." + string(action)
	ctx, span := tracing.Start(ctx, op, tracing.ConventionID(id))
	defer func() { tracing.End(span, err) }()

	var t transition
	var out *models.Convention
	err = s.lockedTx(ctx, op, id, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, id)
		if err != nil {
			return err
		}
		t, err = s.step(tx, op, c, actor, action, motif, fn)
		if err != nil {
			return err
		}
		out, err = loadConvention(tx, op, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(t)
	return out, nil
}

// step performs a transition of an already loaded convention inside tx.
func (s *ConventionService) step(tx *gorm.DB, op string, c *models.Convention, actor uint, action workflow.Action, motif string, fn transitionFunc) (transition, error) {
	from := c.Statut
	to, ok := workflow.ConventionTarget(from, action)
	if !ok {
		return transition{}, apperr.InvalidTransition(op, string(from), string(action))
	}
	updates := map[string]any{"statut": to}
	if fn != nil {
		if err := fn(tx, c, updates); err != nil {
			return transition{}, err
		}
	}
	swapped, err := dbx.UpdateByStatus(tx, &models.Convention{}, c.ID, string(from), updates)
	if err != nil {
		return transition{}, internalErr(op, err)
	}
	if !swapped {
		return transition{}, apperr.Concurrent(op, "convention status changed concurrently")
	}
	t := transition{conventionID: c.ID, entity: models.EntityConvention, entityID: c.ID,
		from: string(from), to: string(to), actor: actor, motif: motif}
	if err := s.record(tx, t); err != nil {
		return transition{}, internalErr(op, err)
	}
	return t, nil
}

// Soumettre submits a complete BROUILLON convention.
func (s *ConventionService) Soumettre(ctx context.Context, id, actor uint) (*models.Convention, error) {
	return s.apply(ctx, id, actor, workflow.ActionSoumettre, "", func(tx *gorm.DB, c *models.Convention, u map[string]any) error {
		if err := s.checkComplete(tx, c); err != nil {
			return err
		}
		now := s.now().UTC()
		u["date_soumission"] = &now
		u["soumis_par_id"] = &actor
		return nil
	})
}

// checkComplete gathers every missing or inconsistent field of c.
func (s *ConventionService) checkComplete(tx *gorm.DB, c *models.Convention) error {
	const op = "convention.soumettre"
	v := validation.Violations{}
	validation.Required("libelle", c.Libelle, v)
	validation.Required("numero", c.Numero, v)
	validation.PositiveDecimal("budget", c.Budget, v)
	validation.RequiredDate("date_debut", c.DateDebut, v)
	validation.RequiredDate("date_fin", c.DateFin, v)
	validation.DateOrder("date_fin", c.DateDebut, c.DateFin, v)

	params, err := resolveParameters(tx, c)
	if err != nil {
		return err
	}
	validation.Percentage("taux_commission", params.TauxCommission, v)
	validation.Percentage("taux_tva", c.TauxTva, v)
	v.Merge(policyViolations(params.Policy))

	var partners []models.ConventionPartenaire
	if err := tx.Where("convention_id = ?", c.ID).Find(&partners).Error; err != nil {
		return internalErr(op, err)
	}
	if len(partners) > 0 {
		sum := decimal.Zero
		for _, p := range partners {
			sum = sum.Add(p.Pourcentage)
		}
		if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(imputation.Tolerance) {
			v["partenaires"] = "sum_not_100"
		}
	}
	return v.Err(op)
}

// Valider validates a SOUMIS convention, creates its initial budget and
// captures the V0 snapshot used by consolidation.
func (s *ConventionService) Valider(ctx context.Context, id, actor uint) (*models.Convention, error) {
	return s.apply(ctx, id, actor, workflow.ActionValider, "", func(tx *gorm.DB, c *models.Convention, u map[string]any) error {
		now := s.now().UTC()
		u["date_validation"] = &now
		u["valide_par_id"] = &actor
		u["donnees_v0"] = models.JSONMapOf(amendment.Capture(c))

		var n int64
		if err := tx.Model(&models.Budget{}).Where("convention_id = ?", c.ID).Count(&n).Error; err != nil {
			return internalErr("convention.valider", err)
		}
		if n > 0 {
			return nil
		}
		b := models.Budget{
			ConventionID:      c.ID,
			Version:           models.InitialVersion,
			Statut:            models.BudgetValide,
			PlafondConvention: c.Budget,
			Total:             c.Budget,
			DateValidation:    &now,
			ValideParID:       &actor,
			CreeParID:         actor,
			Lignes: []models.LigneBudget{{
				Ordre: 1, Code: GlobalLineCode, Libelle: "Budget global", Montant: c.Budget, TauxTva: decimal.Zero,
			}},
		}
		if err := tx.Create(&b).Error; err != nil {
			return internalErr("convention.valider", err)
		}
		return s.record(tx, transition{conventionID: c.ID, entity: models.EntityBudget, entityID: b.ID,
			to: string(models.BudgetValide), actor: actor})
	})
}

// Rejeter sends a SOUMIS convention back to BROUILLON.
func (s *ConventionService) Rejeter(ctx context.Context, id, actor uint, motif string) (*models.Convention, error) {
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return nil, apperr.Required("convention.rejeter", "motif")
	}
	return s.apply(ctx, id, actor, workflow.ActionRejeter, motif, func(_ *gorm.DB, _ *models.Convention, u map[string]any) error {
		u["motif_rejet"] = motif
		u["date_soumission"] = nil
		u["soumis_par_id"] = nil
		return nil
	})
}

// Demarrer starts execution of a VALIDEE convention.
func (s *ConventionService) Demarrer(ctx context.Context, id, actor uint) (*models.Convention, error) {
	return s.apply(ctx, id, actor, workflow.ActionDemarrer, "", nil)
}

// Achever closes a running or late convention.
func (s *ConventionService) Achever(ctx context.Context, id, actor uint) (*models.Convention, error) {
	return s.apply(ctx, id, actor, workflow.ActionAchever, "", nil)
}

// Annuler cancels and locks a convention. Cancelling an ANNULE convention
// again succeeds without effect.
func (s *ConventionService) Annuler(ctx context.Context, id, actor uint, motif string) (*models.Convention, error) {
	const op = "convention.annuler"
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return nil, apperr.Required(op, "motif")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Statut == models.ConventionAnnule {
		return c, nil
	}
	out, err := s.apply(ctx, id, actor, workflow.ActionAnnuler, motif, func(_ *gorm.DB, _ *models.Convention, u map[string]any) error {
		u["motif_annulation"] = motif
		u["is_locked"] = true
		u["motif_verrouillage"] = "Annulée: " + motif
		return nil
	})
	if err != nil && apperr.IsCode(err, apperr.CodeInvalidTransition) {
		if again, getErr := s.Get(ctx, id); getErr == nil && again.Statut == models.ConventionAnnule {
			return again, nil
		}
	}
	return out, err
}

// Verrouiller forbids direct edits until Deverrouiller is called.
func (s *ConventionService) Verrouiller(ctx context.Context, id, actor uint, motif string) (*models.Convention, error) {
	const op = "convention.verrouiller"
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return nil, apperr.Required(op, "motif")
	}
	return s.setLock(ctx, op, id, actor, true, motif)
}

// Deverrouiller lifts an explicit lock. A cancelled convention stays locked.
func (s *ConventionService) Deverrouiller(ctx context.Context, id, actor uint) (*models.Convention, error) {
	return s.setLock(ctx, "convention.deverrouiller", id, actor, false, "")
}

func (s *ConventionService) setLock(ctx context.Context, op string, id, actor uint, locked bool, motif string) (*models.Convention, error) {
	var out *models.Convention
	err := s.lockedTx(ctx, op, id, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, id)
		if err != nil {
			return err
		}
		if c.Statut == models.ConventionAnnule {
			return apperr.InvalidTransition(op, string(c.Statut), op)
		}
		if err := tx.Model(c).Updates(map[string]any{"is_locked": locked, "motif_verrouillage": motif}).Error; err != nil {
			return internalErr(op, err)
		}
		out, err = loadConvention(tx, op, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("convention lock changed", "convention_id", id, "locked", locked, "actor", actor)
	return out, nil
}

// CreerSousConvention creates a child convention in BROUILLON. With
// herite the child stores no rate or base and reads its parent's.
func (s *ConventionService) CreerSousConvention(ctx context.Context, parentID, actor uint, d ConventionDraft, herite bool) (_ *models.Convention, err error) {
	const op = "convention.creer_sous_convention"
	ctx, span := tracing.Start(ctx, op, tracing.ConventionID(parentID))
	defer func() { tracing.End(span, err) }()

	var child *models.Convention
	err = s.lockedTx(ctx, op, parentID, func(tx *gorm.DB) error {
		parent, err := loadConvention(tx, op, parentID)
		if err != nil {
			return err
		}
		if !workflow.ConventionPermits(parent.Statut, workflow.ActionCreerSousConvention) {
			return apperr.InvalidTransition(op, string(parent.Statut), string(workflow.ActionCreerSousConvention))
		}
		if parent.IsLocked {
			return apperr.New(apperr.CodeInvalidTransition, op, "parent convention is locked")
		}
		var siblings int64
		if err := tx.Unscoped().Model(&models.Convention{}).Where("parent_id = ?", parentID).Count(&siblings).Error; err != nil {
			return internalErr(op, err)
		}
		if strings.TrimSpace(d.Numero) == "" {
			d.Numero = fmt.Sprintf("%s/%d", parent.Numero, siblings+1)
		}
		if strings.TrimSpace(d.Code) == "" {
			d.Code = fmt.Sprintf("%s-S%02d", parent.Code, siblings+1)
		}
		if strings.TrimSpace(d.Libelle) == "" {
			d.Libelle = parent.Libelle
		}
		if d.Type == "" {
			d.Type = models.ConventionSpecifique
		}
		if d.DateDebut.IsZero() {
			d.DateDebut = parent.DateDebut
		}
		if d.DateFin.IsZero() {
			d.DateFin = parent.DateFin
		}
		if d.TauxTva.IsZero() {
			d.TauxTva = parent.TauxTva
		}
		child = newConventionFrom(d)
		child.ParentID = &parent.ID
		child.HeriteParametres = herite
		if herite {
			child.TauxCommission = nil
			child.BaseCalcul = nil
			child.ModeCommission = parent.ModeCommission
		} else if child.TauxCommission == nil || child.BaseCalcul == nil {
			params, err := resolveParameters(tx, parent)
			if err != nil {
				return err
			}
			if child.TauxCommission == nil {
				rate := params.TauxCommission
				child.TauxCommission = &rate
			}
			if child.BaseCalcul == nil {
				base := params.BaseCalcul
				child.BaseCalcul = &base
			}
		}
		v := validation.Violations{}
		validation.Required("libelle", child.Libelle, v)
		validation.DateOrder("date_fin", child.DateDebut, child.DateFin, v)
		if err := v.Err(op); err != nil {
			return err
		}
		if err := ensureUnique(tx, op, child.Code, child.Numero); err != nil {
			return err
		}
		if err := tx.Create(child).Error; err != nil {
			return createErr(op, err)
		}
		return s.record(tx, transition{conventionID: child.ID, entity: models.EntityConvention, entityID: child.ID,
			to: string(child.Statut), actor: actor, motif: fmt.Sprintf("sous-convention de %d", parentID)})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sous-convention created", "convention_id", child.ID, "parent_id", parentID, "herite", herite, "actor", actor)
	return child, nil
}

// SousConventions lists the direct children of id.
func (s *ConventionService) SousConventions(ctx context.Context, id uint) ([]models.Convention, error) {
	var out []models.Convention
	if err := s.db.WithContext(ctx).Where("parent_id = ?", id).Order("id ASC").Find(&out).Error; err != nil {
		return nil, internalErr("convention.sous_conventions", err)
	}
	return out, nil
}

// EffectiveParameters resolves the rate, base and policy id applies.
func (s *ConventionService) EffectiveParameters(ctx context.Context, id uint) (Parameters, error) {
	db := s.db.WithContext(ctx)
	c, err := loadConvention(db, "convention.effective_parameters", id)
	if err != nil {
		return Parameters{}, err
	}
	return resolveParameters(db, c)
}

// EffectivePolicy is the commission policy part of EffectiveParameters.
func (s *ConventionService) EffectivePolicy(ctx context.Context, id uint) (commission.Policy, error) {
	p, err := s.EffectiveParameters(ctx, id)
	return p.Policy, err
}

// Historique returns every status fact recorded for the convention, oldest first.
func (s *ConventionService) Historique(ctx context.Context, id uint) ([]models.StatusChange, error) {
	var out []models.StatusChange
	if err := s.db.WithContext(ctx).Where("convention_id = ?", id).Order("at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, internalErr("convention.historique", err)
	}
	return out, nil
}

// Statistiques counts conventions per status; every status is present.
func (s *ConventionService) Statistiques(ctx context.Context) (map[models.ConventionStatus]int64, error) {
	type row struct {
		Statut models.ConventionStatus
		N      int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Convention{}).
		Select("statut, COUNT(*) AS n").Group("statut").Scan(&rows).Error; err != nil {
		return nil, internalErr("convention.statistiques", err)
	}
	out := make(map[models.ConventionStatus]int64, len(models.ConventionStatuses))
	for _, st := range models.ConventionStatuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Statut] = r.N
	}
	return out, nil
}

// DetecterRetards marks every EN_COURS convention whose end date is past as
// EN_RETARD and returns their ids.
func (s *ConventionService) DetecterRetards(ctx context.Context) ([]uint, error) {
	var candidates []models.Convention
	if err := s.db.WithContext(ctx).
		Where("statut = ? AND date_fin < ?", models.ConventionEnCours, s.today()).
		Find(&candidates).Error; err != nil {
		return nil, internalErr("convention.detecter_retards", err)
	}
	var marked []uint
	for _, c := range candidates {
		_, err := s.apply(ctx, c.ID, SystemActor, workflow.ActionMarquerRetard, "date de fin dépassée",
			func(_ *gorm.DB, cur *models.Convention, _ map[string]any) error {
				if !cur.IsLate(s.now()) {
					return apperr.New(apperr.CodeInvalidTransition, "convention.marquer_retard", "convention is not late")
				}
				return nil
			})
		if err != nil {
			if apperr.IsCode(err, apperr.CodeInvalidTransition) || apperr.IsCode(err, apperr.CodeConcurrentModification) {
				s.log.Debug("late detection skipped", "convention_id", c.ID, "error", err)
				continue
			}
			return marked, err
		}
		marked = append(marked, c.ID)
	}
	if len(marked) > 0 {
		s.log.Info("late conventions detected", "count", len(marked))
	}
	return marked, nil
}
