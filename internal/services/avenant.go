package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-conventions/internal/amendment"
	"github.com/diewo77/go-conventions/internal/apperr"
	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/tracing"
	"github.com/diewo77/go-conventions/internal/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AvenantDraft is the editable content of an avenant.
type AvenantDraft struct {
	Objet         string         `json:"objet"`
	Motif         string         `json:"motif"`
	DateAvenant   *time.Time     `json:"date_avenant"`
	DateEffet     *time.Time     `json:"date_effet"`
	Modifications map[string]any `json:"modifications"`
}

// ConsolidatedVersion is the amendable state obtained by replaying the
// validated avenants over the V0 snapshot.
type ConsolidatedVersion struct {
	ConventionID uint               `json:"convention_id"`
	Version      string             `json:"version"`
	Donnees      amendment.Snapshot `json:"donnees"`
	Avenants     []uint             `json:"avenants"`
}

// VersionEntry is one step of the version history.
type VersionEntry struct {
	Version   string             `json:"version"`
	AvenantID *uint              `json:"avenant_id,omitempty"`
	Reference string             `json:"reference,omitempty"`
	DateEffet *time.Time         `json:"date_effet,omitempty"`
	Donnees   amendment.Snapshot `json:"donnees"`
}

// AvenantStats summarises the avenants of a convention.
type AvenantStats struct {
	ParStatut          map[models.AvenantStatus]int64 `json:"par_statut"`
	DeltaBudgetCumule  decimal.Decimal                `json:"delta_budget_cumule"`
	VersionCourante    string                         `json:"version_courante"`
	NombreApplications int                            `json:"nombre_applications"`
}

type AvenantService struct {
	core
}

func NewAvenantService(db *gorm.DB, locker lock.Locker, log *logger.Logger) *AvenantService {
	return &AvenantService{core: newCore(db, locker, log, "avenants")}
}

func normalizeDraft(op string, d AvenantDraft) (map[string]string, error) {
	mods, violations := amendment.Normalize(d.Modifications)
	if len(violations) > 0 {
		details := make(map[string]string, len(violations))
		for k, v := range violations {
			details["modifications."+k] = v
		}
		return nil, apperr.WithDetails(apperr.CodeValidationRequired, op, "invalid modifications", details)
	}
	return mods, nil
}

func applyDeltas(a *models.Avenant, before amendment.Snapshot, mods map[string]string) {
	d := amendment.ComputeDeltas(before, mods)
	a.DeltaBudget = d.Budget
	a.DeltaTauxCommission = d.TauxCommission
	a.ImpactDelaiJours = d.ImpactDelaiJours
}

// Create drafts an avenant on an amendable convention. The current amendable
// fields are copied into DonneesAvant once and never re-derived.
func (s *AvenantService) Create(ctx context.Context, conventionID, actor uint, d AvenantDraft) (*models.Avenant, error) {
	const op = "avenant.create"
	mods, err := normalizeDraft(op, d)
	if err != nil {
		return nil, err
	}
	var a *models.Avenant
	err = s.lockedTx(ctx, op, conventionID, func(tx *gorm.DB) error {
		c, err := loadConvention(tx, op, conventionID)
		if err != nil {
			return err
		}
		if !workflow.ConventionPermits(c.Statut, workflow.ActionAmender) {
			return apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionAmender))
		}
		var n int64
		if err := tx.Unscoped().Model(&models.Avenant{}).Where("convention_id = ?", conventionID).Count(&n).Error; err != nil {
			return internalErr(op, err)
		}
		numero := int(n) + 1
		before := amendment.Capture(c)
		a = &models.Avenant{
			ConventionID:  conventionID,
			Numero:        numero,
			Reference:     fmt.Sprintf("%s-AV%02d", c.Code, numero),
			DateAvenant:   s.today(),
			Objet:         strings.TrimSpace(d.Objet),
			Motif:         strings.TrimSpace(d.Motif),
			Statut:        models.AvenantBrouillon,
			DonneesAvant:  models.JSONMapOf(before),
			Modifications: models.JSONMapOf(mods),
			RedigeParID:   actor,
		}
		if d.DateAvenant != nil {
			a.DateAvenant = models.Day(*d.DateAvenant)
		}
		if d.DateEffet != nil {
			eff := models.Day(*d.DateEffet)
			a.DateEffet = &eff
		}
		baseline, err := effectiveSnapshot(tx, c)
		if err != nil {
			return err
		}
		applyDeltas(a, baseline, mods)
		if err := tx.Create(a).Error; err != nil {
			return createErr(op, err)
		}
		return s.record(tx, transition{conventionID: conventionID, entity: models.EntityAvenant, entityID: a.ID,
			to: string(a.Statut), actor: actor})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("avenant created", "avenant_id", a.ID, "convention_id", conventionID, "reference", a.Reference, "actor", actor)
	return a, nil
}

// Get loads an avenant.
func (s *AvenantService) Get(ctx context.Context, id uint) (*models.Avenant, error) {
	return loadAvenant(s.db.WithContext(ctx), "avenant.get", id)
}

// List returns the avenants of a convention by number.
func (s *AvenantService) List(ctx context.Context, conventionID uint) ([]models.Avenant, error) {
	var out []models.Avenant
	if err := s.db.WithContext(ctx).Where("convention_id = ?", conventionID).Order("numero ASC").Find(&out).Error; err != nil {
		return nil, internalErr("avenant.list", err)
	}
	return out, nil
}

// Update replaces the content of a BROUILLON avenant. Deltas are recomputed
// against the snapshot taken at creation, inherited fields read as resolved.
func (s *AvenantService) Update(ctx context.Context, id, actor uint, d AvenantDraft) (*models.Avenant, error) {
	const op = "avenant.update"
	mods, err := normalizeDraft(op, d)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *models.Avenant
	err = s.lockedTx(ctx, op, current.ConventionID, func(tx *gorm.DB) error {
		a, err := loadAvenant(tx, op, id)
		if err != nil {
			return err
		}
		if !workflow.AvenantPermits(a.Statut, workflow.ActionEdit) {
			return apperr.InvalidTransition(op, string(a.Statut), string(workflow.ActionEdit))
		}
		a.Objet = strings.TrimSpace(d.Objet)
		a.Motif = strings.TrimSpace(d.Motif)
		a.Modifications = models.JSONMapOf(mods)
		if d.DateEffet != nil {
			eff := models.Day(*d.DateEffet)
			a.DateEffet = &eff
		}
		c, err := loadConvention(tx, op, a.ConventionID)
		if err != nil {
			return err
		}
		eff, err := effectiveSnapshot(tx, c)
		if err != nil {
			return err
		}
		baseline := amendment.Snapshot(a.SnapshotBefore()).Clone()
		for _, f := range inheritedFields {
			if baseline[string(f)] == "" {
				baseline[string(f)] = eff[string(f)]
			}
		}
		applyDeltas(a, baseline, mods)
		if err := tx.Omit("Convention").Save(a).Error; err != nil {
			return internalErr(op, err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("avenant updated", "avenant_id", id, "actor", actor)
	return out, nil
}

// avenantStep moves an avenant through action inside tx.
func (s *AvenantService) avenantStep(tx *gorm.DB, op string, a *models.Avenant, actor uint, action workflow.Action, motif string, updates map[string]any) (transition, error) {
	from := a.Statut
	to, ok := workflow.AvenantTarget(from, action)
	if !ok {
		return transition{}, apperr.InvalidTransition(op, string(from), string(action))
	}
	updates["statut"] = to
	swapped, err := dbx.UpdateByStatus(tx, &models.Avenant{}, a.ID, string(from), updates)
	if err != nil {
		return transition{}, internalErr(op, err)
	}
	if !swapped {
		return transition{}, apperr.Concurrent(op, "avenant status changed concurrently")
	}
	t := transition{conventionID: a.ConventionID, entity: models.EntityAvenant, entityID: a.ID,
		from: string(from), to: string(to), actor: actor, motif: motif}
	if err := s.record(tx, t); err != nil {
		return transition{}, internalErr(op, err)
	}
	return t, nil
}

// run loads avenant id, takes its convention lock and calls fn in a transaction.
func (s *AvenantService) run(ctx context.Context, op string, id uint, fn func(tx *gorm.DB, a *models.Avenant) ([]transition, error)) (*models.Avenant, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var done []transition
	var out *models.Avenant
	err = s.lockedTx(ctx, op, current.ConventionID, func(tx *gorm.DB) error {
		a, err := loadAvenant(tx, op, id)
		if err != nil {
			return err
		}
		done, err = fn(tx, a)
		if err != nil {
			return err
		}
		out, err = loadAvenant(tx, op, id)
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

// Soumettre submits a BROUILLON avenant that has an objet and at least one modification.
func (s *AvenantService) Soumettre(ctx context.Context, id, actor uint) (*models.Avenant, error) {
	const op = "avenant.soumettre"
	return s.run(ctx, op, id, func(tx *gorm.DB, a *models.Avenant) ([]transition, error) {
		if !workflow.AvenantPermits(a.Statut, workflow.ActionSoumettre) {
			return nil, apperr.InvalidTransition(op, string(a.Statut), string(workflow.ActionSoumettre))
		}
		details := map[string]string{}
		if strings.TrimSpace(a.Objet) == "" {
			details["objet"] = "required"
		}
		if len(a.ModifiedFields()) == 0 {
			details["modifications"] = "required"
		}
		if len(details) > 0 {
			return nil, apperr.WithDetails(apperr.CodeValidationRequired, op, "avenant is incomplete", details)
		}
		now := s.now().UTC()
		t, err := s.avenantStep(tx, op, a, actor, workflow.ActionSoumettre, "", map[string]any{
			"date_soumission": &now,
			"soumis_par_id":   &actor,
		})
		return []transition{t}, err
	})
}

// Rejeter sends a SOUMIS avenant back to BROUILLON.
func (s *AvenantService) Rejeter(ctx context.Context, id, actor uint, motif string) (*models.Avenant, error) {
	const op = "avenant.rejeter"
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return nil, apperr.Required(op, "motif")
	}
	return s.run(ctx, op, id, func(tx *gorm.DB, a *models.Avenant) ([]transition, error) {
		t, err := s.avenantStep(tx, op, a, actor, workflow.ActionRejeter, motif, map[string]any{
			"motif_rejet":     motif,
			"date_soumission": nil,
			"soumis_par_id":   nil,
		})
		return []transition{t}, err
	})
}

// Delete soft-deletes a BROUILLON avenant. Its number is not reused.
func (s *AvenantService) Delete(ctx context.Context, id, actor uint) error {
	const op = "avenant.delete"
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.lockedTx(ctx, op, current.ConventionID, func(tx *gorm.DB) error {
		a, err := loadAvenant(tx, op, id)
		if err != nil {
			return err
		}
		if !workflow.AvenantPermits(a.Statut, workflow.ActionDelete) {
			return apperr.InvalidTransition(op, string(a.Statut), string(workflow.ActionDelete))
		}
		if err := tx.Delete(a).Error; err != nil {
			return internalErr(op, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("avenant deleted", "avenant_id", id, "actor", actor)
	return nil
}

// Valider applies a SOUMIS avenant to its convention and advances the
// convention version to V(n+1), n being the number of avenants already applied.
func (s *AvenantService) Valider(ctx context.Context, id, actor uint) (_ *models.Avenant, err error) {
	const op = "avenant.valider"
	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	return s.run(ctx, op, id, func(tx *gorm.DB, a *models.Avenant) ([]transition, error) {
		if a.Statut != models.AvenantSoumis {
			return nil, apperr.InvalidTransition(op, string(a.Statut), string(workflow.ActionValider))
		}
		c, err := loadConvention(tx, op, a.ConventionID)
		if err != nil {
			return nil, err
		}
		if !workflow.ConventionPermits(c.Statut, workflow.ActionAmender) {
			return nil, apperr.InvalidTransition(op, string(c.Statut), string(workflow.ActionAmender))
		}

		var applied int64
		if err := tx.Model(&models.Avenant{}).
			Where("convention_id = ? AND statut = ?", c.ID, models.AvenantValide).
			Count(&applied).Error; err != nil {
			return nil, internalErr(op, err)
		}
		expected := models.VersionTag(int(applied))
		if c.Version != expected {
			return nil, apperr.Concurrent(op, fmt.Sprintf("convention version is %s, expected %s", c.Version, expected))
		}
		next := models.VersionTag(int(applied) + 1)

		mods := a.ModifiedFields()
		detached := c.HeriteParametres && touchesInherited(mods)
		if detached {
			if err := detachParameters(tx, c); err != nil {
				return nil, err
			}
			eff := amendment.Capture(c)
			for _, f := range inheritedFields {
				if _, ok := mods[string(f)]; !ok {
					mods[string(f)] = eff[string(f)]
				}
			}
		}
		if err := amendment.Apply(c, mods); err != nil {
			return nil, apperr.Wrap(apperr.CodeValidationRequired, op, err)
		}
		if c.DateFin.Before(c.DateDebut) {
			return nil, apperr.WithDetails(apperr.CodeValidationRequired, op, "date_fin before date_debut",
				map[string]string{"modifications.dateFin": "before_start"})
		}
		if _, ok := mods[string(amendment.FieldBudget)]; ok {
			if err := requireBudgetCovers(tx, op, c); err != nil {
				return nil, err
			}
		}

		updates := map[string]any{
			"budget":          c.Budget,
			"taux_commission": c.TauxCommission,
			"libelle":         c.Libelle,
			"objet":           c.Objet,
			"description":     c.Description,
			"date_debut":      c.DateDebut,
			"date_fin":        c.DateFin,
			"base_calcul":     c.BaseCalcul,
			"taux_tva":        c.TauxTva,
			"version":         next,
		}
		if detached {
			updates["herite_parametres"] = false
			updates["mode_commission"] = c.ModeCommission
			updates["tranches"] = c.Tranches
			updates["minimum_commission"] = c.MinimumCommission
			updates["plafond_commission"] = c.PlafondCommission
		}
		var done []transition
		if c.Statut == models.ConventionEnRetard && !c.DateFin.Before(s.today()) {
			to, _ := workflow.ConventionTarget(c.Statut, workflow.ActionReprendre)
			updates["statut"] = to
			done = append(done, transition{conventionID: c.ID, entity: models.EntityConvention, entityID: c.ID,
				from: string(c.Statut), to: string(to), actor: actor, motif: "prolongation par " + a.Reference})
		}
		swapped, err := dbx.UpdateByVersion(tx, &models.Convention{}, c.ID, expected, updates)
		if err != nil {
			return nil, internalErr(op, err)
		}
		if !swapped {
			return nil, apperr.Concurrent(op, "convention version changed concurrently")
		}
		for _, t := range done {
			if err := s.record(tx, t); err != nil {
				return nil, internalErr(op, err)
			}
		}

		now := s.now().UTC()
		avUpdates := map[string]any{
			"version_resultante": next,
			"ordre_application":  int(applied) + 1,
			"date_validation":    &now,
			"valide_par_id":      &actor,
		}
		if a.DateEffet == nil {
			today := s.today()
			avUpdates["date_effet"] = &today
		}
		if detached {
			avUpdates["modifications"] = models.JSONMapOf(mods)
		}
		t, err := s.avenantStep(tx, op, a, actor, workflow.ActionValider, "", avUpdates)
		if err != nil {
			return nil, err
		}
		return append([]transition{t}, done...), nil
	})
}

func touchesInherited(mods map[string]string) bool {
	for _, f := range inheritedFields {
		if _, ok := mods[string(f)]; ok {
			return true
		}
	}
	return false
}

// requireBudgetCovers rejects a budget below the active budget version total.
func requireBudgetCovers(tx *gorm.DB, op string, c *models.Convention) error {
	active, err := activeBudget(tx, c.ID)
	if err != nil {
		return internalErr(op, err)
	}
	if active == nil || !active.Total.GreaterThan(c.Budget) {
		return nil
	}
	return apperr.WithDetails(apperr.CodePlafondExceeded, op, "active budget exceeds the amended convention budget",
		map[string]string{
			"budget_actif":    active.Total.StringFixed(2),
			"nouveau_plafond": c.Budget.StringFixed(2),
			"version_budget":  active.Version,
		})
}

func (s *AvenantService) validated(db *gorm.DB, conventionID uint) ([]models.Avenant, error) {
	var out []models.Avenant
	err := db.Where("convention_id = ? AND statut = ?", conventionID, models.AvenantValide).
		Order("ordre_application ASC").Find(&out).Error
	return out, err
}

func baseSnapshot(c *models.Convention) amendment.Snapshot {
	if len(c.DonneesV0) == 0 {
		return amendment.Capture(c)
	}
	out := amendment.Snapshot{}
	for k, v := range c.DonneesV0 {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

// GetVersionConsolidee replays the validated avenants, in application order,
// over the snapshot captured at validation.
func (s *AvenantService) GetVersionConsolidee(ctx context.Context, conventionID uint) (*ConsolidatedVersion, error) {
	const op = "avenant.version_consolidee"
	db := s.db.WithContext(ctx)
	c, err := loadConvention(db, op, conventionID)
	if err != nil {
		return nil, err
	}
	avs, err := s.validated(db, conventionID)
	if err != nil {
		return nil, internalErr(op, err)
	}
	steps := make([]map[string]string, 0, len(avs))
	ids := make([]uint, 0, len(avs))
	for i := range avs {
		steps = append(steps, avs[i].ModifiedFields())
		ids = append(ids, avs[i].ID)
	}
	return &ConsolidatedVersion{
		ConventionID: conventionID,
		Version:      models.VersionTag(len(avs)),
		Donnees:      amendment.Replay(baseSnapshot(c), steps...),
		Avenants:     ids,
	}, nil
}

// HistoriqueVersions lists V0 followed by the state after each validated avenant.
func (s *AvenantService) HistoriqueVersions(ctx context.Context, conventionID uint) ([]VersionEntry, error) {
	const op = "avenant.historique_versions"
	db := s.db.WithContext(ctx)
	c, err := loadConvention(db, op, conventionID)
	if err != nil {
		return nil, err
	}
	avs, err := s.validated(db, conventionID)
	if err != nil {
		return nil, internalErr(op, err)
	}
	state := baseSnapshot(c)
	out := []VersionEntry{{Version: models.InitialVersion, Donnees: state}}
	for i := range avs {
		state = amendment.Replay(state, avs[i].ModifiedFields())
		id := avs[i].ID
		out = append(out, VersionEntry{
			Version:   avs[i].VersionResultante,
			AvenantID: &id,
			Reference: avs[i].Reference,
			DateEffet: avs[i].DateEffet,
			Donnees:   state,
		})
	}
	return out, nil
}

// Statistiques counts the avenants of a convention per status.
func (s *AvenantService) Statistiques(ctx context.Context, conventionID uint) (*AvenantStats, error) {
	const op = "avenant.statistiques"
	var avs []models.Avenant
	db := s.db.WithContext(ctx)
	if err := db.Where("convention_id = ?", conventionID).Find(&avs).Error; err != nil {
		return nil, internalErr(op, err)
	}
	c, err := loadConvention(db, op, conventionID)
	if err != nil {
		return nil, err
	}
	st := &AvenantStats{
		ParStatut: map[models.AvenantStatus]int64{
			models.AvenantBrouillon: 0, models.AvenantSoumis: 0, models.AvenantValide: 0,
		},
		DeltaBudgetCumule: decimal.Zero,
		VersionCourante:   c.Version,
	}
	for _, a := range avs {
		st.ParStatut[a.Statut]++
		if a.IsApplied() {
			st.NombreApplications++
			if a.DeltaBudget != nil {
				st.DeltaBudgetCumule = st.DeltaBudgetCumule.Add(*a.DeltaBudget)
			}
		}
	}
	return st, nil
}
