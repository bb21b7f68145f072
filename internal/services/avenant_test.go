package services

import (
	"context"
	"testing"

	"github.com/diewo77/go-conventions/internal/amendment"
	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, e *engine, id uint) amendment.Snapshot {
	t.Helper()
	c, err := e.conventions.Get(context.Background(), id)
	require.NoError(t, err)
	return amendment.Capture(c)
}

func TestConsolidationRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())

	steps := []map[string]any{
		{"budget": "1100000"},
		{"dateFin": "2028-06-30", "objet": "Extension du programme"},
		{"tauxCommission": 3, "libelle": "Programme routes et pistes"},
	}
	for n := 0; n <= len(steps); n++ {
		if n > 0 {
			av := e.amend(t, c.ID, steps[n-1])
			assert.Equal(t, models.VersionTag(n), av.VersionResultante)
			assert.Equal(t, n, av.OrdreApplication)
		}
		consolidated, err := e.avenants.GetVersionConsolidee(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VersionTag(n), consolidated.Version)
		assert.Len(t, consolidated.Avenants, n)
		assert.Equal(t, capture(t, e, c.ID), consolidated.Donnees, "after %d avenants", n)
	}

	got, err := e.conventions.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "V3", got.Version)
	assert.True(t, got.Budget.Equal(dec("1100000")))

	versions, err := e.avenants.HistoriqueVersions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	assert.Equal(t, "1000000.00", versions[0].Donnees["budget"])
	assert.Equal(t, "1100000.00", versions[1].Donnees["budget"])
	assert.Equal(t, "2027-12-31", versions[1].Donnees["dateFin"])
	assert.Equal(t, "2028-06-30", versions[2].Donnees["dateFin"])
	assert.Equal(t, "3", versions[3].Donnees["tauxCommission"])
}

func TestAvenantCreateCapturesStateAndDeltas(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())

	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{
		Objet:         "Prolongation",
		Modifications: map[string]any{"budget": "1250000", "dateFin": "2028-01-30"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Numero)
	assert.Equal(t, c.Code+"-AV01", a.Reference)
	assert.Equal(t, "1000000.00", a.DonneesAvant["budget"])
	require.NotNil(t, a.DeltaBudget)
	assert.True(t, a.DeltaBudget.Equal(dec("250000")))
	require.NotNil(t, a.ImpactDelaiJours)
	assert.Equal(t, 30, *a.ImpactDelaiJours)
	assert.Nil(t, a.DeltaTauxCommission)
}

func TestAvenantRejectsUnknownField(t *testing.T) {
	e := newEngine(t)
	c := e.validated(t, draft())
	_, err := e.avenants.Create(context.Background(), c.ID, tester, AvenantDraft{
		Objet:         "x",
		Modifications: map[string]any{"code": "NEW", "budget": "-5"},
	})
	require.True(t, apperr.IsCode(err, apperr.CodeValidationRequired))
	details := apperr.DetailsOf(err)
	assert.Equal(t, "not_amendable", details["modifications.code"])
	assert.Equal(t, "must_be_positive", details["modifications.budget"])
}

func TestAvenantNeedsAmendableConvention(t *testing.T) {
	e := newEngine(t)
	c := e.create(t, draft())
	_, err := e.avenants.Create(context.Background(), c.ID, tester, AvenantDraft{
		Objet: "x", Modifications: map[string]any{"budget": "10"},
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "got %v", err)
}

func TestAvenantSoumettreRequiresContent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{})
	require.NoError(t, err)

	_, err = e.avenants.Soumettre(ctx, a.ID, tester)
	require.True(t, apperr.IsCode(err, apperr.CodeValidationRequired))
	details := apperr.DetailsOf(err)
	assert.Equal(t, "required", details["objet"])
	assert.Equal(t, "required", details["modifications"])
}

func TestAvenantValiderDirectlyFromDraft(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "10"}})
	require.NoError(t, err)

	_, err = e.avenants.Valider(ctx, a.ID, tester)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))
}

func TestAvenantVersionMismatchIsConcurrent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "1200000"}})
	require.NoError(t, err)
	_, err = e.avenants.Soumettre(ctx, a.ID, tester)
	require.NoError(t, err)

	// Another writer advanced the version behind our back.
	require.NoError(t, e.db.Model(&models.Convention{}).Where("id = ?", c.ID).Update("version", "V7").Error)

	_, err = e.avenants.Valider(ctx, a.ID, tester)
	require.True(t, apperr.IsCode(err, apperr.CodeConcurrentModification), "got %v", err)

	got, err := e.avenants.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AvenantSoumis, got.Statut, "nothing is applied")
	conv, err := e.conventions.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, conv.Budget.Equal(dec("1000000")))
}

func TestAvenantBudgetBelowActiveBudget(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "Réduction", Modifications: map[string]any{"budget": "900000"}})
	require.NoError(t, err)
	_, err = e.avenants.Soumettre(ctx, a.ID, tester)
	require.NoError(t, err)

	_, err = e.avenants.Valider(ctx, a.ID, tester)
	require.True(t, apperr.IsCode(err, apperr.CodePlafondExceeded), "got %v", err)
	assert.Equal(t, "1000000.00", apperr.DetailsOf(err)["budget_actif"])
}

func TestAvenantDeleteDoesNotReuseNumber(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	first, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "10"}})
	require.NoError(t, err)
	require.NoError(t, e.avenants.Delete(ctx, first.ID, tester))

	second, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "y", Modifications: map[string]any{"budget": "10"}})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Numero)
	assert.Equal(t, c.Code+"-AV02", second.Reference)

	_, err = e.avenants.Soumettre(ctx, second.ID, tester)
	require.NoError(t, err)
	assert.True(t, apperr.IsCode(e.avenants.Delete(ctx, second.ID, tester), apperr.CodeInvalidTransition))
}

func TestAvenantProlongationResumesLateConvention(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	d := draft()
	d.DateDebut = day(2025, 1, 1)
	d.DateFin = day(2026, 2, 28)
	c := e.running(t, d)
	marked, err := e.conventions.DetecterRetards(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint{c.ID}, marked)

	e.amend(t, c.ID, map[string]any{"dateFin": "2026-12-31"})

	got, err := e.conventions.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConventionEnCours, got.Statut)
	assert.Equal(t, "V1", got.Version)
}

func TestAvenantRejeterThenResubmit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	a, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "1300000"}})
	require.NoError(t, err)
	_, err = e.avenants.Soumettre(ctx, a.ID, tester)
	require.NoError(t, err)

	back, err := e.avenants.Rejeter(ctx, a.ID, tester, "montant à justifier")
	require.NoError(t, err)
	assert.Equal(t, models.AvenantBrouillon, back.Statut)
	assert.Nil(t, back.DateSoumission)

	upd, err := e.avenants.Update(ctx, a.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "1150000"}})
	require.NoError(t, err)
	assert.True(t, upd.DeltaBudget.Equal(dec("150000")))
}

func TestAvenantStatistiques(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	e.amend(t, c.ID, map[string]any{"budget": "1100000"})
	e.amend(t, c.ID, map[string]any{"budget": "1050000"})
	_, err := e.avenants.Create(ctx, c.ID, tester, AvenantDraft{Objet: "x", Modifications: map[string]any{"budget": "2000000"}})
	require.NoError(t, err)

	st, err := e.avenants.Statistiques(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.ParStatut[models.AvenantValide])
	assert.EqualValues(t, 1, st.ParStatut[models.AvenantBrouillon])
	assert.Equal(t, 2, st.NombreApplications)
	assert.Equal(t, "V2", st.VersionCourante)
	assert.True(t, st.DeltaBudgetCumule.Equal(dec("50000")))
}

func inheritingChild(t *testing.T, e *engine) (parent, child *models.Convention) {
	t.Helper()
	ctx := context.Background()
	parent = e.validated(t, draft())
	c, err := e.conventions.CreerSousConvention(ctx, parent.ID, tester, ConventionDraft{Budget: dec("100000")}, true)
	require.NoError(t, err)
	_, err = e.conventions.Soumettre(ctx, c.ID, tester)
	require.NoError(t, err)
	child, err = e.conventions.Valider(ctx, c.ID, tester)
	require.NoError(t, err)
	return parent, child
}

func TestAvenantRateDetachesInheritingChild(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, child := inheritingChild(t, e)

	av := e.amend(t, child.ID, map[string]any{"tauxCommission": "4"})
	assert.Equal(t, "HT", av.Modifications["baseCalcul"], "the inherited base is recorded with the rate")

	params, err := e.conventions.EffectiveParameters(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, child.ID, params.SourceID)
	assert.True(t, params.TauxCommission.Equal(dec("4")), "got %s", params.TauxCommission)
	assert.Equal(t, models.BaseHT, params.BaseCalcul)

	got, err := e.conventions.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, got.HeriteParametres)
	assert.Equal(t, "V1", got.Version)

	consolidated, err := e.avenants.GetVersionConsolidee(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, amendment.Capture(got), consolidated.Donnees)

	bill, err := e.commissions.Facturer(ctx, child.ID, tester, "DEC-001", dec("10000"))
	require.NoError(t, err)
	assert.Equal(t, "400.00", bill.MontantHT.StringFixed(2))
}

func TestAvenantOtherFieldsKeepInheritance(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	parent, child := inheritingChild(t, e)

	e.amend(t, child.ID, map[string]any{"objet": "Lot 2"})
	got, err := e.conventions.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, got.HeriteParametres)
	params, err := e.conventions.EffectiveParameters(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, params.SourceID)
}

func TestAvenantRateDeltaUsesInheritedRate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, child := inheritingChild(t, e)

	a, err := e.avenants.Create(ctx, child.ID, tester, AvenantDraft{
		Objet:         "Révision du taux",
		Modifications: map[string]any{"tauxCommission": "4"},
	})
	require.NoError(t, err)
	require.NotNil(t, a.DeltaTauxCommission)
	assert.True(t, a.DeltaTauxCommission.Equal(dec("1.5")), "got %s", a.DeltaTauxCommission)
	assert.Equal(t, "", a.DonneesAvant["tauxCommission"], "the snapshot keeps the stored value")

	updated, err := e.avenants.Update(ctx, a.ID, tester, AvenantDraft{
		Objet:         "Révision du taux",
		Modifications: map[string]any{"tauxCommission": "2"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.DeltaTauxCommission)
	assert.True(t, updated.DeltaTauxCommission.Equal(dec("-0.5")), "got %s", updated.DeltaTauxCommission)
}
