package services

import (
	"context"
	"testing"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func revision(amounts ...string) Revision {
	r := Revision{Justification: "révision annuelle"}
	for i, a := range amounts {
		r.Lignes = append(r.Lignes, LigneInput{
			Code:    string(rune('A' + i)),
			Libelle: "Lot " + string(rune('A'+i)),
			Montant: dec(a),
			TauxTva: dec("20"),
		})
	}
	return r
}

func TestCreateNextVersionRejectsOverPlafond(t *testing.T) {
	e := newEngine(t)
	c := e.validated(t, draft())

	_, err := e.budgets.CreateNextVersion(context.Background(), c.ID, tester, revision("700000", "500000"))
	require.True(t, apperr.IsCode(err, apperr.CodePlafondExceeded), "got %v", err)
	details := apperr.DetailsOf(err)
	assert.Equal(t, "1200000.00", details["total"])
	assert.Equal(t, "1000000.00", details["plafond"])
	assert.Equal(t, "200000.00", details["depasse"])
}

func TestBudgetValiderArchivesPredecessor(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	v0, err := e.budgets.Active(ctx, c.ID)
	require.NoError(t, err)

	v1, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("900000", "50000"))
	require.NoError(t, err)
	assert.Equal(t, "V1", v1.Version)
	assert.Equal(t, models.BudgetBrouillon, v1.Statut)
	assert.True(t, v1.Total.Equal(dec("950000")))
	require.NotNil(t, v1.DeltaMontant)
	assert.True(t, v1.DeltaMontant.Equal(dec("-50000")))
	require.NotNil(t, v1.BudgetPrecedentID)
	assert.Equal(t, v0.ID, *v1.BudgetPrecedentID)

	_, err = e.budgets.Soumettre(ctx, v1.ID, tester)
	require.NoError(t, err)
	validated, err := e.budgets.Valider(ctx, v1.ID, tester)
	require.NoError(t, err)
	assert.Equal(t, models.BudgetValide, validated.Statut)

	old, err := e.budgets.Get(ctx, v0.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BudgetArchive, old.Statut)

	active, err := e.budgets.Active(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)
	require.Len(t, active.Lignes, 2)
	assert.Equal(t, "A", active.Lignes[0].Code)

	versions, err := e.budgets.Historique(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestCreateNextVersionOnePendingAtATime(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	_, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("100000"))
	require.NoError(t, err)

	_, err = e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("200000"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "got %v", err)
}

func TestCreateNextVersionNeedsValidatedConvention(t *testing.T) {
	e := newEngine(t)
	c := e.create(t, draft())
	_, err := e.budgets.CreateNextVersion(context.Background(), c.ID, tester, revision("100000"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "got %v", err)
}

func TestCreateNextVersionValidatesLines(t *testing.T) {
	e := newEngine(t)
	c := e.validated(t, draft())
	r := revision("-10")
	r.Lignes[0].Code = ""
	_, err := e.budgets.CreateNextVersion(context.Background(), c.ID, tester, r)
	require.True(t, apperr.IsCode(err, apperr.CodeValidationRequired))
	details := apperr.DetailsOf(err)
	assert.Equal(t, "required", details["lignes[0].code"])
	assert.Equal(t, "must_not_be_negative", details["lignes[0].montant"])
}

func TestBudgetValiderStalePredecessor(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	v1, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("800000"))
	require.NoError(t, err)

	// The version v1 was drafted against is no longer the active one.
	require.NoError(t, e.db.Model(&models.Budget{}).Where("id = ?", *v1.BudgetPrecedentID).
		Update("statut", models.BudgetArchive).Error)

	_, err = e.budgets.Valider(ctx, v1.ID, tester)
	require.True(t, apperr.IsCode(err, apperr.CodeConcurrentModification), "got %v", err)
	got, err := e.budgets.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BudgetBrouillon, got.Statut)
}

func TestBudgetRejeterAndUpdateLignes(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	v1, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("800000"))
	require.NoError(t, err)

	_, err = e.budgets.Rejeter(ctx, v1.ID, tester, "incomplet")
	require.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "a draft cannot be rejected")

	upd, err := e.budgets.UpdateLignes(ctx, v1.ID, tester, revision("300000", "300000").Lignes)
	require.NoError(t, err)
	assert.True(t, upd.Total.Equal(dec("600000")))
	assert.True(t, upd.DeltaMontant.Equal(dec("-400000")))
	assert.Len(t, upd.Lignes, 2)

	_, err = e.budgets.UpdateLignes(ctx, v1.ID, tester, revision("2000000").Lignes)
	require.True(t, apperr.IsCode(err, apperr.CodePlafondExceeded))

	_, err = e.budgets.Soumettre(ctx, v1.ID, tester)
	require.NoError(t, err)
	rejected, err := e.budgets.Rejeter(ctx, v1.ID, tester, "incomplet")
	require.NoError(t, err)
	assert.Equal(t, models.BudgetRejete, rejected.Statut)
	assert.Equal(t, "incomplet", rejected.MotifRejet)

	_, err = e.budgets.UpdateLignes(ctx, v1.ID, tester, revision("1").Lignes)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition))

	again, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("500000"))
	require.NoError(t, err, "a rejected version no longer blocks")
	assert.Equal(t, "V2", again.Version)
}

func TestEstimateCommission(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.validated(t, draft())
	v0, err := e.budgets.Active(ctx, c.ID)
	require.NoError(t, err)

	est, err := e.budgets.EstimateCommission(ctx, v0.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BaseHT, est.BaseCalcul)
	assert.Equal(t, "25000.00", est.HT.StringFixed(2))
	assert.Equal(t, "5000.00", est.TVA.StringFixed(2))
	assert.Equal(t, "30000.00", est.TTC.StringFixed(2))
}

func TestBudgetWorkStopsOnCancelledConvention(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	c := e.validated(t, draft())
	v1, err := e.budgets.CreateNextVersion(ctx, c.ID, tester, revision("800000"))
	require.NoError(t, err)

	other := e.validated(t, draft())
	pending, err := e.budgets.CreateNextVersion(ctx, other.ID, tester, revision("900000"))
	require.NoError(t, err)
	_, err = e.budgets.Soumettre(ctx, pending.ID, tester)
	require.NoError(t, err)

	for _, id := range []uint{c.ID, other.ID} {
		_, err = e.conventions.Annuler(ctx, id, tester, "abandon")
		require.NoError(t, err)
	}

	_, err = e.budgets.UpdateLignes(ctx, v1.ID, tester, revision("700000").Lignes)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "update lignes: %v", err)
	_, err = e.budgets.Soumettre(ctx, v1.ID, tester)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "soumettre: %v", err)
	_, err = e.budgets.Valider(ctx, pending.ID, tester)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidTransition), "valider: %v", err)

	active, err := e.budgets.Active(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InitialVersion, active.Version, "V0 stays active")
	assert.Equal(t, models.BudgetValide, active.Statut)
	got, err := e.budgets.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BudgetSoumis, got.Statut)
}

func TestEstimateCommissionMissingSource(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	parent, child := inheritingChild(t, e)
	v0, err := e.budgets.Active(ctx, child.ID)
	require.NoError(t, err)

	require.NoError(t, e.db.Delete(&models.Convention{}, parent.ID).Error)

	_, err = e.budgets.EstimateCommission(ctx, v0.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "estimate: %v", err)
	_, err = e.commissions.Facturer(ctx, child.ID, tester, "DEC-001", dec("1000"))
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "facturer: %v", err)
	_, err = e.partenaires.CommissionsIntervention(ctx, child.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "intervention: %v", err)
}
