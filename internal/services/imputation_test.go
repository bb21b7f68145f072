package services

import (
	"context"
	"testing"
	"time"

	"github.com/diewo77/go-conventions/internal/apperr"
	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImputationEngine(t *testing.T) (*ImputationService, *DimensionService, *imputation.CachedRegistry) {
	t.Helper()
	db := setupTestDB(t)
	if err := dbx.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	dims := NewDimensionService(db, nil)
	cached := imputation.NewCachedRegistry(dims, time.Minute)
	dims.SetInvalidator(cached)
	return NewImputationService(db, cached, nil), dims, cached
}

func TestDimensionRegistry(t *testing.T) {
	_, dims, _ := newImputationEngine(t)
	ctx := context.Background()

	active, err := dims.ActiveDimensions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{"REG"}, imputation.RequiredCodes(active))

	values, err := dims.ActiveValues(ctx, "REG")
	require.NoError(t, err)
	assert.Len(t, values, 4)

	require.NoError(t, dims.SetActive(ctx, "REG", "FES", false))
	values, err = dims.ActiveValues(ctx, "REG")
	require.NoError(t, err)
	assert.Len(t, values, 3)

	err = dims.SetActive(ctx, "REG", "NOPE", false)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestImputationCreateChecksMandatoryDimensions(t *testing.T) {
	svc, _, _ := newImputationEngine(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, tester, ImputationInput{
		Type: models.ImputationBudget, ReferenceID: 1, Montant: dec("1000"),
		Dimensions: map[string]string{"PHASE": "REAL"},
	})
	require.True(t, apperr.IsCode(err, apperr.CodeIncompleteImputation), "got %v", err)
	assert.Equal(t, "required", apperr.DetailsOf(err)["REG"])

	imp, err := svc.Create(ctx, tester, ImputationInput{
		Type: models.ImputationBudget, ReferenceID: 1, Montant: dec("1000"),
		Dimensions: map[string]string{"reg": "CAS", "X": "unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, "CAS", imp.Dimensions()["REG"])

	_, err = svc.Create(ctx, tester, ImputationInput{Type: "OTHER", Montant: dec("0")})
	require.True(t, apperr.IsCode(err, apperr.CodeValidationRequired))
	details := apperr.DetailsOf(err)
	assert.Equal(t, "invalid", details["type"])
	assert.Equal(t, "required", details["reference_id"])
	assert.Equal(t, "must_be_positive", details["montant"])
}

func TestNewMandatoryDimensionInvalidatesCache(t *testing.T) {
	svc, dims, _ := newImputationEngine(t)
	ctx := context.Background()
	in := ImputationInput{Type: models.ImputationBudget, ReferenceID: 7, Montant: dec("10"),
		Dimensions: map[string]string{"REG": "CAS"}}
	_, err := svc.Create(ctx, tester, in)
	require.NoError(t, err)

	_, err = dims.CreateDimension(ctx, "bailleur", "Bailleur de fonds", true, 4)
	require.NoError(t, err)
	_, err = svc.Create(ctx, tester, in)
	require.True(t, apperr.IsCode(err, apperr.CodeIncompleteImputation), "cached registry was refreshed")
	assert.Equal(t, "required", apperr.DetailsOf(err)["BAILLEUR"])

	_, err = dims.CreateDimension(ctx, "BAILLEUR", "doublon", false, 5)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestImputationTotalsAndAggregates(t *testing.T) {
	svc, _, _ := newImputationEngine(t)
	ctx := context.Background()
	lines := []struct {
		montant string
		dims    map[string]string
	}{
		{"40000", map[string]string{"REG": "CAS", "PHASE": "ETUDE"}},
		{"35000", map[string]string{"REG": "CAS", "PHASE": "REAL"}},
		{"25000", map[string]string{"REG": "RAB", "PHASE": "REAL"}},
	}
	for _, l := range lines {
		_, err := svc.Create(ctx, tester, ImputationInput{
			Type: models.ImputationBudget, ReferenceID: 3, Montant: dec(l.montant), Dimensions: l.dims,
		})
		require.NoError(t, err)
	}

	res, err := svc.ValidateTotal(ctx, models.ImputationBudget, 3, dec("100000"))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.True(t, res.TotalImpute.Equal(dec("100000")))

	_, err = svc.RequireBalanced(ctx, models.ImputationBudget, 3, dec("120000"))
	require.True(t, apperr.IsCode(err, apperr.CodeImputationMismatch))
	assert.Equal(t, "20000.00", apperr.DetailsOf(err)["difference"])

	byReg, err := svc.AggregateByDimension(ctx, models.ImputationBudget, "reg")
	require.NoError(t, err)
	assert.True(t, byReg["CAS"].Equal(dec("75000")))
	assert.True(t, byReg["RAB"].Equal(dec("25000")))

	cross, err := svc.AggregateByTwoDimensions(ctx, models.ImputationBudget, "REG", "PHASE")
	require.NoError(t, err)
	require.Len(t, cross, 3)
	assert.Equal(t, imputation.Pair{Dim1Value: "CAS", Dim2Value: "ETUDE", Montant: cross[0].Montant}, cross[0])
	assert.True(t, cross[0].Montant.Equal(dec("40000")))

	list, err := svc.List(ctx, models.ImputationBudget, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.NoError(t, svc.Delete(ctx, list[0].ID))
	assert.True(t, apperr.IsCode(svc.Delete(ctx, list[0].ID), apperr.CodeNotFound))

	n, err := svc.DeleteByReference(ctx, models.ImputationBudget, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
