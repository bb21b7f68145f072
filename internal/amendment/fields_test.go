package amendment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/diewo77/go-conventions/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConvention() *models.Convention {
	rate := decimal.RequireFromString("2.50")
	base := models.BaseHT
	return &models.Convention{
		Budget:         decimal.NewFromInt(1000000),
		TauxCommission: &rate,
		BaseCalcul:     &base,
		TauxTva:        decimal.NewFromInt(20),
		Libelle:        "Programme routes rurales",
		Objet:          "Financement",
		DateDebut:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DateFin:        time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCaptureCanonical(t *testing.T) {
	s := Capture(sampleConvention())
	assert.Equal(t, "1000000.00", s["budget"])
	assert.Equal(t, "2.5", s["tauxCommission"])
	assert.Equal(t, "HT", s["baseCalcul"])
	assert.Equal(t, "20", s["tauxTva"])
	assert.Equal(t, "2027-12-31", s["dateFin"])
	assert.Equal(t, "", s["description"])
	assert.Len(t, s, len(Fields))
}

func TestCaptureInheritedRate(t *testing.T) {
	c := sampleConvention()
	c.TauxCommission = nil
	c.BaseCalcul = nil
	s := Capture(c)
	assert.Equal(t, "", s["tauxCommission"])
	assert.Equal(t, "", s["baseCalcul"])
}

func TestNormalize(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"budget":1500000,"tauxCommission":"3.0","dateFin":"2028-06-30","baseCalcul":"ttc"}`), &raw))
	mods, violations := Normalize(raw)
	require.Nil(t, violations)
	assert.Equal(t, "1500000.00", mods["budget"])
	assert.Equal(t, "3", mods["tauxCommission"])
	assert.Equal(t, "2028-06-30", mods["dateFin"])
	assert.Equal(t, "TTC", mods["baseCalcul"])
}

func TestNormalizeRejects(t *testing.T) {
	_, violations := Normalize(map[string]any{
		"statut":         "VALIDEE",
		"budget":         "-5",
		"tauxCommission": "140",
		"dateFin":        "31/12/2027",
		"libelle":        "  ",
		"baseCalcul":     "NET",
		"objet":          []string{"x"},
	})
	assert.Equal(t, "not_amendable", violations["statut"])
	assert.Equal(t, "must_be_positive", violations["budget"])
	assert.Equal(t, "out_of_range", violations["tauxCommission"])
	assert.Equal(t, "invalid_date", violations["dateFin"])
	assert.Equal(t, "required", violations["libelle"])
	assert.Equal(t, "invalid_base", violations["baseCalcul"])
	assert.Equal(t, "invalid_value", violations["objet"])
}

func TestApplyThenCaptureRoundTrip(t *testing.T) {
	c := sampleConvention()
	before := Capture(c)
	mods, violations := Normalize(map[string]any{"budget": "1200000", "dateFin": "2028-01-31", "tauxTva": 10})
	require.Nil(t, violations)
	require.NoError(t, Apply(c, mods))

	assert.Equal(t, Replay(before, mods), Capture(c))
	assert.ElementsMatch(t, []string{"budget", "dateFin", "tauxTva"}, Diff(before, Capture(c)))
}

func TestApplyUnknownField(t *testing.T) {
	require.Error(t, Apply(sampleConvention(), map[string]string{"statut": "ANNULE"}))
}

func TestReplayOrder(t *testing.T) {
	base := Snapshot{"budget": "100.00", "libelle": "A"}
	got := Replay(base, map[string]string{"budget": "200.00"}, map[string]string{"budget": "300.00", "libelle": "B"})
	assert.Equal(t, Snapshot{"budget": "300.00", "libelle": "B"}, got)
	assert.Equal(t, "100.00", base["budget"], "replay must not mutate its base")
}

func TestComputeDeltas(t *testing.T) {
	before := Capture(sampleConvention())

	d := ComputeDeltas(before, map[string]string{"libelle": "Nouveau"})
	assert.Nil(t, d.Budget, "absent budget means unchanged, not zero")
	assert.Nil(t, d.TauxCommission)
	assert.Nil(t, d.ImpactDelaiJours)

	d = ComputeDeltas(before, map[string]string{"budget": "1250000.00", "tauxCommission": "2", "dateFin": "2028-01-10"})
	require.NotNil(t, d.Budget)
	assert.True(t, d.Budget.Equal(decimal.NewFromInt(250000)))
	assert.True(t, d.TauxCommission.Equal(decimal.RequireFromString("-0.5")))
	require.NotNil(t, d.ImpactDelaiJours)
	assert.Equal(t, 10, *d.ImpactDelaiJours)

	d = ComputeDeltas(before, map[string]string{"budget": "1000000.00"})
	require.NotNil(t, d.Budget)
	assert.True(t, d.Budget.IsZero(), "explicit unchanged value yields a zero delta")
}
