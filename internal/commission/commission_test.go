package commission

import (
	"errors"
	"testing"

	"github.com/diewo77/go-conventions/internal/assert"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "amount = %s, want %s", got, want)
}

func TestComputeFixedRate(t *testing.T) {
	got, err := Compute(d("1000000"), Policy{Mode: ModeFixedRate, Rate: d("2.5")})
	require.NoError(t, err)
	requireAmount(t, "25000", got)
}

func TestComputeFixedRateCeiling(t *testing.T) {
	got, err := Compute(d("1000000"), Policy{Mode: ModeFixedRate, Rate: d("2.5"), Plafond: ptr("20000")})
	require.NoError(t, err)
	requireAmount(t, "20000", got)
}

func TestComputeTranches(t *testing.T) {
	p := Policy{Mode: ModeTranches, Tranches: []Tranche{
		{Start: d("0"), End: d("100000"), Rate: d("2")},
		{Start: d("100000"), End: d("500000"), Rate: d("1.5")},
	}}
	got, err := Compute(d("250000"), p)
	require.NoError(t, err)
	requireAmount(t, "4250", got)
}

func TestComputeTranchesBeyondLastBand(t *testing.T) {
	p := Policy{Mode: ModeTranches, Tranches: []Tranche{
		{Start: d("0"), End: d("100000"), Rate: d("2")},
	}}
	got, err := Compute(d("300000"), p)
	require.NoError(t, err)
	// Only the first band is taxed; the rest is not covered by any band.
	requireAmount(t, "2000", got)
}

func TestComputeTranchesCallerOrder(t *testing.T) {
	p := Policy{Mode: ModeTranches, Tranches: []Tranche{
		{Start: d("100000"), End: d("500000"), Rate: d("1.5")},
		{Start: d("0"), End: d("100000"), Rate: d("2")},
	}}
	got, err := Compute(d("250000"), p)
	require.NoError(t, err)
	requireAmount(t, "3750", got)
}

func TestComputeEmptyTranchesFallsBackToFixed(t *testing.T) {
	got, err := Compute(d("1000"), Policy{Mode: ModeTranches, Rate: d("3")})
	require.NoError(t, err)
	requireAmount(t, "30", got)
}

func TestComputeMixteNotImplemented(t *testing.T) {
	_, err := Compute(d("1000"), Policy{Mode: ModeMixte, Rate: d("3")})
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestComputeNonPositiveBase(t *testing.T) {
	for _, base := range []string{"0", "-10"} {
		got, err := Compute(d(base), Policy{Mode: ModeFixedRate, Rate: d("5"), Minimum: ptr("100")})
		require.NoError(t, err)
		requireAmount(t, "0", got)
	}
}

func TestComputeFloorThenCeiling(t *testing.T) {
	got, err := Compute(d("100"), Policy{Mode: ModeFixedRate, Rate: d("1"), Minimum: ptr("50")})
	require.NoError(t, err)
	requireAmount(t, "50", got)

	// A floor above the ceiling is clamped back down by the ceiling.
	got, err = Compute(d("100"), Policy{Mode: ModeFixedRate, Rate: d("1"), Minimum: ptr("50"), Plafond: ptr("20")})
	require.NoError(t, err)
	requireAmount(t, "20", got)
}

func TestComputeNegativeWidthFailsLoudly(t *testing.T) {
	p := Policy{Mode: ModeTranches, Tranches: []Tranche{{Start: d("500"), End: d("100"), Rate: d("1")}}}
	_, err := Compute(d("1000"), p)
	require.True(t, errors.Is(err, assert.ErrAssertionFailed), "got %v", err)
}

func TestComputeUnknownMode(t *testing.T) {
	_, err := Compute(d("1000"), Policy{Mode: "PERCENT"})
	require.ErrorIs(t, err, assert.ErrAssertionFailed)
}

func TestTieredMonotonic(t *testing.T) {
	p := Policy{Mode: ModeTranches, Tranches: []Tranche{
		{Start: d("0"), End: d("100000"), Rate: d("2")},
		{Start: d("100000"), End: d("500000"), Rate: d("1.5")},
		{Start: d("600000"), End: d("2000000"), Rate: d("0.75")},
	}}
	prev := decimal.Zero
	for base := int64(0); base <= 2500000; base += 12500 {
		got, err := Compute(decimal.NewFromInt(base), p)
		require.NoError(t, err)
		require.Falsef(t, got.LessThan(prev), "commission decreased at base %d: %s < %s", base, got, prev)
		prev = got
	}
}

func TestWithVAT(t *testing.T) {
	b := WithVAT(d("4250"), d("20"))
	requireAmount(t, "4250", b.HT)
	requireAmount(t, "850", b.TVA)
	requireAmount(t, "5100", b.TTC)
}

func TestValidatePolicy(t *testing.T) {
	require.Nil(t, ValidatePolicy(Policy{Mode: ModeFixedRate, Rate: d("2.5")}))

	gap := Policy{Mode: ModeTranches, Tranches: []Tranche{
		{Start: d("0"), End: d("100"), Rate: d("2")},
		{Start: d("200"), End: d("300"), Rate: d("1")},
	}}
	require.Nil(t, ValidatePolicy(gap), "gaps are tolerated")

	bad := Policy{Mode: "X", Rate: d("120"), Tranches: []Tranche{
		{Start: d("0"), End: d("100"), Rate: d("2")},
		{Start: d("50"), End: d("300"), Rate: d("1")},
		{Start: d("300"), End: d("300"), Rate: d("1")},
	}, Minimum: ptr("10"), Plafond: ptr("5")}
	v := ValidatePolicy(bad)
	require.Equal(t, "unknown_mode", v["mode"])
	require.Equal(t, "out_of_range", v["taux"])
	require.Equal(t, "overlaps_previous", v["tranches[1]"])
	require.Equal(t, "non_positive_width", v["tranches[2]"])
	require.Equal(t, "below_minimum", v["plafond"])
}
