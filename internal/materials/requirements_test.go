package materials

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bomLine(materialID int64, name string, perUnit, stock string) BOMLine {
	return BOMLine{
		Entry: BOMEntry{MaterialID: materialID, AmountPerUnit: dec(perUnit)},
		Material: RawMaterial{
			ID:           materialID,
			Name:         name,
			CurrentStock: dec(stock),
			Unit:         "m",
		},
	}
}

func TestEffectivePerUnitOverrideSingleEntry(t *testing.T) {
	entry := BOMEntry{AmountPerUnit: dec("2.5")}
	override := dec("4.0")

	require.True(t, EffectivePerUnit(entry, 1, &override).Equal(dec("4.0")))
	require.True(t, EffectivePerUnit(entry, 1, nil).Equal(dec("2.5")))
}

func TestEffectivePerUnitOverrideIgnoredForMultiMaterial(t *testing.T) {
	entry := BOMEntry{AmountPerUnit: dec("2.5")}
	override := dec("4.0")

	require.True(t, EffectivePerUnit(entry, 2, &override).Equal(dec("2.5")))
}

func TestComputeRequirementsTotalsAndSufficiency(t *testing.T) {
	lines := []BOMLine{
		bomLine(1, "Aluminium Profile", "4.4", "50"),
		bomLine(2, "Glass Sheet 5mm", "1.2", "5"),
	}

	reqs := ComputeRequirements(lines, 10, nil)
	require.Len(t, reqs, 2)

	require.True(t, reqs[0].TotalRequired.Equal(dec("44")))
	require.True(t, reqs[0].Sufficient)

	require.True(t, reqs[1].TotalRequired.Equal(dec("12")))
	require.False(t, reqs[1].Sufficient)
}

func TestComputeRequirementsExactStockIsSufficient(t *testing.T) {
	lines := []BOMLine{bomLine(1, "Rubber Seal", "2", "20")}

	reqs := ComputeRequirements(lines, 10, nil)
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].Sufficient)
	require.True(t, reqs[0].TotalRequired.Equal(dec("20")))
}

func TestComputeRequirementsOverrideAppliesToSingleLine(t *testing.T) {
	lines := []BOMLine{bomLine(1, "Aluminium Profile", "4.4", "100")}
	override := dec("6")

	reqs := ComputeRequirements(lines, 3, &override)
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].AmountPerUnit.Equal(dec("6")))
	require.True(t, reqs[0].TotalRequired.Equal(dec("18")))
}

func TestComputeRequirementsEmptyBOM(t *testing.T) {
	reqs := ComputeRequirements(nil, 5, nil)
	require.Empty(t, reqs)
}

func TestMaterialStatusThresholds(t *testing.T) {
	cases := []struct {
		name     string
		stock    string
		minStock string
		want     MaterialStatus
	}{
		{"above minimum", "100", "10", StatusAvailable},
		{"at minimum", "10", "10", StatusLowStock},
		{"below minimum", "5", "10", StatusLowStock},
		{"zero", "0", "10", StatusOutOfStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := RawMaterial{CurrentStock: dec(tc.stock), MinStock: dec(tc.minStock)}
			require.Equal(t, tc.want, m.Status())
		})
	}
}
