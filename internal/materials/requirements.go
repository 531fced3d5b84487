package materials

import (
	"github.com/shopspring/decimal"
)

// EffectivePerUnit resolves the per-unit amount for one BOM entry. A supplied
// override applies only when the product has exactly one BOM entry: a single
// scalar cannot map onto several materials, so multi-material products always
// use each entry's stored amount.
func EffectivePerUnit(entry BOMEntry, entryCount int, override *decimal.Decimal) decimal.Decimal {
	if override != nil && entryCount == 1 {
		return *override
	}
	return entry.AmountPerUnit
}

// ComputeRequirements derives the raw-material quantities a product of the
// given quantity consumes, annotated with current stock and sufficiency.
// Pure computation over already-read BOM lines; no side effects.
func ComputeRequirements(lines []BOMLine, quantity int64, override *decimal.Decimal) []Requirement {
	qty := decimal.NewFromInt(quantity)
	reqs := make([]Requirement, 0, len(lines))
	for _, line := range lines {
		perUnit := EffectivePerUnit(line.Entry, len(lines), override)
		total := perUnit.Mul(qty)
		reqs = append(reqs, Requirement{
			MaterialID:    line.Material.ID,
			MaterialName:  line.Material.Name,
			CurrentStock:  line.Material.CurrentStock,
			Unit:          line.Material.Unit,
			AmountPerUnit: perUnit,
			TotalRequired: total,
			Sufficient:    line.Material.CurrentStock.GreaterThanOrEqual(total),
		})
	}
	return reqs
}
