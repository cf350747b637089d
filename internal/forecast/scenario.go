package forecast

import (
	"github.com/shopspring/decimal"

	"retail-pulse/internal/models"
)

// Scenarios applies the default bear/base/bull shocks.
func Scenarios(totalRevenue float64) models.ScenarioSet {
	return DefaultParams().Scenarios(totalRevenue)
}

func (p Params) Scenarios(totalRevenue float64) models.ScenarioSet {
	total := decimal.NewFromFloat(totalRevenue)
	return models.ScenarioSet{
		Bear: total.Mul(p.BearMultiplier).InexactFloat64(),
		Base: total.Mul(p.BaseMultiplier).InexactFloat64(),
		Bull: total.Mul(p.BullMultiplier).InexactFloat64(),
	}
}
