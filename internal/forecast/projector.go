package forecast

import (
	"errors"

	"github.com/shopspring/decimal"

	"retail-pulse/internal/models"
)

// Supported forecast horizons.
const (
	HorizonHalfYear = 6
	HorizonFullYear = 12
)

const forecastTag = " (F)"

var ErrInvalidHorizon = errors.New("forecast horizon must be 6 or 12")

// Project projects one point per historical record using the default
// parameters.
func Project(historical []models.MonthlyRecord) []models.ForecastPoint {
	return DefaultParams().Project(historical)
}

// Project returns one forecast point per input record, aligned by index.
// The projection is deterministic for a given input.
func (p Params) Project(historical []models.MonthlyRecord) []models.ForecastPoint {
	one := decimal.NewFromInt(1)
	growth := one.Add(p.TrendGrowth)
	upper := one.Add(p.BandWidth)
	lower := one.Sub(p.BandWidth)

	points := make([]models.ForecastPoint, len(historical))
	for i, rec := range historical {
		base := decimal.NewFromFloat(rec.Revenue).Mul(growth)

		confidence := p.BaseConfidence.Sub(p.ConfidenceDecay.Mul(decimal.NewFromInt(int64(i))))
		if confidence.IsNegative() {
			confidence = decimal.Zero
		}

		points[i] = models.ForecastPoint{
			Period:           ForecastLabel(rec.Period),
			ProjectedRevenue: base.Round(0).InexactFloat64(),
			UpperBound:       base.Mul(upper).Round(0).InexactFloat64(),
			LowerBound:       base.Mul(lower).Round(0).InexactFloat64(),
			Confidence:       confidence.InexactFloat64(),
		}
	}
	return points
}

// ForecastLabel tags a historical period label as a forecast period.
func ForecastLabel(period string) string {
	return period + forecastTag
}

func ValidHorizon(horizon int) bool {
	return horizon == HorizonHalfYear || horizon == HorizonFullYear
}

// SliceHorizon returns a copy of the first horizon points. It never
// re-projects; a horizon longer than the projection returns all of it.
func SliceHorizon(points []models.ForecastPoint, horizon int) ([]models.ForecastPoint, error) {
	if !ValidHorizon(horizon) {
		return nil, ErrInvalidHorizon
	}
	n := min(horizon, len(points))
	out := make([]models.ForecastPoint, n)
	copy(out, points[:n])
	return out, nil
}
