package forecast

import (
	"slices"
	"strings"

	"retail-pulse/internal/models"
)

// Aggregate reduces a historical series to summary KPIs. An empty series
// yields the zero summary.
func Aggregate(historical []models.MonthlyRecord) models.KPISummary {
	n := len(historical)
	if n == 0 {
		return models.KPISummary{}
	}

	var summary models.KPISummary
	var marginSum, conversionSum, aovSum float64
	for _, rec := range historical {
		summary.TotalRevenue += rec.Revenue
		marginSum += rec.GrossMargin
		conversionSum += rec.ConversionRate
		aovSum += rec.AvgOrderValue
	}

	summary.AvgGrossMargin = marginSum / float64(n)
	summary.AvgConversionRate = conversionSum / float64(n)
	summary.AvgOrderValue = aovSum / float64(n)
	summary.MonthlyGrowthPercent = monthlyGrowth(historical)
	return summary
}

// monthlyGrowth compares the last record with the one before it. Fewer than
// two records, or a zero base, yield 0.
func monthlyGrowth(historical []models.MonthlyRecord) float64 {
	if len(historical) < 2 {
		return 0
	}
	last := historical[len(historical)-1].Revenue
	prev := historical[len(historical)-2].Revenue
	if prev == 0 {
		return 0
	}
	return (last - prev) * 100 / prev
}

// ChannelMix sums traffic per channel across the series and reports each
// channel's share of all visits, largest first.
func ChannelMix(historical []models.MonthlyRecord) []models.ChannelShare {
	totals := make(map[string]int)
	for _, ch := range models.Channels {
		totals[ch] = 0
	}

	var all int
	for _, rec := range historical {
		for ch, visits := range rec.TrafficBreakdown {
			totals[ch] += visits
			all += visits
		}
	}

	mix := make([]models.ChannelShare, 0, len(totals))
	for ch, visits := range totals {
		share := 0.0
		if all > 0 {
			share = float64(visits) / float64(all)
		}
		mix = append(mix, models.ChannelShare{Channel: ch, Visits: visits, Share: share})
	}

	slices.SortFunc(mix, func(a, b models.ChannelShare) int {
		if a.Visits != b.Visits {
			if a.Visits > b.Visits {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Channel, b.Channel)
	})
	return mix
}
