package models

import "time"

// Traffic channels tracked per period.
const (
	ChannelOrganic = "organic"
	ChannelPaid    = "paid"
	ChannelSocial  = "social"
	ChannelEmail   = "email"
	ChannelDirect  = "direct"
)

// Channels lists every traffic channel in display order.
var Channels = []string{ChannelOrganic, ChannelPaid, ChannelSocial, ChannelEmail, ChannelDirect}

// PeriodLabels are the calendar-month identifiers, indexed 0-11.
var PeriodLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// TrafficBreakdown maps a channel name to its visit count. Channels are
// independent counters; nothing ties their sum to a total.
type TrafficBreakdown map[string]int

type MonthlyRecord struct {
	Period           string           `json:"period"`
	Revenue          float64          `json:"revenue"`
	Units            int              `json:"units"`
	GrossMargin      float64          `json:"gross_margin"`
	ConversionRate   float64          `json:"conversion_rate"`
	AvgOrderValue    float64          `json:"avg_order_value"`
	TrafficBreakdown TrafficBreakdown `json:"traffic_breakdown"`
}

type ForecastPoint struct {
	Period           string  `json:"period"`
	ProjectedRevenue float64 `json:"projected_revenue"`
	UpperBound       float64 `json:"upper_bound"`
	LowerBound       float64 `json:"lower_bound"`
	Confidence       float64 `json:"confidence"`
}

type KPISummary struct {
	TotalRevenue         float64 `json:"total_revenue"`
	AvgGrossMargin       float64 `json:"avg_gross_margin"`
	AvgConversionRate    float64 `json:"avg_conversion_rate"`
	AvgOrderValue        float64 `json:"avg_order_value"`
	MonthlyGrowthPercent float64 `json:"monthly_growth_percent"`
}

type ScenarioSet struct {
	Bear float64 `json:"bear"`
	Base float64 `json:"base"`
	Bull float64 `json:"bull"`
}

type ChannelShare struct {
	Channel string  `json:"channel"`
	Visits  int     `json:"visits"`
	Share   float64 `json:"share"`
}

// Report is a single generation run. It is built once and never mutated.
type Report struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Source      string          `json:"source"`
	Historical  []MonthlyRecord `json:"historical"`
	Forecast    []ForecastPoint `json:"forecast"`
	KPIs        KPISummary      `json:"kpis"`
	Scenarios   ScenarioSet     `json:"scenarios"`
	ChannelMix  []ChannelShare  `json:"channel_mix"`
}
