package provider

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"retail-pulse/internal/forecast"
	"retail-pulse/internal/models"
)

const (
	baseRevenue      = 850_000
	revenueRange     = 150_000
	baseUnits        = 2_800
	unitsRange       = 500
	baseMargin       = 0.68
	marginSpread     = 0.04
	baseConversion   = 0.034
	conversionSpread = 0.004
	baseOrderValue   = 280
	orderValueRange  = 40
)

type trafficDraw struct {
	channel string
	base    float64
	width   float64
}

var trafficDraws = []trafficDraw{
	{models.ChannelOrganic, 15_000, 3_000},
	{models.ChannelPaid, 8_000, 2_000},
	{models.ChannelSocial, 5_000, 1_500},
	{models.ChannelEmail, 4_000, 1_000},
	{models.ChannelDirect, 12_000, 2_500},
}

// Generator produces a mock year of monthly records from an injected random
// source. Each Historical call draws a new series from the same source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// NewSeededGenerator returns a generator whose series sequence is fully
// determined by seed.
func NewSeededGenerator(seed uint64) *Generator {
	return NewGenerator(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func (g *Generator) Name() string {
	return "mock"
}

func (g *Generator) Historical(ctx context.Context) ([]models.MonthlyRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]models.MonthlyRecord, 0, forecast.PeriodsPerYear)
	for i := 0; i < forecast.PeriodsPerYear; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, g.record(i))
	}
	return records, nil
}

func (g *Generator) record(period int) models.MonthlyRecord {
	scale := forecast.Multiplier(period)

	rec := models.MonthlyRecord{
		Period:           models.PeriodLabels[period],
		Revenue:          math.Round(g.uniform(baseRevenue, revenueRange) * scale),
		Units:            int(math.Round(g.uniform(baseUnits, unitsRange) * scale)),
		GrossMargin:      g.uniform(baseMargin-marginSpread, 2*marginSpread),
		ConversionRate:   g.uniform(baseConversion-conversionSpread, 2*conversionSpread),
		AvgOrderValue:    math.Round(g.uniform(baseOrderValue, orderValueRange)),
		TrafficBreakdown: make(models.TrafficBreakdown, len(trafficDraws)),
	}
	for _, d := range trafficDraws {
		rec.TrafficBreakdown[d.channel] = int(math.Round(g.uniform(d.base, d.width)))
	}
	return rec
}

// uniform draws from [lo, lo+width).
func (g *Generator) uniform(lo, width float64) float64 {
	return lo + g.rng.Float64()*width
}
