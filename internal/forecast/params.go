package forecast

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Params carries the heuristic constants of the engine. They are placeholders
// for a real model, not fitted values.
type Params struct {
	TrendGrowth     decimal.Decimal
	BandWidth       decimal.Decimal
	BaseConfidence  decimal.Decimal
	ConfidenceDecay decimal.Decimal
	BearMultiplier  decimal.Decimal
	BaseMultiplier  decimal.Decimal
	BullMultiplier  decimal.Decimal
}

func DefaultParams() Params {
	return Params{
		TrendGrowth:     decimal.RequireFromString("0.08"),
		BandWidth:       decimal.RequireFromString("0.10"),
		BaseConfidence:  decimal.RequireFromString("0.85"),
		ConfidenceDecay: decimal.RequireFromString("0.02"),
		BearMultiplier:  decimal.RequireFromString("0.85"),
		BaseMultiplier:  decimal.RequireFromString("1.08"),
		BullMultiplier:  decimal.RequireFromString("1.25"),
	}
}

// paramsFile is the on-disk shape of a parameter override. Omitted keys keep
// their default.
type paramsFile struct {
	TrendGrowth     *float64 `yaml:"trend_growth"`
	BandWidth       *float64 `yaml:"band_width"`
	BaseConfidence  *float64 `yaml:"base_confidence"`
	ConfidenceDecay *float64 `yaml:"confidence_decay"`
	Scenarios       struct {
		Bear *float64 `yaml:"bear"`
		Base *float64 `yaml:"base"`
		Bull *float64 `yaml:"bull"`
	} `yaml:"scenarios"`
}

// LoadParams reads a YAML override file on top of DefaultParams. An empty
// path returns the defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params file: %w", err)
	}

	var f paramsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Params{}, fmt.Errorf("decode params file: %w", err)
	}

	override(&p.TrendGrowth, f.TrendGrowth)
	override(&p.BandWidth, f.BandWidth)
	override(&p.BaseConfidence, f.BaseConfidence)
	override(&p.ConfidenceDecay, f.ConfidenceDecay)
	override(&p.BearMultiplier, f.Scenarios.Bear)
	override(&p.BaseMultiplier, f.Scenarios.Base)
	override(&p.BullMultiplier, f.Scenarios.Bull)

	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid params file %s: %w", path, err)
	}
	return p, nil
}

func override(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

func (p Params) Validate() error {
	one := decimal.NewFromInt(1)

	if p.TrendGrowth.LessThanOrEqual(one.Neg()) {
		return fmt.Errorf("trend growth must be greater than -1, got %s", p.TrendGrowth)
	}
	if p.BandWidth.IsNegative() || p.BandWidth.GreaterThanOrEqual(one) {
		return fmt.Errorf("band width must be in [0,1), got %s", p.BandWidth)
	}
	if p.BaseConfidence.IsNegative() || p.BaseConfidence.GreaterThan(one) {
		return fmt.Errorf("base confidence must be in [0,1], got %s", p.BaseConfidence)
	}
	if p.ConfidenceDecay.IsNegative() {
		return fmt.Errorf("confidence decay must not be negative, got %s", p.ConfidenceDecay)
	}
	if p.BearMultiplier.IsNegative() {
		return fmt.Errorf("bear multiplier must not be negative, got %s", p.BearMultiplier)
	}
	if p.BearMultiplier.GreaterThan(p.BaseMultiplier) || p.BaseMultiplier.GreaterThan(p.BullMultiplier) {
		return fmt.Errorf("scenario multipliers must satisfy bear <= base <= bull, got %s/%s/%s",
			p.BearMultiplier, p.BaseMultiplier, p.BullMultiplier)
	}
	return nil
}
