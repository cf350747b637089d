package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "retail-pulse/internal/errors"
	"retail-pulse/internal/forecast"
	"retail-pulse/internal/models"
	"retail-pulse/internal/observability"
	"retail-pulse/internal/provider"
)

const (
	sourceSupplied = "supplied"
	// refreshTimeout bounds a shared generation run once it is detached
	// from the caller that started it.
	refreshTimeout = 30 * time.Second
)

// Analytics memoizes one generation run and serves every view from it.
// Horizon changes re-slice the stored projection; only Refresh or
// SetHistorical replace the run.
type Analytics struct {
	mu       sync.RWMutex
	report   *models.Report
	provider provider.HistoricalProvider
	params   forecast.Params
	group    singleflight.Group
	runs     atomic.Int64
	logger   *slog.Logger
}

func NewAnalytics(p provider.HistoricalProvider, params forecast.Params, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{
		provider: p,
		params:   params,
		logger:   logger,
	}
}

// Refresh pulls a new series from the provider and replaces the current run.
// Concurrent callers share a single in-flight generation. The generation runs
// on a context detached from any one caller, so a caller that gives up only
// abandons its own wait.
func (a *Analytics) Refresh(ctx context.Context) (*models.Report, error) {
	ch := a.group.DoChan("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		ctx, span := observability.StartSpan(ctx, "analytics.refresh")
		defer span.Finish()
		span.SetTag("source", a.provider.Name())

		start := time.Now()
		records, err := a.provider.Historical(ctx)
		if err == nil {
			err = provider.Validate(records)
		}
		if err != nil {
			span.SetError(err)
			return nil, classify(err)
		}

		report := a.build(records, a.provider.Name())
		a.store(report)

		a.logger.InfoContext(ctx, "generation run complete",
			"run_id", report.RunID,
			"source", report.Source,
			"records", len(records),
			"duration", time.Since(start),
		)
		return report, nil
	})

	select {
	case <-ctx.Done():
		return nil, classify(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Report), nil
	}
}

// SetHistorical builds a run from caller-supplied records, bypassing the provider.
func (a *Analytics) SetHistorical(records []models.MonthlyRecord) (*models.Report, error) {
	if err := provider.Validate(records); err != nil {
		return nil, classify(err)
	}
	report := a.build(cloneRecords(records), sourceSupplied)
	a.store(report)
	return report, nil
}

// Report returns the current run, generating the first one on demand.
func (a *Analytics) Report(ctx context.Context) (*models.Report, error) {
	a.mu.RLock()
	report := a.report
	a.mu.RUnlock()

	if report != nil {
		return report, nil
	}
	return a.Refresh(ctx)
}

// Historical returns a copy of the current run's records, so callers may
// modify the result without touching the stored run.
func (a *Analytics) Historical(ctx context.Context) ([]models.MonthlyRecord, error) {
	report, err := a.Report(ctx)
	if err != nil {
		return nil, err
	}
	return cloneRecords(report.Historical), nil
}

func (a *Analytics) KPIs(ctx context.Context) (models.KPISummary, error) {
	report, err := a.Report(ctx)
	if err != nil {
		return models.KPISummary{}, err
	}
	return report.KPIs, nil
}

// Forecast returns the first horizon points of the current projection.
func (a *Analytics) Forecast(ctx context.Context, horizon int) ([]models.ForecastPoint, error) {
	if !forecast.ValidHorizon(horizon) {
		return nil, invalidHorizon(horizon)
	}
	report, err := a.Report(ctx)
	if err != nil {
		return nil, err
	}
	return ForecastOf(report, horizon)
}

// ForecastOf slices the projection of one run, so callers holding a report
// can pair its points with the rest of that run.
func ForecastOf(report *models.Report, horizon int) ([]models.ForecastPoint, error) {
	points, err := forecast.SliceHorizon(report.Forecast, horizon)
	if err != nil {
		return nil, invalidHorizon(horizon)
	}
	return points, nil
}

func invalidHorizon(horizon int) error {
	return apperrors.ValidationWrap(forecast.ErrInvalidHorizon,
		fmt.Sprintf("unsupported forecast horizon %d", horizon))
}

func (a *Analytics) Scenarios(ctx context.Context) (models.ScenarioSet, error) {
	report, err := a.Report(ctx)
	if err != nil {
		return models.ScenarioSet{}, err
	}
	return report.Scenarios, nil
}

func (a *Analytics) ChannelMix(ctx context.Context) ([]models.ChannelShare, error) {
	report, err := a.Report(ctx)
	if err != nil {
		return nil, err
	}
	return report.ChannelMix, nil
}

func (a *Analytics) build(records []models.MonthlyRecord, source string) *models.Report {
	kpis := forecast.Aggregate(records)
	return &models.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Historical:  records,
		Forecast:    a.params.Project(records),
		KPIs:        kpis,
		Scenarios:   a.params.Scenarios(kpis.TotalRevenue),
		ChannelMix:  forecast.ChannelMix(records),
	}
}

func (a *Analytics) store(report *models.Report) {
	a.mu.Lock()
	a.report = report
	a.mu.Unlock()
	a.runs.Add(1)
}

func cloneRecords(records []models.MonthlyRecord) []models.MonthlyRecord {
	out := slices.Clone(records)
	for i := range out {
		out[i].TrafficBreakdown = maps.Clone(out[i].TrafficBreakdown)
	}
	return out
}

func classify(err error) error {
	var verr *provider.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationWrap(err, "invalid historical data")
	case errors.Is(err, provider.ErrNoRecords):
		return apperrors.ValidationWrap(err, "historical data is empty")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ServiceUnavailableWrap(err, "historical data load interrupted")
	default:
		return apperrors.InternalWrap(err, "failed to load historical data")
	}
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"source": a.provider.Name(),
		"runs":   a.runs.Load(),
	}
	if a.report != nil {
		stats["run_id"] = a.report.RunID
		stats["generated_at"] = a.report.GeneratedAt
		stats["run_source"] = a.report.Source
		stats["records"] = len(a.report.Historical)
		stats["forecast_points"] = len(a.report.Forecast)
	}
	return stats
}
