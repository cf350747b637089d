package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "retail-pulse/internal/errors"
	"retail-pulse/internal/forecast"
	"retail-pulse/internal/models"
	"retail-pulse/internal/provider"
)

type stubProvider struct {
	records []models.MonthlyRecord
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *stubProvider) Historical(context.Context) ([]models.MonthlyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.records, s.err
}

func (s *stubProvider) Name() string { return "stub" }

// blockingProvider holds its first call until release is closed.
type blockingProvider struct {
	records []models.MonthlyRecord
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingProvider(records []models.MonthlyRecord) *blockingProvider {
	return &blockingProvider{
		records: records,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingProvider) Historical(ctx context.Context) ([]models.MonthlyRecord, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.records, nil
}

func (b *blockingProvider) Name() string { return "blocking" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAnalytics(seed uint64) *Analytics {
	return NewAnalytics(provider.NewSeededGenerator(seed), forecast.DefaultParams(), testLogger())
}

func TestNewAnalytics(t *testing.T) {
	a := newTestAnalytics(1)
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.report != nil {
		t.Error("report should not be generated until first use")
	}
	if a.logger == nil {
		t.Error("logger should be initialized")
	}

	if NewAnalytics(provider.NewSeededGenerator(1), forecast.DefaultParams(), nil).logger == nil {
		t.Error("nil logger should fall back to the default logger")
	}
}

func TestAnalytics_ReportIsMemoized(t *testing.T) {
	a := newTestAnalytics(42)
	ctx := context.Background()

	first, err := a.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(first.Historical) != 12 || len(first.Forecast) != 12 {
		t.Fatalf("expected 12 historical and 12 forecast points, got %d/%d", len(first.Historical), len(first.Forecast))
	}
	if first.RunID == "" {
		t.Error("run id should be set")
	}
	if first.Source != "mock" {
		t.Errorf("Source = %q, want mock", first.Source)
	}

	second, err := a.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if second != first {
		t.Error("Report() should return the memoized run")
	}

	if first.KPIs != forecast.Aggregate(first.Historical) {
		t.Error("stored KPIs should match a fresh aggregation")
	}
	if first.Scenarios != forecast.Scenarios(first.KPIs.TotalRevenue) {
		t.Error("stored scenarios should derive from total revenue")
	}
}

func TestAnalytics_RefreshReplacesRun(t *testing.T) {
	a := newTestAnalytics(7)
	ctx := context.Background()

	first, err := a.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	second, err := a.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if first.RunID == second.RunID {
		t.Error("Refresh() should produce a new run id")
	}
	if first.Historical[0].Revenue == second.Historical[0].Revenue {
		t.Error("Refresh() should draw a new series")
	}

	current, _ := a.Report(ctx)
	if current != second {
		t.Error("Report() should return the refreshed run")
	}
}

func TestAnalytics_ForecastSlicesWithoutRegenerating(t *testing.T) {
	a := newTestAnalytics(99)
	ctx := context.Background()

	report, err := a.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	six, err := a.Forecast(ctx, 6)
	if err != nil {
		t.Fatalf("Forecast(6) error = %v", err)
	}
	twelve, err := a.Forecast(ctx, 12)
	if err != nil {
		t.Fatalf("Forecast(12) error = %v", err)
	}

	if len(six) != 6 || len(twelve) != 12 {
		t.Fatalf("expected 6 and 12 points, got %d and %d", len(six), len(twelve))
	}
	for i := range six {
		if six[i] != twelve[i] {
			t.Errorf("point %d differs between horizons", i)
		}
	}

	after, _ := a.Report(ctx)
	if after.RunID != report.RunID {
		t.Error("changing the horizon must not regenerate historical data")
	}
}

func TestAnalytics_ForecastRejectsHorizon(t *testing.T) {
	a := newTestAnalytics(1)

	for _, h := range []int{0, 3, 7, 13, 24} {
		_, err := a.Forecast(context.Background(), h)
		if err == nil {
			t.Errorf("Forecast(%d) should fail", h)
			continue
		}
		if !errors.Is(err, forecast.ErrInvalidHorizon) {
			t.Errorf("Forecast(%d) error = %v, want ErrInvalidHorizon", h, err)
		}
		appErr, ok := apperrors.As(err)
		if !ok || appErr.Code != apperrors.CodeValidation {
			t.Errorf("Forecast(%d) should return a validation AppError, got %v", h, err)
		}
	}
}

func TestAnalytics_SetHistorical(t *testing.T) {
	a := newTestAnalytics(1)
	records := []models.MonthlyRecord{
		{Period: "Nov", Revenue: 100, GrossMargin: 0.7, ConversionRate: 0.03, AvgOrderValue: 280},
		{Period: "Dec", Revenue: 110, GrossMargin: 0.6, ConversionRate: 0.04, AvgOrderValue: 300},
	}

	report, err := a.SetHistorical(records)
	if err != nil {
		t.Fatalf("SetHistorical() error = %v", err)
	}

	if report.Source != "supplied" {
		t.Errorf("Source = %q, want supplied", report.Source)
	}
	if report.KPIs.MonthlyGrowthPercent != 10 {
		t.Errorf("MonthlyGrowthPercent = %v, want 10", report.KPIs.MonthlyGrowthPercent)
	}
	if report.KPIs.TotalRevenue != 210 {
		t.Errorf("TotalRevenue = %v, want 210", report.KPIs.TotalRevenue)
	}
	if len(report.Forecast) != 2 || report.Forecast[1].Period != "Dec (F)" {
		t.Errorf("forecast should align with supplied records, got %+v", report.Forecast)
	}

	records[0].Revenue = 1
	if report.Historical[0].Revenue != 100 {
		t.Error("SetHistorical() should copy the supplied records")
	}

	points, err := a.Forecast(context.Background(), 12)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(points) != 2 {
		t.Errorf("expected horizon to be capped by projection length, got %d points", len(points))
	}
}

func TestAnalytics_SetHistoricalInvalid(t *testing.T) {
	a := newTestAnalytics(1)
	_, err := a.SetHistorical([]models.MonthlyRecord{{Period: "Jan", GrossMargin: 4}})

	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.CodeValidation {
		t.Fatalf("expected validation AppError, got %v", err)
	}
	var verr *provider.ValidationError
	if !errors.As(err, &verr) || verr.Field != "gross_margin" {
		t.Errorf("expected gross_margin ValidationError in chain, got %v", err)
	}
}

func TestAnalytics_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"validation", &provider.ValidationError{Line: 3, Field: "revenue", Reason: "not a number"}, apperrors.CodeValidation},
		{"empty", provider.ErrNoRecords, apperrors.CodeValidation},
		{"cancelled", context.Canceled, apperrors.CodeServiceUnavail},
		{"io", errors.New("disk on fire"), apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalytics(&stubProvider{err: tt.err}, forecast.DefaultParams(), testLogger())

			_, err := a.Report(context.Background())
			appErr, ok := apperrors.As(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.code {
				t.Errorf("code = %s, want %s", appErr.Code, tt.code)
			}
			if !errors.Is(err, tt.err) {
				t.Error("provider error should stay in the chain")
			}
		})
	}
}

func TestAnalytics_RejectsInvalidProviderData(t *testing.T) {
	stub := &stubProvider{records: []models.MonthlyRecord{{Period: "Jan", Revenue: -10}}}
	a := NewAnalytics(stub, forecast.DefaultParams(), testLogger())

	if _, err := a.Refresh(context.Background()); err == nil {
		t.Error("Refresh() should reject negative revenue")
	}
	if a.report != nil {
		t.Error("a failed run must not replace the current report")
	}
}

func TestAnalytics_RefreshSurvivesCallerCancel(t *testing.T) {
	records, err := provider.NewSeededGenerator(1).Historical(context.Background())
	if err != nil {
		t.Fatalf("generate records: %v", err)
	}
	slow := newBlockingProvider(records)
	a := NewAnalytics(slow, forecast.DefaultParams(), testLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.Refresh(firstCtx)
		firstErr <- err
	}()
	<-slow.entered

	type result struct {
		report *models.Report
		err    error
	}
	second := make(chan result, 1)
	go func() {
		report, err := a.Report(context.Background())
		second <- result{report, err}
	}()
	// Give the second caller time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err = <-firstErr
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.CodeServiceUnavail {
		t.Errorf("cancelled caller should get SERVICE_UNAVAILABLE, got %v", err)
	}

	close(slow.release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller should not see the first caller's cancellation: %v", got.err)
	}
	if len(got.report.Historical) != 12 {
		t.Errorf("expected a complete run, got %d records", len(got.report.Historical))
	}
	if calls := slow.calls.Load(); calls != 1 {
		t.Errorf("provider calls = %d, want 1 shared run", calls)
	}
}

func TestAnalytics_HistoricalReturnsCopy(t *testing.T) {
	a := newTestAnalytics(1)
	ctx := context.Background()

	first, err := a.Historical(ctx)
	if err != nil {
		t.Fatalf("Historical() error = %v", err)
	}
	first[0].Revenue = -1
	for channel := range first[0].TrafficBreakdown {
		first[0].TrafficBreakdown[channel] = -1
	}

	report, err := a.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Historical[0].Revenue < 0 {
		t.Error("mutating the result should not change the stored run")
	}
	for channel, visits := range report.Historical[0].TrafficBreakdown {
		if visits < 0 {
			t.Errorf("traffic for %s leaked from the caller's copy", channel)
		}
	}
}

func TestAnalytics_ConcurrentAccess(t *testing.T) {
	a := newTestAnalytics(3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			// These should not panic or race
			if i%3 == 0 {
				_, _ = a.Refresh(ctx)
			}
			_, _ = a.Report(ctx)
			_, _ = a.Forecast(ctx, 6)
			_, _ = a.KPIs(ctx)
			_, _ = a.ChannelMix(ctx)
			_ = a.Stats()
		}(i)
	}
	wg.Wait()

	report, err := a.Report(ctx)
	if err != nil || len(report.Historical) != 12 {
		t.Errorf("expected a complete run after concurrent access, err = %v", err)
	}
}

func TestAnalytics_Stats(t *testing.T) {
	a := newTestAnalytics(5)

	stats := a.Stats()
	if stats["source"] != "mock" {
		t.Errorf("source = %v, want mock", stats["source"])
	}
	if _, ok := stats["run_id"]; ok {
		t.Error("run_id should be absent before the first run")
	}

	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	stats = a.Stats()
	if stats["records"] != 12 {
		t.Errorf("records = %v, want 12", stats["records"])
	}
	if stats["runs"] != int64(1) {
		t.Errorf("runs = %v, want 1", stats["runs"])
	}
}

func BenchmarkAnalytics_Refresh(b *testing.B) {
	a := newTestAnalytics(11)
	ctx := context.Background()

	for b.Loop() {
		_, _ = a.Refresh(ctx)
	}
}

func BenchmarkAnalytics_Forecast(b *testing.B) {
	a := newTestAnalytics(11)
	ctx := context.Background()
	_, _ = a.Report(ctx)

	b.ResetTimer()
	for b.Loop() {
		_, _ = a.Forecast(ctx, 6)
	}
}
