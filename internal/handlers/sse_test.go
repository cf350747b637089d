package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"retail-pulse/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSSEHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	logger := quietLogger()

	handlers := NewSSEHandlers(analytics, 6, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewSSEHandlers() should set analytics field")
	}
	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
	if handlers.defaultHorizon != 6 {
		t.Errorf("defaultHorizon = %d, want 6", handlers.defaultHorizon)
	}
}

func TestRenderFragments(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		data     any
		expected []string
	}{
		{
			"kpis", "kpis",
			models.KPISummary{TotalRevenue: 1234567, AvgGrossMargin: 0.655, AvgConversionRate: 0.034, AvgOrderValue: 280, MonthlyGrowthPercent: -2.5},
			[]string{`id="kpi-cards"`, "$1,234,567", "65.5%", "3.4%", "$280", "-2.5%"},
		},
		{
			"historical", "historical",
			[]models.MonthlyRecord{{Period: "Jan", Revenue: 850000, Units: 3200, GrossMargin: 0.66, ConversionRate: 0.031, AvgOrderValue: 275}},
			[]string{`id="historical-content"`, "<table", "Jan", "$850,000", "3,200", "66.0%"},
		},
		{
			"forecast", "forecast",
			[]models.ForecastPoint{{Period: "Dec (F)", ProjectedRevenue: 1080000, UpperBound: 1188000, LowerBound: 972000, Confidence: 0.63}},
			[]string{`id="forecast-content"`, "Dec (F)", "$1,080,000", "$1,188,000", "$972,000", "63.0%"},
		},
		{
			"scenarios", "scenarios",
			models.ScenarioSet{Bear: 8500000, Base: 10800000, Bull: 12500000},
			[]string{`id="scenario-content"`, "$8,500,000", "$10,800,000", "$12,500,000"},
		},
		{
			"empty historical", "historical",
			[]models.MonthlyRecord{},
			[]string{"<table", "</table>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := render(tt.fragment, tt.data)
			if err != nil {
				t.Fatalf("render(%s) failed: %v", tt.fragment, err)
			}
			for _, content := range tt.expected {
				if !strings.Contains(html, content) {
					t.Errorf("expected HTML to contain %q, got %s", content, html)
				}
			}
		})
	}
}

func TestRenderUnknownFragment(t *testing.T) {
	if _, err := render("missing", nil); err == nil {
		t.Error("render should fail for an undefined fragment")
	}
}

func TestSSEHandlers_HeaderConsistency(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), 12, quietLogger())

	sseEndpoints := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"dashboard", handlers.HandleDashboard},
		{"forecast", handlers.HandleForecast},
		{"five-ps", handlers.HandleFivePs},
		{"refresh-all", handlers.HandleRefreshAll},
	}

	for _, endpoint := range sseEndpoints {
		t.Run(endpoint.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sse/"+endpoint.name, nil)
			w := httptest.NewRecorder()

			endpoint.handler(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
				t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
				t.Errorf("expected cache-control 'no-cache', got %q", cc)
			}
			if w.Body.Len() == 0 {
				t.Error("response should not be empty")
			}
		})
	}
}

func TestSSEHandlers_Content(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), 12, quietLogger())

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected []string
	}{
		{"dashboard", handlers.HandleDashboard, []string{`id="kpi-cards"`, `id="historical-content"`, "historicalData", "kpiData"}},
		{"forecast", handlers.HandleForecast, []string{`id="forecast-content"`, `id="scenario-content"`, "forecastData", "scenarioData", "(F)"}},
		{"five-ps", handlers.HandleFivePs, []string{`id="five-ps-content"`, "Product", "Promotion", "People", "channelData"}},
		{"refresh-all", handlers.HandleRefreshAll, []string{`id="kpi-cards"`, `id="forecast-content"`, `id="five-ps-content"`, "forecastData"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			tt.handler(w, req)

			// Datastar frames the events; only the payload matters here
			body := w.Body.String()
			for _, content := range tt.expected {
				if !strings.Contains(body, content) {
					t.Errorf("response should contain %q", content)
				}
			}
		})
	}
}

func TestSSEHandlers_ForecastHorizon(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), 12, quietLogger())

	signals := url.Values{"datastar": {`{"horizon":"6"}`}}

	tests := []struct {
		name   string
		target string
		rows   int
	}{
		{"default", "/sse/forecast", 12},
		{"query", "/sse/forecast?horizon=6", 6},
		{"signals", "/sse/forecast?" + signals.Encode(), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handlers.HandleForecast(w, httptest.NewRequest(http.MethodGet, tt.target, nil))

			body := w.Body.String()
			if got := strings.Count(body, "(F)</td>"); got != tt.rows {
				t.Errorf("expected %d forecast rows, got %d", tt.rows, got)
			}
		})
	}
}

func TestSSEHandlers_ForecastInvalidHorizon(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), 12, quietLogger())

	fractional := url.Values{"datastar": {`{"horizon":6.9}`}}

	for _, target := range []string{"/sse/forecast?horizon=7", "/sse/forecast?horizon=abc", "/sse/forecast?" + fractional.Encode()} {
		w := httptest.NewRecorder()
		handlers.HandleForecast(w, httptest.NewRequest(http.MethodGet, target, nil))

		body := w.Body.String()
		if !strings.Contains(body, `class="error"`) {
			t.Errorf("%s: expected an error fragment, got %s", target, body)
		}
		if strings.Contains(body, "forecastData") {
			t.Errorf("%s: should not patch forecast signals", target)
		}
	}
}

func TestSSEHandlers_RefreshAllRegenerates(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewSSEHandlers(analytics, 12, quietLogger())

	before, _ := analytics.Report(t.Context())

	w := httptest.NewRecorder()
	handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all?horizon=6", nil))

	after, _ := analytics.Report(t.Context())
	if before.RunID == after.RunID {
		t.Error("refresh-all should produce a new run")
	}
	if got := strings.Count(w.Body.String(), "(F)</td>"); got != 6 {
		t.Errorf("expected 6 forecast rows, got %d", got)
	}
}

func TestSSEHandlers_ForecastMatchesRun(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewSSEHandlers(analytics, 12, quietLogger())

	w := httptest.NewRecorder()
	handlers.HandleForecast(w, httptest.NewRequest(http.MethodGet, "/sse/forecast?horizon=6", nil))

	report, err := analytics.Report(t.Context())
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	body := w.Body.String()
	for _, want := range []string{money(report.Forecast[0].ProjectedRevenue), money(report.Scenarios.Bull)} {
		if !strings.Contains(body, want) {
			t.Errorf("forecast view should come from the current run, missing %q", want)
		}
	}
}

func TestSSEHandlers_RefreshAllFallsBackToDefaultHorizon(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(), 12, quietLogger())

	w := httptest.NewRecorder()
	handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all?horizon=7", nil))

	body := w.Body.String()
	if got := strings.Count(body, "(F)</td>"); got != 12 {
		t.Errorf("expected 12 forecast rows, got %d", got)
	}
	if strings.Contains(body, `class="error"`) {
		t.Error("an unsupported horizon should fall back rather than fail")
	}
}

func TestFivePRows(t *testing.T) {
	report := &models.Report{
		Historical: []models.MonthlyRecord{{Units: 100}, {Units: 250}},
		KPIs:       models.KPISummary{AvgOrderValue: 300, AvgGrossMargin: 0.65, AvgConversionRate: 0.035},
		ChannelMix: []models.ChannelShare{
			{Channel: models.ChannelOrganic, Visits: 400, Share: 0.4},
			{Channel: models.ChannelPaid, Visits: 300, Share: 0.3},
			{Channel: models.ChannelSocial, Visits: 150, Share: 0.15},
			{Channel: models.ChannelEmail, Visits: 100, Share: 0.1},
			{Channel: models.ChannelDirect, Visits: 50, Share: 0.05},
		},
	}

	rows := fivePRows(report)
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Metric] = row.Value
	}

	expected := map[string]string{
		"Units sold":                           "350",
		"Avg order value":                      "$300",
		"Avg gross margin":                     "65.0%",
		"Paid, social and email traffic share": "55.0%",
		"Organic and direct traffic share":     "45.0%",
		"Avg conversion rate":                  "3.5%",
		"Top channel":                          models.ChannelOrganic,
	}
	for metric, want := range expected {
		if values[metric] != want {
			t.Errorf("%s = %q, want %q", metric, values[metric], want)
		}
	}
}

func TestTopChannel(t *testing.T) {
	if got := topChannel(nil); got != "n/a" {
		t.Errorf("topChannel(nil) = %q, want n/a", got)
	}
	if got := topChannel([]models.ChannelShare{{Channel: models.ChannelPaid}}); got != "n/a" {
		t.Errorf("topChannel with no visits = %q, want n/a", got)
	}
}
