package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"retail-pulse/internal/errors"
	"retail-pulse/internal/models"
	"retail-pulse/internal/services"
)

var printer = message.NewPrinter(language.English)

var funcs = template.FuncMap{
	"money":  money,
	"pct":    pct,
	"signed": func(v float64) string { return printer.Sprintf("%+.1f%%", v) },
	"int":    func(v int) string { return printer.Sprintf("%d", v) },
}

func money(v float64) string {
	return printer.Sprintf("$%.0f", v)
}

// pct formats a fraction as a percentage.
func pct(v float64) string {
	return printer.Sprintf("%.1f%%", v*100)
}

var fragments = template.Must(template.New("fragments").Funcs(funcs).Parse(`
{{define "kpis"}}<div id="kpi-cards" class="cards">
<div class="card"><span>Total Revenue</span><strong>{{money .TotalRevenue}}</strong></div>
<div class="card"><span>Avg Gross Margin</span><strong>{{pct .AvgGrossMargin}}</strong></div>
<div class="card"><span>Avg Conversion Rate</span><strong>{{pct .AvgConversionRate}}</strong></div>
<div class="card"><span>Avg Order Value</span><strong>{{money .AvgOrderValue}}</strong></div>
<div class="card"><span>Monthly Growth</span><strong>{{signed .MonthlyGrowthPercent}}</strong></div>
</div>{{end}}
{{define "historical"}}<div id="historical-content">
<table class="modern-table">
<thead><tr><th>Month</th><th>Revenue</th><th>Units</th><th>Margin</th><th>Conversion</th><th>AOV</th></tr></thead>
<tbody>
{{range .}}<tr>
<td>{{.Period}}</td>
<td><strong>{{money .Revenue}}</strong></td>
<td>{{int .Units}}</td>
<td>{{pct .GrossMargin}}</td>
<td>{{pct .ConversionRate}}</td>
<td>{{money .AvgOrderValue}}</td>
</tr>{{end}}
</tbody>
</table>
</div>{{end}}
{{define "forecast"}}<div id="forecast-content">
<table class="modern-table">
<thead><tr><th>Period</th><th>Projected</th><th>Lower</th><th>Upper</th><th>Confidence</th></tr></thead>
<tbody>
{{range .}}<tr>
<td>{{.Period}}</td>
<td><strong>{{money .ProjectedRevenue}}</strong></td>
<td>{{money .LowerBound}}</td>
<td>{{money .UpperBound}}</td>
<td>{{pct .Confidence}}</td>
</tr>{{end}}
</tbody>
</table>
</div>{{end}}
{{define "scenarios"}}<div id="scenario-content" class="cards">
<div class="card bear"><span>Bear</span><strong>{{money .Bear}}</strong></div>
<div class="card base"><span>Base</span><strong>{{money .Base}}</strong></div>
<div class="card bull"><span>Bull</span><strong>{{money .Bull}}</strong></div>
</div>{{end}}
{{define "fiveps"}}<div id="five-ps-content">
<table class="modern-table">
<thead><tr><th>P</th><th>Metric</th><th>Value</th></tr></thead>
<tbody>
{{range .}}<tr><td>{{.Name}}</td><td>{{.Metric}}</td><td>{{.Value}}</td></tr>{{end}}
</tbody>
</table>
</div>{{end}}
`))

// fivePRow is one line of the 5P breakdown table.
type fivePRow struct {
	Name   string
	Metric string
	Value  string
}

type SSEHandlers struct {
	analytics      *services.Analytics
	defaultHorizon int
	logger         *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, defaultHorizon int, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics:      analytics,
		defaultHorizon: defaultHorizon,
		logger:         logger,
	}
}

// viewSignals is the subset of client signals the handlers read. Bound
// inputs may send the horizon as a string.
type viewSignals struct {
	Horizon any `json:"horizon"`
}

func render(name string, data any) (string, error) {
	var buf strings.Builder
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// horizon resolves the requested horizon from the query string, then the
// Datastar signals, then the configured default.
func (h *SSEHandlers) horizon(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		return parseHorizon(raw, h.defaultHorizon)
	}

	var signals viewSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.logger.Debug("read signals", "error", err)
		return h.defaultHorizon, nil
	}

	switch v := signals.Horizon.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.BadRequestWrap(fmt.Errorf("horizon %v is not a whole number", v), "horizon must be an integer")
		}
		return int(v), nil
	case string:
		return parseHorizon(v, h.defaultHorizon)
	default:
		return h.defaultHorizon, nil
	}
}

func (h *SSEHandlers) patchError(sse *datastar.ServerSentEventGenerator, target string, err error) {
	msg := "Unable to load data"
	if appErr, ok := errors.As(err); ok {
		msg = appErr.Message
		if appErr.Details != "" {
			msg += ": " + appErr.Details
		}
	}
	h.logger.Warn("sse request failed", "target", target, "error", err)

	html := fmt.Sprintf(`<div id="%s" class="error">%s</div>`, target, template.HTMLEscapeString(msg))
	if perr := sse.PatchElements(html); perr != nil {
		h.logger.Error("patch error element", "error", perr)
	}
}

func (h *SSEHandlers) patch(sse *datastar.ServerSentEventGenerator, name string, data any) error {
	html, err := render(name, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return sse.PatchElements(html)
}

func (h *SSEHandlers) patchSignals(sse *datastar.ServerSentEventGenerator, signals map[string]any) error {
	jsonData, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	return sse.PatchSignals(jsonData)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) sendDashboard(sse *datastar.ServerSentEventGenerator, report *models.Report) error {
	if err := h.patch(sse, "kpis", report.KPIs); err != nil {
		return err
	}
	if err := h.patch(sse, "historical", report.Historical); err != nil {
		return err
	}
	return h.patchSignals(sse, map[string]any{
		"historicalData": report.Historical,
		"kpiData":        report.KPIs,
	})
}

func (h *SSEHandlers) sendForecast(sse *datastar.ServerSentEventGenerator, report *models.Report, points []models.ForecastPoint, horizon int) error {
	if err := h.patch(sse, "forecast", points); err != nil {
		return err
	}
	if err := h.patch(sse, "scenarios", report.Scenarios); err != nil {
		return err
	}
	return h.patchSignals(sse, map[string]any{
		"forecastData": points,
		"scenarioData": report.Scenarios,
		"horizon":      horizon,
	})
}

func (h *SSEHandlers) sendFivePs(sse *datastar.ServerSentEventGenerator, report *models.Report) error {
	if err := h.patch(sse, "fiveps", fivePRows(report)); err != nil {
		return err
	}
	return h.patchSignals(sse, map[string]any{
		"channelData": report.ChannelMix,
	})
}

func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	report, err := h.analytics.Report(r.Context())
	if err != nil {
		h.patchError(sse, "kpi-cards", err)
		return
	}
	if err := h.sendDashboard(sse, report); err != nil {
		h.logger.Error("send dashboard view", "error", err)
		return
	}

	flush(w)
}

func (h *SSEHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, herr := h.horizon(r)
	sse := datastar.NewSSE(w, r)
	if herr != nil {
		h.patchError(sse, "forecast-content", herr)
		return
	}

	report, err := h.analytics.Report(r.Context())
	if err != nil {
		h.patchError(sse, "forecast-content", err)
		return
	}
	points, err := services.ForecastOf(report, horizon)
	if err != nil {
		h.patchError(sse, "forecast-content", err)
		return
	}
	if err := h.sendForecast(sse, report, points, horizon); err != nil {
		h.logger.Error("send forecast view", "error", err)
		return
	}

	flush(w)
}

func (h *SSEHandlers) HandleFivePs(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	report, err := h.analytics.Report(r.Context())
	if err != nil {
		h.patchError(sse, "five-ps-content", err)
		return
	}
	if err := h.sendFivePs(sse, report); err != nil {
		h.logger.Error("send five-ps view", "error", err)
		return
	}

	flush(w)
}

// HandleRefreshAll regenerates the series and patches every view.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	horizon, herr := h.horizon(r)
	if herr != nil {
		horizon = h.defaultHorizon
	}
	sse := datastar.NewSSE(w, r)

	report, err := h.analytics.Refresh(r.Context())
	if err != nil {
		h.patchError(sse, "kpi-cards", err)
		return
	}
	points, err := services.ForecastOf(report, horizon)
	if err != nil {
		h.logger.WarnContext(r.Context(), "unsupported horizon, using default",
			"horizon", horizon, "default", h.defaultHorizon, "error", err)
		horizon = h.defaultHorizon
		if points, err = services.ForecastOf(report, horizon); err != nil {
			h.patchError(sse, "forecast-content", err)
			return
		}
	}

	if err := h.sendDashboard(sse, report); err != nil {
		h.logger.Error("send dashboard view", "error", err)
		return
	}
	if err := h.sendForecast(sse, report, points, horizon); err != nil {
		h.logger.Error("send forecast view", "error", err)
		return
	}
	if err := h.sendFivePs(sse, report); err != nil {
		h.logger.Error("send five-ps view", "error", err)
		return
	}

	flush(w)
}

// fivePRows maps the run onto the product, price, promotion, place and
// people headings. Promotion covers paid, social and email traffic; place
// covers organic and direct.
func fivePRows(report *models.Report) []fivePRow {
	var units int
	for _, rec := range report.Historical {
		units += rec.Units
	}

	shares := make(map[string]float64, len(report.ChannelMix))
	for _, s := range report.ChannelMix {
		shares[s.Channel] = s.Share
	}
	promotion := shares[models.ChannelPaid] + shares[models.ChannelSocial] + shares[models.ChannelEmail]
	place := shares[models.ChannelOrganic] + shares[models.ChannelDirect]

	return []fivePRow{
		{"Product", "Units sold", printer.Sprintf("%d", units)},
		{"Price", "Avg order value", money(report.KPIs.AvgOrderValue)},
		{"Price", "Avg gross margin", pct(report.KPIs.AvgGrossMargin)},
		{"Promotion", "Paid, social and email traffic share", pct(promotion)},
		{"Place", "Organic and direct traffic share", pct(place)},
		{"People", "Avg conversion rate", pct(report.KPIs.AvgConversionRate)},
		{"People", "Top channel", topChannel(report.ChannelMix)},
	}
}

func topChannel(mix []models.ChannelShare) string {
	if len(mix) == 0 || mix[0].Visits == 0 {
		return "n/a"
	}
	return mix[0].Channel
}
