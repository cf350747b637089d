// Package templates renders the dashboard shell. The views are filled in by
// the SSE endpoints after the page loads.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const (
	Title    = "Retail Pulse"
	Subtitle = "Sales performance, forecast and 5P marketing breakdown"

	datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"
)

// View identifies one of the dashboard tabs.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewForecast  View = "forecast"
	ViewFivePs    View = "five-ps"
)

var views = []struct {
	id    View
	label string
	route string
}{
	{ViewDashboard, "Dashboard", "/sse/dashboard"},
	{ViewForecast, "Forecast", "/sse/forecast"},
	{ViewFivePs, "5P Analysis", "/sse/five-ps"},
}

// Dashboard renders the page shell with the dashboard view active and the
// given forecast horizon preselected.
func Dashboard(horizon int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, head()); err != nil {
			return err
		}

		signals := fmt.Sprintf(`{view: '%s', horizon: %d}`, ViewDashboard, horizon)
		if _, err := fmt.Fprintf(w, `<body data-signals="%s" data-init="@get('/sse/dashboard')">`, templ.EscapeString(signals)); err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, `<header><h1>%s</h1><p>%s</p></header>`,
			templ.EscapeString(Title), templ.EscapeString(Subtitle)); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<nav class="tabs">`); err != nil {
			return err
		}
		for _, v := range views {
			if _, err := fmt.Fprintf(w,
				`<button data-class-active="$view == '%s'" data-on-click="$view = '%s'; @get('%s')">%s</button>`,
				v.id, v.id, v.route, templ.EscapeString(v.label)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</nav>`); err != nil {
			return err
		}

		_, err := io.WriteString(w, body())
		return err
	})
}

func head() string {
	return `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
		`<meta name="viewport" content="width=device-width, initial-scale=1">` +
		`<title>` + templ.EscapeString(Title) + `</title>` +
		`<script type="module" src="` + datastarScript + `"></script></head>`
}

func body() string {
	return `<main>` +
		`<section data-show="$view == 'dashboard'">` +
		`<h2>Key Performance Indicators</h2><div id="kpi-cards">Loading KPIs...</div>` +
		`<h2>Monthly Revenue Trend</h2><div id="historical-content">Loading history...</div>` +
		`</section>` +
		`<section data-show="$view == 'forecast'">` +
		`<h2>Revenue Forecast</h2>` +
		`<label>Horizon <select data-bind-horizon data-on-change="@get('/sse/forecast')">` +
		`<option value="6">6 months</option><option value="12">12 months</option></select></label>` +
		`<div id="forecast-content">Select the forecast tab to load projections.</div>` +
		`<h2>Scenario Analysis</h2><div id="scenario-content"></div>` +
		`</section>` +
		`<section data-show="$view == 'five-ps'">` +
		`<h2>5P Marketing Breakdown</h2><div id="five-ps-content">Select the 5P tab to load the breakdown.</div>` +
		`</section>` +
		`<footer><button data-on-click="@get('/sse/refresh-all')">Regenerate data</button></footer>` +
		`</main></body></html>`
}
