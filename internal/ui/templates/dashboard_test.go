package templates

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDashboard_Render(t *testing.T) {
	var b strings.Builder
	if err := Dashboard(6).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := b.String()

	expected := []string{
		"<!DOCTYPE html>",
		Title,
		Subtitle,
		"horizon: 6",
		"/sse/dashboard",
		"/sse/forecast",
		"/sse/five-ps",
		"/sse/refresh-all",
		`id="kpi-cards"`,
		`id="forecast-content"`,
		`id="scenario-content"`,
		`id="five-ps-content"`,
		"</html>",
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard should contain %q", want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errWrite
}

var errWrite = errors.New("write failed")

func TestDashboard_RenderError(t *testing.T) {
	if err := Dashboard(12).Render(context.Background(), failingWriter{}); !errors.Is(err, errWrite) {
		t.Errorf("Render() error = %v, want %v", err, errWrite)
	}
}
