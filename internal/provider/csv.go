package provider

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"retail-pulse/internal/models"
)

const (
	maxWorkers   = 10
	cacheVersion = "v1"
)

var csvHeader = []string{
	"period", "revenue", "units", "gross_margin", "conversion_rate", "avg_order_value",
	models.ChannelOrganic, models.ChannelPaid, models.ChannelSocial, models.ChannelEmail, models.ChannelDirect,
}

// CSVProvider loads a historical series from a CSV file. Parsed series are
// cached as gob files in cacheDir and reused while the source file is unchanged.
type CSVProvider struct {
	path     string
	cacheDir string
	logger   *slog.Logger
}

type cachedSeries struct {
	Records  []models.MonthlyRecord
	LoadedAt time.Time
}

// NewCSVProvider returns a provider for path. An empty cacheDir disables caching.
func NewCSVProvider(path, cacheDir string, logger *slog.Logger) *CSVProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVProvider{path: path, cacheDir: cacheDir, logger: logger}
}

func (p *CSVProvider) Name() string {
	return "csv:" + p.path
}

func (p *CSVProvider) Historical(ctx context.Context) ([]models.MonthlyRecord, error) {
	if cached, err := p.loadFromCache(); err == nil {
		fileInfo, err := os.Stat(p.path)
		if err == nil && fileInfo.ModTime().Before(cached.LoadedAt) {
			p.logger.Debug("loaded series from cache", "path", p.path, "records", len(cached.Records))
			return cached.Records, nil
		}
	}

	start := time.Now()
	records, err := p.parseFile(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.saveToCache(records); err != nil {
		p.logger.Warn("failed to save cache", "error", err)
	}

	p.logger.Info("csv series loaded",
		"path", p.path,
		"records", len(records),
		"duration", time.Since(start),
	)
	return records, nil
}

func (p *CSVProvider) parseFile(ctx context.Context) ([]models.MonthlyRecord, error) {
	file, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, fmt.Errorf("empty file")
	}
	if err := checkHeader(scanner.Text()); err != nil {
		return nil, err
	}

	type numberedLine struct {
		number int
		text   string
	}
	var lines []numberedLine
	for lineNo := 2; scanner.Scan(); lineNo++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines = append(lines, numberedLine{number: lineNo, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNoRecords
	}

	records := make([]models.MonthlyRecord, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i, line := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := parseRecord(line.number, strings.Split(line.text, ","))
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

func checkHeader(line string) error {
	cols := strings.Split(line, ",")
	if len(cols) != len(csvHeader) {
		return &ValidationError{Line: 1, Field: "header", Value: line,
			Reason: fmt.Sprintf("expected %d columns, got %d", len(csvHeader), len(cols))}
	}
	for i, col := range cols {
		if !strings.EqualFold(strings.TrimSpace(col), csvHeader[i]) {
			return &ValidationError{Line: 1, Field: "header", Value: col,
				Reason: fmt.Sprintf("expected column %q", csvHeader[i])}
		}
	}
	return nil
}

func parseRecord(line int, fields []string) (models.MonthlyRecord, error) {
	if len(fields) != len(csvHeader) {
		return models.MonthlyRecord{}, &ValidationError{Line: line, Field: "row",
			Reason: fmt.Sprintf("expected %d columns, got %d", len(csvHeader), len(fields))}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	period, ok := canonicalPeriod(fields[0])
	if !ok {
		return models.MonthlyRecord{}, &ValidationError{Line: line, Field: "period", Value: fields[0], Reason: "unknown period label"}
	}

	revenue, err := parseAmount(line, "revenue", fields[1])
	if err != nil {
		return models.MonthlyRecord{}, err
	}
	units, err := parseCount(line, "units", fields[2])
	if err != nil {
		return models.MonthlyRecord{}, err
	}
	margin, err := parseFraction(line, "gross_margin", fields[3])
	if err != nil {
		return models.MonthlyRecord{}, err
	}
	conversion, err := parseFraction(line, "conversion_rate", fields[4])
	if err != nil {
		return models.MonthlyRecord{}, err
	}
	aov, err := parseAmount(line, "avg_order_value", fields[5])
	if err != nil {
		return models.MonthlyRecord{}, err
	}

	traffic := make(models.TrafficBreakdown, len(models.Channels))
	for i, ch := range models.Channels {
		visits, err := parseCount(line, ch, fields[6+i])
		if err != nil {
			return models.MonthlyRecord{}, err
		}
		traffic[ch] = visits
	}

	return models.MonthlyRecord{
		Period:           period,
		Revenue:          revenue,
		Units:            units,
		GrossMargin:      margin,
		ConversionRate:   conversion,
		AvgOrderValue:    aov,
		TrafficBreakdown: traffic,
	}, nil
}

func canonicalPeriod(s string) (string, bool) {
	for _, label := range models.PeriodLabels {
		if strings.EqualFold(s, label) {
			return label, true
		}
	}
	return "", false
}

// parseAmount parses a currency amount exactly before converting it.
func parseAmount(line int, field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "not a number"}
	}
	if d.IsNegative() {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "must not be negative"}
	}
	return d.InexactFloat64(), nil
}

func parseCount(line int, field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "not an integer"}
	}
	if n < 0 {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "must not be negative"}
	}
	return n, nil
}

func parseFraction(line int, field, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "not a number"}
	}
	if f < 0 || f > 1 {
		return 0, &ValidationError{Line: line, Field: field, Value: s, Reason: "must be in [0,1]"}
	}
	return f, nil
}

// Cache management
func (p *CSVProvider) cacheFilename() string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(p.path)
	return filepath.Join(p.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (p *CSVProvider) saveToCache(records []models.MonthlyRecord) error {
	if p.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(p.cacheFilename())
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(cachedSeries{Records: records, LoadedAt: time.Now()})
}

func (p *CSVProvider) loadFromCache() (*cachedSeries, error) {
	if p.cacheDir == "" {
		return nil, os.ErrNotExist
	}

	file, err := os.Open(p.cacheFilename())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data cachedSeries
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
