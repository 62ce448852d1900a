package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"tvwebhook/internal/storage"
)

const defaultExportPoints = 1000

var exportPriceFields = []string{"open", "high", "low", "close", "volume", "buy", "sell", "kernel_regression_estimate"}

// Export renders stored records as CSV and/or a PNG price chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = defaultExportPoints
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	records, err := storage.ReadRecords(a.Config.Storage.Dir)
	if err != nil {
		return err
	}
	records = filterRecords(records, opts)
	if len(records) == 0 {
		a.Logger.Info().Str("dir", a.Config.Storage.Dir).Msg("no records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting records")

	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterRecords(records []storage.LoadedRecord, opts ExportOptions) []storage.LoadedRecord {
	out := records[:0:0]
	for _, rec := range records {
		at := rec.Key.At
		if opts.From != nil && at.Before(opts.From.UTC()) {
			continue
		}
		if opts.To != nil && !at.Before(opts.To.UTC()) {
			continue
		}
		if opts.Ticker != "" && rec.Record.Raw.Payload().Get("ticker").Text() != opts.Ticker {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func downsampleRecords(records []storage.LoadedRecord, max int) []storage.LoadedRecord {
	if max <= 1 || len(records) <= max {
		return records
	}

	result := make([]storage.LoadedRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.LoadedRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := append([]string{"key", "received_at", "source", "ticker", "exchange", "interval"}, exportPriceFields...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		raw := rec.Record.Raw
		p := raw.Payload()
		row := []string{
			rec.Key.Name,
			rec.Key.At.Format(time.RFC3339Nano),
			raw.Source(),
			p.Get("ticker").Text(),
			p.Get("exchange").Text(),
			p.Get("interval").Text(),
		}
		for _, field := range exportPriceFields {
			row = append(row, formatPrice(rec.Record.Parsed.Get(field).Float()))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path string, records []storage.LoadedRecord) error {
	x := make([]time.Time, 0, len(records))
	closes := make([]float64, 0, len(records))
	var kreX []time.Time
	var kre []float64

	for _, rec := range records {
		parsed := rec.Record.Parsed
		if c, ok := parsed.Get("close").Float(); ok {
			x = append(x, rec.Key.At)
			closes = append(closes, c)
		}
		if k, ok := parsed.Get("kernel_regression_estimate").Float(); ok {
			kreX = append(kreX, rec.Key.At)
			kre = append(kre, k)
		}
	}
	if len(x) < 2 {
		return fmt.Errorf("need at least 2 records with a close price to chart, got %d", len(x))
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Close",
			XValues: x,
			YValues: closes,
		},
	}
	if len(kre) >= 2 {
		series = append(series, chart.TimeSeries{
			Name:    "Kernel Regression Estimate",
			XValues: kreX,
			YValues: kre,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatPrice(f float64, ok bool) string {
	if !ok {
		return ""
	}
	return decimal.NewFromFloat(f).String()
}
