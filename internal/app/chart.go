package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"power-price-alerts/internal/band"
	"power-price-alerts/internal/fetcher"
)

const (
	defaultChartWidth  = 1280
	defaultChartHeight = 720
)

// Chart renders the feed's current series with the effective min/max lines as PNG and/or CSV.
func (a *App) Chart(ctx context.Context, opts ChartOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	th, err := a.serviceDeps(kv, nil, nil).Thresholds.Load(ctx)
	if err != nil {
		return err
	}

	series, err := a.newFeed().FetchSeries(ctx)
	if err != nil {
		return err
	}

	samples := downsampleSamples(series, opts.MaxPoints)
	a.Logger.Info().Int("total", len(series)).Int("exported", len(samples)).Msg("rendering price series")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error { return writeSeriesCSV(w, samples, th) }); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(w io.Writer) error { return renderSeriesPNG(w, samples, th, opts) }); err != nil {
			return err
		}
	}
	return nil
}

func downsampleSamples(samples []fetcher.PriceSample, max int) []fetcher.PriceSample {
	if max <= 1 || len(samples) <= max {
		return samples
	}

	result := make([]fetcher.PriceSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSeriesCSV(w io.Writer, samples []fetcher.PriceSample, th band.Thresholds) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"at", "price_cents_per_kwh", "band"}); err != nil {
		return err
	}
	for _, sample := range samples {
		record := []string{
			sample.At.UTC().Format(time.RFC3339),
			sample.CentsPerKWh.String(),
			band.Classify(sample.CentsPerKWh, th).String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func renderSeriesPNG(w io.Writer, samples []fetcher.PriceSample, th band.Thresholds, opts ChartOptions) error {
	if len(samples) < 2 {
		return errors.New("need at least two samples to draw a chart")
	}

	x := make([]time.Time, len(samples))
	price := make([]float64, len(samples))
	minLine := make([]float64, len(samples))
	maxLine := make([]float64, len(samples))
	minCents, maxCents := th.Min.InexactFloat64(), th.Max.InexactFloat64()
	for i, sample := range samples {
		x[i] = sample.At
		price[i] = sample.CentsPerKWh.InexactFloat64()
		minLine[i] = minCents
		maxLine[i] = maxCents
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = defaultChartWidth
	}
	if height <= 0 {
		height = defaultChartHeight
	}

	centsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (ct/kWh)",
			ValueFormatter: centsFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Price", XValues: x, YValues: price},
			chart.TimeSeries{
				Name:    "Min",
				XValues: x,
				YValues: minLine,
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{
				Name:    "Max",
				XValues: x,
				YValues: maxLine,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{5, 5}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
