package bench

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/montanaflynn/stats"
)

// Summary describes a series of timings.
type Summary struct {
	Name   string
	Count  int
	Mean   time.Duration
	Median time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Summarize computes the statistics of a non-empty series.
func Summarize(name string, ds []time.Duration) (Summary, error) {
	values := make(stats.Float64Data, len(ds))
	for i, d := range ds {
		values[i] = float64(d)
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}
	median, _ := stats.Median(values)
	stddev, _ := stats.StandardDeviation(values)
	minimum, _ := stats.Min(values)
	maximum, _ := stats.Max(values)

	return Summary{
		Name:   name,
		Count:  len(ds),
		Mean:   time.Duration(mean),
		Median: time.Duration(median),
		StdDev: time.Duration(stddev),
		Min:    time.Duration(minimum),
		Max:    time.Duration(maximum),
	}, nil
}

func (s Summary) String() string {
	if s.Count == 1 {
		return fmt.Sprintf("%-8s %v", s.Name, s.Mean)
	}
	return fmt.Sprintf("%-8s mean=%v median=%v stddev=%v min=%v max=%v (n=%d)",
		s.Name, s.Mean, s.Median, s.StdDev, s.Min, s.Max, s.Count)
}

func toBarItems(ds []time.Duration) []opts.BarData {
	out := make([]opts.BarData, len(ds))
	for i, d := range ds {
		out[i] = opts.BarData{Value: float64(d.Microseconds()) / 1000}
	}
	return out
}

// WriteChart renders the per-run timings of r as an HTML bar chart.
func WriteChart(w io.Writer, r *RnResult) error {
	title := fmt.Sprintf("Rn chain t=%d n=%d chain size=%d", r.Threshold, r.N, r.ChainSize)
	subtitle := fmt.Sprintf("field=%s rotation=%s transport=%s, milliseconds", r.Field, r.Rotation, r.Transport)

	runs := make([]string, len(r.Runs))
	creates := make([]time.Duration, len(r.Runs))
	recovers := make([]time.Duration, len(r.Runs))
	alphas := make([]time.Duration, len(r.Runs))
	for i, run := range r.Runs {
		runs[i] = fmt.Sprintf("run %d", i+1)
		creates[i], recovers[i], alphas[i] = run.Create, run.Recover, run.Alpha
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(runs).
		AddSeries("create", toBarItems(creates)).
		AddSeries("recover", toBarItems(recovers)).
		AddSeries("alpha", toBarItems(alphas))

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WriteChartFile writes the chart of r to path. A failed close is reported,
// since the chart may be incomplete.
func WriteChartFile(path string, r *RnResult) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create chart file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("could not write chart file: %w", cerr))
		}
	}()
	return WriteChart(out, r)
}
