package report

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"trafficsentinel/internal/models"
)

const (
	densityColor = "#e74c3c"
	countColor   = "#3498db"
)

// ChartOptions controls where the HTML chart loads its scripts from.
type ChartOptions struct {
	// AssetsHost overrides the go-echarts CDN, e.g. for offline installs.
	AssetsHost string
}

// WriteChartHTML renders an interactive density and vehicle count chart of
// the analysis timeline.
func WriteChartHTML(w io.Writer, a *models.Analysis, o ChartOptions) error {
	x := make([]string, 0, len(a.Timeline))
	density := make([]opts.LineData, 0, len(a.Timeline))
	count := make([]opts.LineData, 0, len(a.Timeline))
	for _, s := range a.Timeline {
		x = append(x, fmt.Sprintf("%.1f", s.Time))
		density = append(density, opts.LineData{Value: s.Density})
		count = append(count, opts.LineData{Value: s.Count})
	}

	initOpts := opts.Initialization{
		PageTitle: fmt.Sprintf("Analysis %d - density", a.ID),
		Width:     "100%",
		Height:    "420px",
	}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{
			Title:    "Traffic density over time",
			Subtitle: fmt.Sprintf("%s - peak %d vehicles, mean density %.2f%%", a.Filename, a.PeakCount, a.MeanDensity),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Density %", Min: 0, Max: 100}),
	)
	line.SetXAxis(x).
		AddSeries("Density %", density,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: densityColor}),
		).
		AddSeries("Vehicles", count,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: countColor}),
		)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(line)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WriteChartPNG draws the density timeline as a PNG image.
func WriteChartPNG(w io.Writer, a *models.Analysis) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Analysis %d - %s", a.ID, a.Filename)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Density %"
	p.Y.Min = 0
	p.Y.Max = 100
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(a.Timeline))
	for _, s := range a.Timeline {
		pts = append(pts, plotter.XY{X: s.Time, Y: s.Density})
	}

	if len(pts) > 0 {
		densityLine, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build density line: %w", err)
		}
		densityLine.Color = color.RGBA{R: 231, G: 76, B: 60, A: 255}
		densityLine.Width = vg.Points(1.5)
		p.Add(densityLine)
		p.Legend.Add("Density %", densityLine)

		if a.MeanDensity > 0 {
			mean := plotter.NewFunction(func(float64) float64 { return a.MeanDensity })
			mean.Color = color.RGBA{R: 52, G: 152, B: 219, A: 255}
			mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(mean)
			p.Legend.Add(fmt.Sprintf("Mean %.1f%%", a.MeanDensity), mean)
		}
	}
	if len(pts) < 2 {
		// Zdjęcie albo pusty film - pojedynczy punkt, oś X od zera
		p.X.Min = 0
		p.X.Max = 1
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render png chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png chart: %w", err)
	}
	return nil
}
