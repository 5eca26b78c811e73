package report

import (
	"fmt"
	"io"
	"math"

	"github.com/carbocation/pfx"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/haswelllab/rnaseqmisc/diffexp"
	"github.com/haswelllab/rnaseqmisc/mds"
	"github.com/haswelllab/rnaseqmisc/scalefactor"
)

// LibrarySizeBars renders one bar per sample, scaled to millions of reads.
func LibrarySizeBars(w io.Writer, factors []scalefactor.Factor) error {
	if len(factors) == 0 {
		return fmt.Errorf("no scaling factors to plot")
	}

	bars := make([]chart.Value, 0, len(factors))
	for _, f := range factors {
		bars = append(bars, chart.Value{Label: f.Sample, Value: f.LibSize / 1e6})
	}

	graph := chart.BarChart{
		Title:    "Library size (millions)",
		Width:    80 * len(bars),
		Height:   512,
		BarWidth: 40,
		Bars:     bars,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// MAPlot renders average log abundance against log fold-change for every
// tested gene, highlighting the significant ones.
func MAPlot(w io.Writer, results []diffexp.Result) error {
	plain := scatterSeries("tested", chart.ColorAlternateGray)
	hits := scatterSeries("significant", drawing.ColorRed)

	for _, r := range results {
		if !r.LogCPM.Valid || !r.LogFC.Valid {
			continue
		}
		if r.Significant {
			hits.XValues = append(hits.XValues, r.LogCPM.Float64)
			hits.YValues = append(hits.YValues, r.LogFC.Float64)
			continue
		}
		plain.XValues = append(plain.XValues, r.LogCPM.Float64)
		plain.YValues = append(plain.YValues, r.LogFC.Float64)
	}

	if len(plain.XValues)+len(hits.XValues) == 0 {
		return fmt.Errorf("no tested genes to plot")
	}

	graph := chart.Chart{
		Width:  768,
		Height: 512,
		XAxis:  chart.XAxis{Name: "Average logCPM"},
		YAxis:  chart.YAxis{Name: "logFC"},
		Series: nonEmpty(plain, hits),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// VolcanoPlot renders log fold-change against -log10 p-value.
func VolcanoPlot(w io.Writer, results []diffexp.Result) error {
	plain := scatterSeries("tested", chart.ColorAlternateGray)
	hits := scatterSeries("significant", drawing.ColorRed)

	for _, r := range results {
		if !r.LogFC.Valid || !r.PValue.Valid {
			continue
		}

		p := r.PValue.Float64
		if p < 1e-300 {
			p = 1e-300
		}
		y := -math.Log10(p)

		if r.Significant {
			hits.XValues = append(hits.XValues, r.LogFC.Float64)
			hits.YValues = append(hits.YValues, y)
			continue
		}
		plain.XValues = append(plain.XValues, r.LogFC.Float64)
		plain.YValues = append(plain.YValues, y)
	}

	if len(plain.XValues)+len(hits.XValues) == 0 {
		return fmt.Errorf("no tested genes to plot")
	}

	graph := chart.Chart{
		Width:  768,
		Height: 512,
		XAxis:  chart.XAxis{Name: "logFC"},
		YAxis:  chart.YAxis{Name: "-log10 p"},
		Series: nonEmpty(plain, hits),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// MDSPlot renders the first two ordination axes with each sample labeled.
// Condition may be nil; when present it only affects the label text.
func MDSPlot(w io.Writer, projection *mds.Projection, condition map[string]string) error {
	if projection == nil || len(projection.Points) == 0 {
		return fmt.Errorf("empty projection")
	}
	if len(projection.Points[0]) < 2 {
		return fmt.Errorf("projection has %d axes; need at least 2 to plot", len(projection.Points[0]))
	}

	points := scatterSeries("samples", drawing.ColorBlue)
	labels := chart.AnnotationSeries{}

	for j, s := range projection.Samples {
		x, y := projection.Points[j][0], projection.Points[j][1]
		points.XValues = append(points.XValues, x)
		points.YValues = append(points.YValues, y)

		label := s
		if level, exists := condition[s]; exists {
			label = fmt.Sprintf("%s (%s)", s, level)
		}
		labels.Annotations = append(labels.Annotations, chart.Value2{XValue: x, YValue: y, Label: label})
	}

	graph := chart.Chart{
		Width:  768,
		Height: 512,
		XAxis:  chart.XAxis{Name: fmt.Sprintf("Dim 1 (%.0f%%)", 100*projection.Explained[0])},
		YAxis:  chart.YAxis{Name: fmt.Sprintf("Dim 2 (%.0f%%)", 100*projection.Explained[1])},
		Series: []chart.Series{points, labels},
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// nonEmpty drops series without points; go-chart treats an empty series as a
// validation error rather than an empty layer.
func nonEmpty(series ...chart.ContinuousSeries) []chart.Series {
	out := make([]chart.Series, 0, len(series))
	for _, s := range series {
		if len(s.XValues) == 0 {
			continue
		}
		out = append(out, s)
	}

	return out
}

func scatterSeries(name string, c drawing.Color) chart.ContinuousSeries {
	return chart.ContinuousSeries{
		Name: name,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    3,
			DotColor:    c,
		},
	}
}
