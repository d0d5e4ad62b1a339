package inspection

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ezoic/pricerange/pkg/errors"
)

// PlotImportances renders the mean importances as a horizontal bar chart,
// most important feature on top. The image format follows the extension of
// path (png, svg, pdf, ...).
func PlotImportances(r *Result, names []string, path string) error {
	if r == nil || len(r.ImportancesMean) == 0 {
		return errors.NewValueError("PlotImportances", "result has no importances")
	}
	if len(names) != len(r.ImportancesMean) {
		return errors.NewDimensionError("PlotImportances", len(r.ImportancesMean), len(names), 0)
	}

	rows := r.SortedAscending(names)
	values := make(plotter.Values, len(rows))
	labels := make([]string, len(rows))
	for i, fi := range rows {
		values[i] = fi.Mean
		labels[i] = fi.Name
	}

	p := plot.New()
	p.Title.Text = "Permutation feature importance"
	p.X.Label.Text = "Mean accuracy decrease"

	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return errors.Wrap(err, "failed to create bar chart")
	}
	bars.Horizontal = true
	bars.LineStyle.Width = 0
	bars.Color = plotter.DefaultLineStyle.Color
	p.Add(bars)
	p.NominalY(labels...)

	height := vg.Length(len(rows))*vg.Points(16) + 1.5*vg.Inch
	if err := p.Save(7*vg.Inch, height, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}
