// Package dataset reads the labeled phone table used for training.
//
// The file is a CSV with a header row naming the 20 feature columns and the
// price_range label in any order. Columns are projected into canonical
// feature order by name.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/schema"
)

// Table is a parsed dataset: X is n×20 in canonical feature order and Y
// holds the price-range label of every row.
type Table struct {
	X *mat.Dense
	Y []int
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Y) }

// ReadCSV opens and parses path.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer func() { _ = f.Close() }()
	return ParseCSV(bufio.NewReader(f))
}

// ParseCSV parses a dataset from r. Row numbers in errors are 1-based data
// rows, not counting the header.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewDataError(errors.ErrEmptyDataset, 0, "", "no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	proj, labelCol, err := project(header)
	if err != nil {
		return nil, err
	}

	var (
		names  = schema.FeatureOrder()
		data   []float64
		labels []int
		row    int
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, errors.NewDataError(errors.ErrBadFeatureValue, row, "", err.Error())
		}

		values := make([]float64, schema.NumFeatures)
		for col, idx := range proj {
			if idx < 0 {
				continue
			}
			name := names[idx]
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewDataError(errors.ErrBadFeatureValue, row, name,
					fmt.Sprintf("not a finite number: %q", rec[col]))
			}
			values[idx] = v
		}

		label, err := parseLabel(rec[labelCol])
		if err != nil {
			return nil, errors.NewDataError(errors.ErrBadLabel, row, schema.LabelColumn, err.Error())
		}

		data = append(data, values...)
		labels = append(labels, label)
	}

	if len(labels) == 0 {
		return nil, errors.NewDataError(errors.ErrEmptyDataset, 0, "", "no data rows")
	}
	return &Table{
		X: mat.NewDense(len(labels), schema.NumFeatures, data),
		Y: labels,
	}, nil
}

// project maps every header column to its canonical feature index, or -1 for
// the label column.
func project(header []string) ([]int, int, error) {
	proj := make([]int, len(header))
	seen := make([]bool, schema.NumFeatures)
	labelCol := -1

	for col, raw := range header {
		name := strings.TrimSpace(raw)
		if col == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == schema.LabelColumn {
			if labelCol >= 0 {
				return nil, 0, errors.NewSchemaError(name, math.NaN(), "duplicate column")
			}
			labelCol = col
			proj[col] = -1
			continue
		}
		idx, ok := schema.Index(name)
		if !ok {
			return nil, 0, errors.NewSchemaError(name, math.NaN(), "unknown column")
		}
		if seen[idx] {
			return nil, 0, errors.NewSchemaError(name, math.NaN(), "duplicate column")
		}
		seen[idx] = true
		proj[col] = idx
	}

	if labelCol < 0 {
		return nil, 0, errors.NewDataError(errors.ErrMissingLabel, 0, schema.LabelColumn, "label column not found")
	}
	for idx, ok := range seen {
		if !ok {
			return nil, 0, errors.NewSchemaError(schema.FeatureOrder()[idx], math.NaN(), "missing column")
		}
	}
	return proj, labelCol, nil
}

// parseLabel accepts integer-valued numbers ("2" or "2.0") in 0..3.
func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, errors.Newf("label %q is not an integer", s)
	}
	k := int(v)
	if !schema.IsLabel(k) {
		return 0, errors.Newf("label %d is not a price range", k)
	}
	return k, nil
}

// WriteCSV writes t with a canonical header followed by price_range.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append(schema.FeatureOrder(), schema.LabelColumn)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	rec := make([]string, len(header))
	for i, label := range t.Y {
		for j := 0; j < schema.NumFeatures; j++ {
			rec[j] = strconv.FormatFloat(t.X.At(i, j), 'g', -1, 64)
		}
		rec[schema.NumFeatures] = strconv.Itoa(label)
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i+1)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}

// WriteCSVFile writes t to path.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
