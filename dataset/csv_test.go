package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/schema"
)

const header = "battery_power,blue,clock_speed,dual_sim,fc,four_g,int_memory,m_deep,mobile_wt,n_cores,pc,px_height,px_width,ram,sc_h,sc_w,talk_time,three_g,touch_screen,wifi,price_range"

func TestParseCSV(t *testing.T) {
	in := header + "\n" +
		"842,0,2.2,0,1,0,7,0.6,188,2,2,20,756,2549,9,7,19,0,0,1,1\n" +
		"1021,1,0.5,1,0,1,53,0.7,136,3,6,905,1988,2631,17,3,7,1,1,0,2\n"

	tbl, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []int{1, 2}, tbl.Y)

	r, c := tbl.X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, schema.NumFeatures, c)
	assert.Equal(t, 2549.0, tbl.X.At(0, 13))
	assert.Equal(t, 0.5, tbl.X.At(1, 2))
}

func TestParseCSVProjectsColumnsByName(t *testing.T) {
	// price_range first and ram/battery_power swapped
	names := schema.FeatureOrder()
	names[0], names[13] = names[13], names[0]
	hdr := "price_range," + strings.Join(names, ",")

	row := []string{"3"}
	for i := range names {
		row = append(row, []string{"4000", "1", "2", "0", "5", "1", "32", "0.5", "150", "4", "8", "800", "1200", "1500", "12", "6", "10", "1", "1", "1"}[i])
	}
	tbl, err := ParseCSV(strings.NewReader(hdr + "\n" + strings.Join(row, ",") + "\n"))
	require.NoError(t, err)

	ram, _ := schema.Index("ram")
	assert.Equal(t, 4000.0, tbl.X.At(0, ram))
	assert.Equal(t, 1500.0, tbl.X.At(0, 0))
	assert.Equal(t, []int{3}, tbl.Y)
}

func TestParseCSVErrors(t *testing.T) {
	good := "842,0,2.2,0,1,0,7,0.6,188,2,2,20,756,2549,9,7,19,0,0,1"

	tests := []struct {
		name   string
		input  string
		kind   error
		row    int
		column string
	}{
		{"empty file", "", errors.ErrEmptyDataset, 0, ""},
		{"header only", header + "\n", errors.ErrEmptyDataset, 0, ""},
		{"missing label column", strings.TrimSuffix(header, ",price_range") + "\n" + good + "\n", errors.ErrMissingLabel, 0, ""},
		{"unknown column", header + ",price\n" + good + ",1,5\n", errors.ErrSchema, 0, ""},
		{"missing feature column", strings.Replace(header, "wifi,", "", 1) + "\n" + strings.TrimSuffix(good, ",1") + ",1\n", errors.ErrSchema, 0, ""},
		{"non-numeric feature", header + "\n" + good + ",1\n" + strings.Replace(good, "2549", "lots", 1) + ",1\n", errors.ErrBadFeatureValue, 2, "ram"},
		{"NaN feature", header + "\n" + strings.Replace(good, "842", "NaN", 1) + ",1\n", errors.ErrBadFeatureValue, 1, "battery_power"},
		{"label out of range", header + "\n" + good + ",5\n", errors.ErrBadLabel, 1, "price_range"},
		{"fractional label", header + "\n" + good + ",1.5\n", errors.ErrBadLabel, 1, "price_range"},
		{"text label", header + "\n" + good + ",high\n", errors.ErrBadLabel, 1, "price_range"},
		{"short row", header + "\n" + good + "\n", errors.ErrBadFeatureValue, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var de *errors.DataError
			if tt.row > 0 && errors.As(err, &de) {
				assert.Equal(t, tt.row, de.Row)
				if tt.column != "" {
					assert.Equal(t, tt.column, de.Column)
				}
			}
		})
	}
}

func TestParseCSVAcceptsIntegralFloatLabel(t *testing.T) {
	good := "842,0,2.2,0,1,0,7,0.6,188,2,2,20,756,2549,9,7,19,0,0,1"
	tbl, err := ParseCSV(strings.NewReader(header + "\n" + good + ",2.0\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, tbl.Y)
}

func TestWriteReadRoundTrip(t *testing.T) {
	want := Synthetic(50, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, want))
	got, err := ParseCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, want.Y, got.Y)
	assert.True(t, mat.Equal(want.X, got.X))

	path := filepath.Join(t.TempDir(), "phones.csv")
	require.NoError(t, WriteCSVFile(path, want))
	fromFile, err := ReadCSV(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want.X, fromFile.X))

	_, err = ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSynthetic(t *testing.T) {
	a := Synthetic(400, 42)
	b := Synthetic(400, 42)
	assert.True(t, mat.Equal(a.X, b.X))
	assert.Equal(t, a.Y, b.Y)

	counts := make([]int, schema.NumClasses)
	for i, k := range a.Y {
		require.True(t, schema.IsLabel(k))
		counts[k]++
		require.NoError(t, schema.Validate(a.X.RawRowView(i)))
	}
	for k, c := range counts {
		assert.Greater(t, c, 50, "class %d is represented", k)
	}
}

func TestSyntheticEmpty(t *testing.T) {
	for _, n := range []int{0, -3} {
		tbl := Synthetic(n, 1)
		assert.Equal(t, 0, tbl.Len())
		assert.True(t, tbl.X.IsEmpty())
	}
}
