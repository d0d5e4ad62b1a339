// Package preprocessing provides the feature standardizer used in front of
// the price-range classifier.
//
// StandardScaler follows the Fit / Transform / FitTransform pattern. It is
// fitted once by the training pipeline, persisted as an artifact, and then
// reused verbatim at inference:
//
//	scaler := preprocessing.NewStandardScaler()
//	Z, err := scaler.FitTransform(X)
//	if err != nil {
//		log.Fatal(err)
//	}
//	zRow, err := scaler.Transform(row)
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/pkg/errors"
)

// zeroScaleTol is the standard deviation below which a column is treated as
// constant and its scale replaced by 1.
const zeroScaleTol = 1e-8

// StandardScaler standardizes features to zero mean and unit variance
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差 (population, ddof=0). Never zero.
	Scale []float64

	// NFeatures は特徴量の数
	NFeatures int

	// NSamplesSeen is the number of rows Fit was called with.
	NSamplesSeen int
}

// NewStandardScaler creates an unfitted StandardScaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes the per-column mean and population standard deviation of X.
//
// A column whose standard deviation is zero (constant column) gets a scale of
// 1 so that Transform never divides by zero.
//
// Errors:
//   - ErrEmptyDataset: if X has no rows or no columns
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewDataError(errors.ErrEmptyDataset, 0, "", "StandardScaler.Fit: empty data")
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, sd := stat.PopMeanStdDev(col, nil)
		mean[j] = m
		// 標準偏差が0に近い場合は1に設定（ゼロ除算を避ける）
		if math.Abs(sd) < zeroScaleTol || math.IsNaN(sd) {
			sd = 1.0
		}
		scale[j] = sd
	}

	s.Mean = mean
	s.Scale = scale
	s.NFeatures = c
	s.NSamplesSeen = r
	s.SetFitted()
	return nil
}

// Transform returns (X - mean) / scale elementwise, preserving row and
// column order. It depends only on the fitted statistics.
//
// Errors:
//   - ErrNotFitted: if the scaler hasn't been fitted yet
//   - ErrShape: if X doesn't have the number of columns seen by Fit
func (s *StandardScaler) Transform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer errors.Recover(&err, "StandardScaler.Transform")
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// TransformRow standardizes a single sample.
func (s *StandardScaler) TransformRow(x []float64) ([]float64, error) {
	z, err := s.Transform(mat.NewDense(1, len(x), append([]float64(nil), x...)))
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, z), nil
}

// FitTransform fits the scaler on X and returns the standardized X.
// Equivalent to calling Fit(X) followed by Transform(X).
func (s *StandardScaler) FitTransform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer errors.Recover(&err, "StandardScaler.FitTransform")
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized data back: X = Z * scale + mean.
func (s *StandardScaler) InverseTransform(Z mat.Matrix) (_ mat.Matrix, err error) {
	defer errors.Recover(&err, "StandardScaler.InverseTransform")
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	r, c := Z.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, Z.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return result, nil
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return "StandardScaler()"
	}
	return fmt.Sprintf("StandardScaler(n_features=%d)", s.NFeatures)
}
