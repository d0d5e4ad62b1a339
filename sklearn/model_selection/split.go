// Package model_selection splits datasets for held-out evaluation.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/pkg/errors"
)

// SplitIndices draws a seeded permutation of 0..n-1 and returns its first
// ceil(testSize*n) entries as the test indices and the rest as the train
// indices.
func SplitIndices(n int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("n_samples=%d with test_size=%g leaves an empty train or test set", n, testSize))
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// TrainTestSplit partitions the rows of X and the labels y into disjoint
// train and test sets. The same seed always yields the same partition.
func TrainTestSplit(X mat.Matrix, y []int, testSize float64, seed uint64) (XTrain, XTest *mat.Dense, yTrain, yTest []int, err error) {
	n, _ := X.Dims()
	if n != len(y) {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", n, len(y), 0)
	}
	train, test, err := SplitIndices(n, testSize, seed)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	XTrain, yTrain = take(X, y, train)
	XTest, yTest = take(X, y, test)
	return XTrain, XTest, yTrain, yTest, nil
}

func take(X mat.Matrix, y []int, rows []int) (*mat.Dense, []int) {
	_, f := X.Dims()
	out := mat.NewDense(len(rows), f, nil)
	labels := make([]int, len(rows))
	for i, r := range rows {
		for j := 0; j < f; j++ {
			out.Set(i, j, X.At(r, j))
		}
		labels[i] = y[r]
	}
	return out, labels
}
