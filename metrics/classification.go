// Package metrics provides the scores used to evaluate the price-range
// classifier on held-out data.
package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/pkg/errors"
)

// AccuracyScore calculates the classification accuracy.
//
// Accuracy is the fraction of predictions equal to the ground truth.
//
// Parameters:
//   - yTrue: Ground truth labels
//   - yPred: Predicted labels
//
// Returns:
//   - The accuracy (between 0 and 1)
//   - An error if inputs are invalid
//
// Example:
//
//	acc, err := AccuracyScore([]int{0, 1, 2, 3}, []int{0, 1, 1, 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Accuracy: %.2f\n", acc) // Output: Accuracy: 0.75
func AccuracyScore(yTrue, yPred []int) (float64, error) {
	if err := checkLabels("AccuracyScore", yTrue, yPred); err != nil {
		return 0, err
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// ClassificationError is the fraction of incorrect predictions,
// 1 - AccuracyScore.
func ClassificationError(yTrue, yPred []int) (float64, error) {
	acc, err := AccuracyScore(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix counts predictions per (true, predicted) pair.
//
// Element (i, j) is the number of samples whose true label is labels[i] and
// whose predicted label is labels[j]. Samples whose true or predicted label
// is not in labels are ignored, matching scikit-learn.
//
// Example:
//
//	cm, _ := ConfusionMatrix([]int{0, 1, 1}, []int{0, 1, 0}, []int{0, 1})
//	// cm = [[1 0]
//	//       [1 1]]
func ConfusionMatrix(yTrue, yPred, labels []int) (*mat.Dense, error) {
	if err := checkLabels("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels cannot be empty")
	}

	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		if _, dup := pos[l]; dup {
			return nil, errors.NewValidationError("labels", fmt.Sprintf("duplicate label %d", l), labels)
		}
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, ok := pos[yTrue[i]]
		if !ok {
			continue
		}
		c, ok := pos[yPred[i]]
		if !ok {
			continue
		}
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, nil
}

// PerClassRecall returns, for every label, the fraction of its samples that
// were predicted correctly. Labels without samples get 0.
func PerClassRecall(cm mat.Matrix) []float64 {
	r, _ := cm.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		total := 0.0
		for j := 0; j < r; j++ {
			total += cm.At(i, j)
		}
		if total > 0 {
			out[i] = cm.At(i, i) / total
		}
	}
	return out
}

func checkLabels(op string, yTrue, yPred []int) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "input slices cannot be empty")
	}
	if len(yTrue) != len(yPred) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}
