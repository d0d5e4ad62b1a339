package metrics_test

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/metrics"
)

// ExampleAccuracyScore demonstrates accuracy on price-range labels
func ExampleAccuracyScore() {
	yTrue := []int{0, 1, 2, 3}
	yPred := []int{0, 1, 1, 3}

	acc, err := metrics.AccuracyScore(yTrue, yPred)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("Accuracy: %.2f\n", acc)

	// Output: Accuracy: 0.75
}

// ExampleConfusionMatrix demonstrates the per-class breakdown
func ExampleConfusionMatrix() {
	yTrue := []int{0, 0, 1, 2, 3, 3}
	yPred := []int{0, 1, 1, 2, 3, 2}

	cm, err := metrics.ConfusionMatrix(yTrue, yPred, []int{0, 1, 2, 3})
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("%v\n", mat.Formatted(cm))

	// Output:
	// ⎡1  1  0  0⎤
	// ⎢0  1  0  0⎥
	// ⎢0  0  1  0⎥
	// ⎣0  0  1  1⎦
}
