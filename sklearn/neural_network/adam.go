package neural_network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// adam is the Adam optimizer (Kingma & Ba) with bias-corrected step size,
// as used by scikit-learn's stochastic solver.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int

	mw, vw [][]float64 // moments of layer weights
	mb, vb [][]float64 // moments of layer biases
}

func newAdam(layers []Layer, p Params) *adam {
	a := &adam{
		lr:    p.LearningRateInit,
		beta1: p.Beta1,
		beta2: p.Beta2,
		eps:   p.Epsilon,
		mw:    make([][]float64, len(layers)),
		vw:    make([][]float64, len(layers)),
		mb:    make([][]float64, len(layers)),
		vb:    make([][]float64, len(layers)),
	}
	for l := range layers {
		a.mw[l] = make([]float64, len(layers[l].Weights))
		a.vw[l] = make([]float64, len(layers[l].Weights))
		a.mb[l] = make([]float64, len(layers[l].Bias))
		a.vb[l] = make([]float64, len(layers[l].Bias))
	}
	return a
}

func (a *adam) step(layers []Layer, wGrads []*mat.Dense, bGrads [][]float64) {
	a.t++
	t := float64(a.t)
	lrT := a.lr * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	for l := range layers {
		// a freshly allocated Dense has Stride == Cols, so Data is the
		// row-major gradient in the same layout as Layer.Weights
		a.update(layers[l].Weights, wGrads[l].RawMatrix().Data, a.mw[l], a.vw[l], lrT)
		a.update(layers[l].Bias, bGrads[l], a.mb[l], a.vb[l], lrT)
	}
}

func (a *adam) update(params, grads, m, v []float64, lrT float64) {
	for i, g := range grads {
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
		params[i] -= lrT * m[i] / (math.Sqrt(v[i]) + a.eps)
	}
}
