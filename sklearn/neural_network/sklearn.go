package neural_network

import (
	"io"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/pkg/errors"
)

// ImportSKLearn builds a fitted classifier from an MLPClassifier exported
// from Python with coefs_, intercepts_ and classes_.
func ImportSKLearn(r io.Reader, opts ...Option) (*MLPClassifier, error) {
	exported, err := model.LoadSKLearnModelFromReader(r)
	if err != nil {
		return nil, err
	}
	params, err := model.LoadMLPParams(exported)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, len(params.Coefs))
	hidden := make([]int, 0, len(layers)-1)
	for l, coef := range params.Coefs {
		fanIn, fanOut := len(coef), len(params.Intercepts[l])
		w := make([]float64, 0, fanIn*fanOut)
		for _, row := range coef {
			w = append(w, row...)
		}
		layers[l] = Layer{
			FanIn:   fanIn,
			FanOut:  fanOut,
			Weights: w,
			Bias:    append([]float64(nil), params.Intercepts[l]...),
		}
		if l < len(params.Coefs)-1 {
			hidden = append(hidden, fanOut)
		}
	}

	m := NewMLPClassifier(append([]Option{
		WithHiddenLayerSizes(hidden...),
		WithClasses(params.Classes...),
	}, opts...)...)
	m.Layers = layers
	m.ClassLabels = append([]int(nil), params.Classes...)
	m.Iterations = params.NIter
	m.Converged = true
	m.State.SetDimensions(layers[0].FanIn, 0)
	m.State.SetFitted()
	return m, nil
}

// ExportSKLearn writes the fitted network in the interchange read by
// ImportSKLearn.
func (m *MLPClassifier) ExportSKLearn(w io.Writer) error {
	if !m.IsFitted() {
		return errors.NewNotFittedError("MLPClassifier", "ExportSKLearn")
	}
	m.mu.RLock()
	params := model.SKLearnMLPParams{
		Coefs:         make([][][]float64, len(m.Layers)),
		Intercepts:    make([][]float64, len(m.Layers)),
		Classes:       append([]int(nil), m.ClassLabels...),
		Activation:    "relu",
		OutActivation: "softmax",
		NIter:         m.Iterations,
	}
	for l, layer := range m.Layers {
		rows := make([][]float64, layer.FanIn)
		for i := range rows {
			rows[i] = append([]float64(nil), layer.Weights[i*layer.FanOut:(i+1)*layer.FanOut]...)
		}
		params.Coefs[l] = rows
		params.Intercepts[l] = append([]float64(nil), layer.Bias...)
	}
	m.mu.RUnlock()

	return model.ExportSKLearnModel("MLPClassifier", params, w)
}
