// Package pipeline chains fitted transformers in front of a final
// classifier, in the manner of sklearn.pipeline.Pipeline.
//
// The inference service serves a two-step pipeline: the standard scaler
// followed by the MLP. Rows go through every transformer in order and the
// result is handed to the final step.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
)

// Step is one named stage. Every step but the last must be a
// model.Transformer; the last must be a model.Predictor.
type Step struct {
	Name      string
	Estimator interface{}
}

type fitted interface {
	IsFitted() bool
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	steps  []Step
	named  map[string]interface{}
	logger log.Logger
}

// New validates the step types and returns the pipeline.
func New(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("steps", "pipeline needs at least one step", 0)
	}
	named := make(map[string]interface{}, len(steps))
	for i, step := range steps {
		if _, dup := named[step.Name]; dup {
			return nil, errors.NewValidationError("steps", "duplicate step name", step.Name)
		}
		named[step.Name] = step.Estimator
		if i < len(steps)-1 {
			if _, ok := step.Estimator.(model.Transformer); !ok {
				return nil, errors.NewValidationError("pipeline step",
					"all intermediate steps must be transformers", step.Name)
			}
			continue
		}
		if _, ok := step.Estimator.(model.Predictor); !ok {
			return nil, errors.NewValidationError("pipeline final step",
				"final step must have a Predict method", step.Name)
		}
	}
	return &Pipeline{
		steps:  append([]Step(nil), steps...),
		named:  named,
		logger: log.GetLoggerWithName("pipeline"),
	}, nil
}

// Make names the steps step1, step2, ... like make_pipeline.
func Make(estimators ...interface{}) (*Pipeline, error) {
	steps := make([]Step, len(estimators))
	for i, e := range estimators {
		steps[i] = Step{Name: fmt.Sprintf("step%d", i+1), Estimator: e}
	}
	return New(steps...)
}

// IsFitted reports whether every step that tracks fitted state is fitted.
func (p *Pipeline) IsFitted() bool {
	for _, step := range p.steps {
		if f, ok := step.Estimator.(fitted); ok && !f.IsFitted() {
			return false
		}
	}
	return true
}

// Fit fits each transformer on the output of the previous one, then fits the
// final step if it is a model.Classifier.
func (p *Pipeline) Fit(X mat.Matrix, y []int) error {
	Xt := X
	for _, step := range p.steps[:len(p.steps)-1] {
		t := step.Estimator.(model.Transformer)
		var err error
		if Xt, err = t.FitTransform(Xt); err != nil {
			return errors.NewModelError("Pipeline.Fit", "step "+step.Name, err)
		}
	}

	final := p.steps[len(p.steps)-1]
	clf, ok := final.Estimator.(model.Classifier)
	if !ok {
		return errors.NewValidationError("pipeline final step", "final step must have a Fit method", final.Name)
	}
	if err := clf.Fit(Xt, y); err != nil {
		return errors.NewModelError("Pipeline.Fit", "final step "+final.Name, err)
	}
	p.logger.Debug("Pipeline fitted", log.OperationKey, log.OperationFit, "steps", p.String())
	return nil
}

// Transform applies every step except the last.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Transform")
	}
	Xt := X
	for _, step := range p.steps[:len(p.steps)-1] {
		var err error
		if Xt, err = step.Estimator.(model.Transformer).Transform(Xt); err != nil {
			return nil, errors.Wrapf(err, "failed to transform at step '%s'", step.Name)
		}
	}
	return Xt, nil
}

// Predict transforms X and predicts with the final step.
func (p *Pipeline) Predict(X mat.Matrix) ([]int, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.steps[len(p.steps)-1].Estimator.(model.Predictor).Predict(Xt)
}

// PredictRow predicts a single raw sample.
func (p *Pipeline) PredictRow(x []float64) (int, error) {
	if len(x) == 0 {
		return 0, errors.NewDimensionError("Pipeline.PredictRow", 1, 0, 1)
	}
	labels, err := p.Predict(mat.NewDense(1, len(x), append([]float64(nil), x...)))
	if err != nil {
		return 0, err
	}
	return labels[0], nil
}

// PredictProba transforms X and returns the final step's class
// probabilities.
func (p *Pipeline) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	final := p.steps[len(p.steps)-1]
	prob, ok := final.Estimator.(interface {
		PredictProba(mat.Matrix) (*mat.Dense, error)
	})
	if !ok {
		return nil, errors.NewValidationError("pipeline final step",
			"final step must have a PredictProba method", final.Name)
	}
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	return prob.PredictProba(Xt)
}

// Named returns the estimator of the step called name.
func (p *Pipeline) Named(name string) (interface{}, bool) {
	e, ok := p.named[name]
	return e, ok
}

// Steps returns a copy of the steps.
func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// String lists the step names.
func (p *Pipeline) String() string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return fmt.Sprintf("Pipeline(%v)", names)
}
