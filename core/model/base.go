// Package model provides the estimator building blocks shared by the
// preprocessing and classification packages:
//
//   - BaseEstimator and StateManager: fitted-state tracking that survives
//     gob encoding
//   - Transformer and Classifier: the Fit/Transform and Fit/Predict contracts
//   - SaveModel/LoadModel: gob persistence used by the artifact store
//
// Example usage:
//
//	type MyModel struct {
//		State *model.StateManager
//	}
//
//	func (m *MyModel) Fit(X mat.Matrix, y []int) error {
//		// training logic
//		m.State.SetFitted()
//		return nil
//	}
package model

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// EstimatorState represents the learning state of a model
type EstimatorState int

const (
	// NotFitted indicates the model is not yet trained
	NotFitted EstimatorState = iota
	// Fitted indicates the model has been trained
	Fitted
)

// BaseEstimator is the minimal embeddable fitted-state holder.
type BaseEstimator struct {
	// State holds the model's learning state. Public for gob encoding.
	State EstimatorState
}

// IsFitted returns whether the model has been fitted with training data.
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted marks the estimator as fitted (trained).
func (e *BaseEstimator) SetFitted() {
	e.State = Fitted
}

// Reset returns the estimator to its initial untrained state.
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
}

// StateManager tracks fitted state and the training dimensions. Models hold
// it by pointer (composition) and expose it as an exported field so that gob
// round-trips it with the learned parameters.
type StateManager struct {
	Fitted    bool
	NFeatures int
	NSamples  int

	mu sync.RWMutex
}

// NewStateManager returns an unfitted state.
func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

func (s *StateManager) SetFitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
}

// SetDimensions records the feature and sample counts seen by Fit.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// GetDimensions returns the feature and sample counts seen by Fit.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// Transformer learns a transformation from X and applies it.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Predictor maps rows of a feature matrix to integer class labels.
type Predictor interface {
	Predict(X mat.Matrix) ([]int, error)
}

// Classifier is a trainable Predictor over integer labels.
type Classifier interface {
	Predictor
	Fit(X mat.Matrix, y []int) error
	Classes() []int
}
