// Package errors provides the error kinds surfaced by the price-range
// classifier together with thin wrappers over github.com/cockroachdb/errors.
//
// Every failure mode maps to exactly one sentinel (ErrSchema, ErrShape,
// ErrNotFitted, ...). The typed errors in this package carry the context a
// caller needs to present the failure (feature name, row index, artifact
// path) and match their sentinel through errors.Is:
//
//	_, err := svc.Predict(sample)
//	if errors.Is(err, errors.ErrSchema) {
//		var se *errors.SchemaError
//		if errors.As(err, &se) {
//			fmt.Println("bad feature:", se.Feature)
//		}
//	}
package errors

import (
	"fmt"
	"math"
	"runtime/debug"

	cerrors "github.com/cockroachdb/errors"
)

// Sentinel errors, one per error kind.
var (
	ErrSchema               = cerrors.New("schema error")
	ErrShape                = cerrors.New("shape error")
	ErrNotFitted            = cerrors.New("not fitted")
	ErrArtifactMissing      = cerrors.New("artifact missing")
	ErrArtifactIncompatible = cerrors.New("artifact incompatible")
	ErrEmptyDataset         = cerrors.New("empty dataset")
	ErrMissingLabel         = cerrors.New("missing label")
	ErrBadFeatureValue      = cerrors.New("bad feature value")
	ErrBadLabel             = cerrors.New("bad label")
	ErrUnknownLabel         = cerrors.New("unknown label")
)

// New, Newf, Wrap, Wrapf, Is, As and Unwrap delegate to cockroachdb/errors so
// that callers get stack traces with %+v.
func New(msg string) error { return cerrors.New(msg) }

func Newf(format string, args ...interface{}) error { return cerrors.Newf(format, args...) }

func Wrap(err error, msg string) error { return cerrors.Wrap(err, msg) }

func Wrapf(err error, format string, args ...interface{}) error {
	return cerrors.Wrapf(err, format, args...)
}

func Is(err, reference error) bool { return cerrors.Is(err, reference) }

func As(err error, target interface{}) bool { return cerrors.As(err, target) }

func Unwrap(err error) error { return cerrors.Unwrap(err) }

// NotFittedError is returned when an estimator is used before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func NewNotFittedError(modelName, method string) error {
	return &NotFittedError{ModelName: modelName, Method: method}
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s: this %s instance is not fitted yet, call Fit before %s",
		e.Method, e.ModelName, e.Method)
}

func (e *NotFittedError) Is(target error) bool { return target == ErrNotFitted }

// DimensionError reports a shape mismatch on the given axis
// (0 = rows / vector length, 1 = columns).
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func NewDimensionError(op string, expected, got, axis int) error {
	return &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch on axis %d: expected %d, got %d",
		e.Op, e.Axis, e.Expected, e.Got)
}

func (e *DimensionError) Is(target error) bool { return target == ErrShape }

// SchemaError reports a sample that violates the feature schema.
type SchemaError struct {
	Feature string
	Value   float64
	Reason  string
}

func NewSchemaError(feature string, value float64, reason string) error {
	return &SchemaError{Feature: feature, Value: value, Reason: reason}
}

func (e *SchemaError) Error() string {
	if math.IsNaN(e.Value) {
		return fmt.Sprintf("schema: feature %q: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("schema: feature %q = %v: %s", e.Feature, e.Value, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// DataError reports a problem in an input table. Kind is one of the dataset
// sentinels (ErrEmptyDataset, ErrMissingLabel, ErrBadFeatureValue, ErrBadLabel).
// Row is the 1-based data row (header excluded), or 0 when not applicable.
type DataError struct {
	Kind   error
	Row    int
	Column string
	Reason string
}

func NewDataError(kind error, row int, column, reason string) error {
	return &DataError{Kind: kind, Row: row, Column: column, Reason: reason}
}

func (e *DataError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("%v: row %d, column %q: %s", e.Kind, e.Row, e.Column, e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("%v: row %d: %s", e.Kind, e.Row, e.Reason)
	case e.Column != "":
		return fmt.Sprintf("%v: column %q: %s", e.Kind, e.Column, e.Reason)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
}

func (e *DataError) Is(target error) bool { return target == e.Kind }

// ArtifactError reports a persisted artifact that could not be used.
// Kind is ErrArtifactMissing or ErrArtifactIncompatible.
type ArtifactError struct {
	Kind error
	Name string
	Path string
	Err  error
}

func NewArtifactError(kind error, name, path string, err error) error {
	return &ArtifactError{Kind: kind, Name: name, Path: path, Err: err}
}

func (e *ArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s (%s): %v", e.Kind, e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %s (%s)", e.Kind, e.Name, e.Path)
}

func (e *ArtifactError) Is(target error) bool { return target == e.Kind }

func (e *ArtifactError) Unwrap() error { return e.Err }

// UnknownLabelError is returned when decoding a label outside {0..3}.
type UnknownLabelError struct {
	Label int
}

func NewUnknownLabelError(label int) error { return &UnknownLabelError{Label: label} }

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %d", e.Label)
}

func (e *UnknownLabelError) Is(target error) bool { return target == ErrUnknownLabel }

// ValueError reports an invalid argument value.
type ValueError struct {
	Op      string
	Message string
}

func NewValueError(op, message string) error {
	return &ValueError{Op: op, Message: message}
}

func (e *ValueError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }

// ValidationError reports an invalid configuration parameter.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func NewValidationError(param, reason string, value interface{}) error {
	return &ValidationError{ParamName: param, Reason: reason, Value: value}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.ParamName, e.Value, e.Reason)
}

// ModelError wraps a lower-level error with the operation that failed.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func NewModelError(op, kind string, err error) error {
	return &ModelError{Op: op, Kind: kind, Err: err}
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("pricerange: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ConvergenceWarning signals that an iterative solver stopped at its
// iteration limit. It is a warning and is passed to Warn, never returned.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("ConvergenceWarning: %s did not converge after %d iterations: %s",
		w.Algorithm, w.Iterations, w.Message)
}

// NumericalInstabilityError reports a NaN or Inf produced during training.
type NumericalInstabilityError struct {
	Name      string
	Value     float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("numerical instability: %s = %v at iteration %d", e.Name, e.Value, e.Iteration)
}

// CheckScalar returns a NumericalInstabilityError when v is NaN or ±Inf.
func CheckScalar(name string, v float64, iteration int) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &NumericalInstabilityError{Name: name, Value: v, Iteration: iteration}
	}
	return nil
}

// Recover converts a panic in the calling function into an error stored in
// *err. Use as `defer errors.Recover(&err, "StandardScaler.Fit")`.
func Recover(err *error, op string) {
	if r := recover(); r != nil {
		*err = cerrors.WithDetail(
			cerrors.Newf("%s: panic: %v", op, r),
			string(debug.Stack()),
		)
	}
}
