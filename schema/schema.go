// Package schema defines the 20-feature phone description and the four
// price-range labels.
//
// The feature order is part of the model contract: the scaler and the
// classifier are positional, so every sample must be laid out as
// FeatureOrder returns it. Callers that hold a name→value mapping should go
// through ValidateNamed, which projects it into that order.
package schema

import (
	"math"

	"github.com/ezoic/pricerange/pkg/errors"
)

// NumFeatures is the length of a feature vector.
const NumFeatures = 20

// LabelColumn is the header of the target column in training tables.
const LabelColumn = "price_range"

// Kind is the value type of a feature.
type Kind int

const (
	Int Kind = iota
	Float
	Binary
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Binary:
		return "bool"
	default:
		return "unknown"
	}
}

// Domain describes one feature. Min and Max are advisory except for Binary
// features, which must be 0 or 1. Default is the value the prediction form
// starts from.
type Domain struct {
	Name    string
	Kind    Kind
	Unit    string
	Min     float64
	Max     float64
	Default float64
}

var domains = [NumFeatures]Domain{
	{Name: "battery_power", Kind: Int, Unit: "mAh", Min: 500, Max: 2000, Default: 1500},
	{Name: "blue", Kind: Binary, Min: 0, Max: 1, Default: 1},
	{Name: "clock_speed", Kind: Float, Unit: "GHz", Min: 0.5, Max: 3.0, Default: 2.0},
	{Name: "dual_sim", Kind: Binary, Min: 0, Max: 1, Default: 0},
	{Name: "fc", Kind: Int, Unit: "MP", Min: 0, Max: 20, Default: 8},
	{Name: "four_g", Kind: Binary, Min: 0, Max: 1, Default: 1},
	{Name: "int_memory", Kind: Int, Unit: "GB", Min: 2, Max: 128, Default: 64},
	{Name: "m_deep", Kind: Float, Unit: "cm", Min: 0.1, Max: 1.0, Default: 0.8},
	{Name: "mobile_wt", Kind: Int, Unit: "g", Min: 80, Max: 250, Default: 180},
	{Name: "n_cores", Kind: Int, Min: 1, Max: 8, Default: 4},
	{Name: "pc", Kind: Int, Unit: "MP", Min: 0, Max: 20, Default: 12},
	{Name: "px_height", Kind: Int, Min: 0, Max: 1960, Default: 1080},
	{Name: "px_width", Kind: Int, Min: 500, Max: 2000, Default: 1920},
	{Name: "ram", Kind: Int, Unit: "MB", Min: 256, Max: 8000, Default: 4000},
	{Name: "sc_h", Kind: Int, Unit: "cm", Min: 5, Max: 20, Default: 15},
	{Name: "sc_w", Kind: Int, Unit: "cm", Min: 2, Max: 12, Default: 7},
	{Name: "talk_time", Kind: Int, Unit: "h", Min: 2, Max: 20, Default: 10},
	{Name: "three_g", Kind: Binary, Min: 0, Max: 1, Default: 1},
	{Name: "touch_screen", Kind: Binary, Min: 0, Max: 1, Default: 1},
	{Name: "wifi", Kind: Binary, Min: 0, Max: 1, Default: 1},
}

var index = func() map[string]int {
	m := make(map[string]int, NumFeatures)
	for i, d := range domains {
		m[d.Name] = i
	}
	return m
}()

// FeatureOrder returns the canonical feature names. The slice is a copy.
func FeatureOrder() []string {
	names := make([]string, NumFeatures)
	for i, d := range domains {
		names[i] = d.Name
	}
	return names
}

// Index returns the position of the named feature.
func Index(name string) (int, bool) {
	i, ok := index[name]
	return i, ok
}

// Domains returns the feature domains in canonical order.
func Domains() []Domain {
	out := make([]Domain, NumFeatures)
	copy(out, domains[:])
	return out
}

// DefaultSample returns the form defaults as a feature vector.
func DefaultSample() []float64 {
	out := make([]float64, NumFeatures)
	for i, d := range domains {
		out[i] = d.Default
	}
	return out
}

// Validate checks a positional sample. A wrong length is a shape error; a
// non-finite value or a binary feature outside {0,1} is a schema error.
func Validate(sample []float64) error {
	if len(sample) != NumFeatures {
		return errors.NewDimensionError("schema.Validate", NumFeatures, len(sample), 0)
	}
	for i, v := range sample {
		d := domains[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewSchemaError(d.Name, v, "value must be finite")
		}
		if d.Kind == Binary && v != 0 && v != 1 {
			return errors.NewSchemaError(d.Name, v, "binary feature must be 0 or 1")
		}
	}
	return nil
}

// ValidateNamed projects a name→value mapping into canonical order and
// validates it. Unknown and missing names are schema errors.
func ValidateNamed(values map[string]float64) ([]float64, error) {
	for name := range values {
		if _, ok := index[name]; !ok {
			return nil, errors.NewSchemaError(name, math.NaN(), "unknown feature")
		}
	}
	sample := make([]float64, NumFeatures)
	for i, d := range domains {
		v, ok := values[d.Name]
		if !ok {
			return nil, errors.NewSchemaError(d.Name, math.NaN(), "feature is missing")
		}
		sample[i] = v
	}
	if err := Validate(sample); err != nil {
		return nil, err
	}
	return sample, nil
}

// CheckDomains returns the names of features whose values fall outside the
// advisory domain. It never fails.
func CheckDomains(sample []float64) []string {
	var out []string
	for i, v := range sample {
		if i >= NumFeatures {
			break
		}
		if v < domains[i].Min || v > domains[i].Max {
			out = append(out, domains[i].Name)
		}
	}
	return out
}
