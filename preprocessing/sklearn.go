package preprocessing

import (
	"io"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/pkg/errors"
)

// ImportSKLearn builds a fitted scaler from a StandardScaler exported from
// Python with mean_ and scale_.
func ImportSKLearn(r io.Reader) (*StandardScaler, error) {
	exported, err := model.LoadSKLearnModelFromReader(r)
	if err != nil {
		return nil, err
	}
	params, err := model.LoadScalerParams(exported)
	if err != nil {
		return nil, err
	}

	s := NewStandardScaler()
	s.Mean = append([]float64(nil), params.Mean...)
	s.Scale = append([]float64(nil), params.Scale...)
	s.NFeatures = len(params.Mean)
	s.NSamplesSeen = params.NSamplesSeen
	s.SetFitted()
	return s, nil
}

// ExportSKLearn writes the fitted statistics in the interchange read by
// ImportSKLearn.
func (s *StandardScaler) ExportSKLearn(w io.Writer) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError("StandardScaler", "ExportSKLearn")
	}
	return model.ExportSKLearnModel("StandardScaler", model.SKLearnScalerParams{
		Mean:         s.Mean,
		Scale:        s.Scale,
		NSamplesSeen: s.NSamplesSeen,
	}, w)
}
