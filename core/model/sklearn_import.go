package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ezoic/pricerange/pkg/errors"
)

// SKLearnFormatVersion is the only interchange version understood.
const SKLearnFormatVersion = "1.0"

// SKLearnModelSpec はscikit-learnモデルのメタデータ
type SKLearnModelSpec struct {
	Name           string `json:"name"`                      // "MLPClassifier" or "StandardScaler"
	FormatVersion  string `json:"format_version"`            // フォーマットバージョン
	SKLearnVersion string `json:"sklearn_version,omitempty"` // scikit-learnのバージョン
}

// SKLearnModel is a fitted estimator exported from Python as JSON, e.g.
//
//	{"model_spec": {"name": "MLPClassifier", "format_version": "1.0"},
//	 "params": {"coefs": [...], "intercepts": [...], "classes": [0, 1, 2, 3]}}
type SKLearnModel struct {
	ModelSpec SKLearnModelSpec `json:"model_spec"`
	Params    json.RawMessage  `json:"params"`
}

// SKLearnMLPParams mirrors MLPClassifier.coefs_, intercepts_ and classes_.
// Coefs[l] is fan_in × fan_out.
type SKLearnMLPParams struct {
	Coefs         [][][]float64 `json:"coefs"`
	Intercepts    [][]float64   `json:"intercepts"`
	Classes       []int         `json:"classes"`
	Activation    string        `json:"activation,omitempty"`
	OutActivation string        `json:"out_activation,omitempty"`
	NIter         int           `json:"n_iter,omitempty"`
}

// SKLearnScalerParams mirrors StandardScaler.mean_, scale_ and
// n_samples_seen_.
type SKLearnScalerParams struct {
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	NSamplesSeen int       `json:"n_samples_seen,omitempty"`
}

// LoadSKLearnModelFromFile はファイルからscikit-learnモデルを読み込む
func LoadSKLearnModelFromFile(filename string) (*SKLearnModel, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer func() { _ = file.Close() }()

	return LoadSKLearnModelFromReader(file)
}

// LoadSKLearnModelFromReader はReaderからscikit-learnモデルを読み込む
func LoadSKLearnModelFromReader(r io.Reader) (*SKLearnModel, error) {
	var model SKLearnModel
	if err := json.NewDecoder(r).Decode(&model); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON")
	}

	if model.ModelSpec.FormatVersion == "" {
		return nil, errors.NewValueError("LoadSKLearnModel", "format_version is required")
	}
	if model.ModelSpec.FormatVersion != SKLearnFormatVersion {
		return nil, errors.NewValueError("LoadSKLearnModel",
			fmt.Sprintf("unsupported format version: %s", model.ModelSpec.FormatVersion))
	}
	if model.ModelSpec.Name == "" {
		return nil, errors.NewValueError("LoadSKLearnModel", "model name is required")
	}
	return &model, nil
}

// LoadMLPParams decodes and checks the parameters of an exported
// MLPClassifier. Only relu hidden layers with a softmax output are accepted.
func LoadMLPParams(model *SKLearnModel) (*SKLearnMLPParams, error) {
	if model.ModelSpec.Name != "MLPClassifier" {
		return nil, errors.NewValueError("LoadMLPParams",
			fmt.Sprintf("expected MLPClassifier, got %s", model.ModelSpec.Name))
	}

	var params SKLearnMLPParams
	if err := json.Unmarshal(model.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal params")
	}

	if params.Activation != "" && params.Activation != "relu" {
		return nil, errors.NewValueError("LoadMLPParams", "unsupported activation: "+params.Activation)
	}
	if params.OutActivation != "" && params.OutActivation != "softmax" {
		return nil, errors.NewValueError("LoadMLPParams", "unsupported output activation: "+params.OutActivation)
	}
	if len(params.Coefs) < 2 || len(params.Coefs) != len(params.Intercepts) {
		return nil, errors.NewValueError("LoadMLPParams",
			fmt.Sprintf("got %d weight matrices and %d intercept vectors", len(params.Coefs), len(params.Intercepts)))
	}

	fanIn := len(params.Coefs[0])
	for l, w := range params.Coefs {
		if len(w) != fanIn {
			return nil, errors.NewDimensionError("LoadMLPParams", fanIn, len(w), 0)
		}
		fanOut := len(params.Intercepts[l])
		for _, row := range w {
			if len(row) != fanOut {
				return nil, errors.NewDimensionError("LoadMLPParams", fanOut, len(row), 1)
			}
		}
		fanIn = fanOut
	}
	if fanIn != len(params.Classes) {
		return nil, errors.NewValueError("LoadMLPParams",
			fmt.Sprintf("output layer has %d units for %d classes", fanIn, len(params.Classes)))
	}
	return &params, nil
}

// LoadScalerParams decodes and checks the parameters of an exported
// StandardScaler.
func LoadScalerParams(model *SKLearnModel) (*SKLearnScalerParams, error) {
	if model.ModelSpec.Name != "StandardScaler" {
		return nil, errors.NewValueError("LoadScalerParams",
			fmt.Sprintf("expected StandardScaler, got %s", model.ModelSpec.Name))
	}

	var params SKLearnScalerParams
	if err := json.Unmarshal(model.Params, &params); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal params")
	}
	if len(params.Mean) == 0 {
		return nil, errors.NewValueError("LoadScalerParams", "mean cannot be empty")
	}
	if len(params.Mean) != len(params.Scale) {
		return nil, errors.NewDimensionError("LoadScalerParams", len(params.Mean), len(params.Scale), 0)
	}
	for i, s := range params.Scale {
		if !(s > 0) || math.IsInf(s, 1) {
			return nil, errors.NewValueError("LoadScalerParams",
				fmt.Sprintf("scale[%d] = %v, must be positive and finite", i, s))
		}
	}
	for i, m := range params.Mean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, errors.NewValueError("LoadScalerParams", fmt.Sprintf("mean[%d] is not finite", i))
		}
	}
	return &params, nil
}

// ExportSKLearnModel はモデルをscikit-learn互換のJSON形式でエクスポート
func ExportSKLearnModel(modelName string, params interface{}, w io.Writer) error {
	model := SKLearnModel{
		ModelSpec: SKLearnModelSpec{
			Name:          modelName,
			FormatVersion: SKLearnFormatVersion,
		},
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal params")
	}
	model.Params = paramsJSON

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}
