package training

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/dataset"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/preprocessing"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/neural_network"
)

func TestImportReproducesTrainedGeneration(t *testing.T) {
	quiet(t)
	tbl := dataset.Synthetic(200, 3)

	trained := newStore(t)
	want, err := Run(context.Background(), fastConfig(), trained,
		WithTable(tbl), WithLogger(log.Nop()))
	require.NoError(t, err)

	clf := &neural_network.MLPClassifier{}
	require.NoError(t, trained.Load(artifact.Model, clf))
	scaler := &preprocessing.StandardScaler{}
	require.NoError(t, trained.Load(artifact.Scaler, scaler))

	var modelJSON, scalerJSON bytes.Buffer
	require.NoError(t, clf.ExportSKLearn(&modelJSON))
	require.NoError(t, scaler.ExportSKLearn(&scalerJSON))

	imported := newStore(t)
	got, err := Import(context.Background(), fastConfig(), imported, &modelJSON, &scalerJSON,
		WithTable(tbl), WithLogger(log.Nop()))
	require.NoError(t, err)

	assert.InDelta(t, want.Accuracy, got.Accuracy, 1e-12)
	assert.Equal(t, want.TrainSamples, got.TrainSamples)
	assert.Equal(t, want.NIter, got.NIter)

	m, err := imported.Manifest()
	require.NoError(t, err)
	assert.Len(t, m.Artifacts, len(artifact.Required))
}

func TestImportRejectsWrongWidth(t *testing.T) {
	model := `{"model_spec": {"name": "MLPClassifier", "format_version": "1.0"},
		"params": {"coefs": [[[1, 1]], [[1, 0, 0, 0], [0, 1, 0, 0]]],
		"intercepts": [[0, 0], [0, 0, 0, 0]], "classes": [0, 1, 2, 3]}}`
	scaler := `{"model_spec": {"name": "StandardScaler", "format_version": "1.0"},
		"params": {"mean": [0], "scale": [1]}}`

	store := newStore(t)
	_, err := Import(context.Background(), fastConfig(), store,
		strings.NewReader(model), strings.NewReader(scaler),
		WithTable(dataset.Synthetic(20, 1)), WithLogger(log.Nop()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShape))

	_, err = store.Current()
	assert.True(t, errors.Is(err, errors.ErrArtifactMissing))
}

// exports trains a small generation and returns its model and scaler
// parameters in interchange form.
func exports(t *testing.T, tbl *dataset.Table) (*model.SKLearnMLPParams, *model.SKLearnScalerParams) {
	t.Helper()
	quiet(t)
	store := newStore(t)
	_, err := Run(context.Background(), fastConfig(), store, WithTable(tbl), WithLogger(log.Nop()))
	require.NoError(t, err)

	clf := &neural_network.MLPClassifier{}
	require.NoError(t, store.Load(artifact.Model, clf))
	scaler := &preprocessing.StandardScaler{}
	require.NoError(t, store.Load(artifact.Scaler, scaler))

	var modelJSON, scalerJSON bytes.Buffer
	require.NoError(t, clf.ExportSKLearn(&modelJSON))
	require.NoError(t, scaler.ExportSKLearn(&scalerJSON))

	m, err := model.LoadSKLearnModelFromReader(&modelJSON)
	require.NoError(t, err)
	mp, err := model.LoadMLPParams(m)
	require.NoError(t, err)
	sm, err := model.LoadSKLearnModelFromReader(&scalerJSON)
	require.NoError(t, err)
	sp, err := model.LoadScalerParams(sm)
	require.NoError(t, err)
	return mp, sp
}

func encode(t *testing.T, name string, params interface{}) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, model.ExportSKLearnModel(name, params, &buf))
	return &buf
}

func TestImportRejectsPartialClasses(t *testing.T) {
	tbl := dataset.Synthetic(120, 4)
	mp, sp := exports(t, tbl)

	// drop the output unit of class 3
	last := len(mp.Coefs) - 1
	for i, row := range mp.Coefs[last] {
		mp.Coefs[last][i] = row[:len(row)-1]
	}
	mp.Intercepts[last] = mp.Intercepts[last][:len(mp.Intercepts[last])-1]
	mp.Classes = mp.Classes[:len(mp.Classes)-1]
	require.Equal(t, []int{0, 1, 2}, mp.Classes)

	store := newStore(t)
	_, err := Import(context.Background(), fastConfig(), store,
		encode(t, "MLPClassifier", mp), encode(t, "StandardScaler", sp),
		WithTable(tbl), WithLogger(log.Nop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model classes")

	_, err = store.Current()
	assert.True(t, errors.Is(err, errors.ErrArtifactMissing))
}

func TestImportRejectsNonPositiveScale(t *testing.T) {
	tbl := dataset.Synthetic(120, 5)
	mp, sp := exports(t, tbl)
	ram, _ := schema.Index("ram")

	for _, scale := range []float64{-5, 0} {
		sp.Scale[ram] = scale
		store := newStore(t)
		_, err := Import(context.Background(), fastConfig(), store,
			encode(t, "MLPClassifier", mp), encode(t, "StandardScaler", sp),
			WithTable(tbl), WithLogger(log.Nop()))
		require.Error(t, err, "scale %v", scale)
		assert.Contains(t, err.Error(), "scale[13]")

		_, err = store.Current()
		assert.True(t, errors.Is(err, errors.ErrArtifactMissing))
	}
}
