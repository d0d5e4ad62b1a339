package inference

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/dataset"
	"github.com/ezoic/pricerange/pkg/config"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/inspection"
	"github.com/ezoic/pricerange/sklearn/neural_network"
	"github.com/ezoic/pricerange/training"
)

var referenceSample = []float64{1500, 1, 2.0, 0, 8, 1, 64, 0.8, 180, 4, 12, 1080, 1920, 4000, 15, 7, 10, 1, 1, 1}

func quiet(t testing.TB) {
	t.Helper()
	prev := errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(prev) })
}

// train commits a small model trained on a synthetic table and returns its
// generation id.
func train(t testing.TB, store *artifact.Store, seed uint64) string {
	t.Helper()
	quiet(t)
	cfg := config.Default().Training
	cfg.HiddenLayerSizes = []int{32}
	cfg.MaxIter = 100
	cfg.Seed = seed

	report, err := training.Run(context.Background(), cfg, store,
		training.WithTable(dataset.Synthetic(400, 42)),
		training.WithLogger(log.Nop()),
		training.WithClassifierOptions(neural_network.WithBatchSize(32)),
	)
	require.NoError(t, err)
	return report.Generation
}

func trainedService(t testing.TB, opts ...Option) (*Service, *artifact.Store) {
	t.Helper()
	store, err := artifact.Open(t.TempDir(), artifact.WithLogger(log.Nop()))
	require.NoError(t, err)
	train(t, store, 42)

	svc := New(store, append([]Option{WithLogger(log.Nop())}, opts...)...)
	require.NoError(t, svc.Load(context.Background()))
	return svc, store
}

func clone(s []float64) []float64 { return append([]float64(nil), s...) }

func TestServiceNotLoaded(t *testing.T) {
	store, err := artifact.Open(t.TempDir(), artifact.WithLogger(log.Nop()))
	require.NoError(t, err)
	svc := New(store, WithLogger(log.Nop()))

	_, err = svc.Predict(referenceSample)
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
	_, err = svc.PredictBatch([][]float64{referenceSample})
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
	_, err = svc.PredictNamed(map[string]float64{})
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
	_, err = svc.Explain(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
	assert.Equal(t, "", svc.Generation())

	err = svc.Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrArtifactMissing))
}

func TestServicePredictReferenceSample(t *testing.T) {
	svc, store := trainedService(t)

	p, err := svc.Predict(referenceSample)
	require.NoError(t, err)
	assert.True(t, schema.IsLabel(p.Label))
	name, _ := schema.LabelName(p.Label)
	assert.Equal(t, name, p.Name)

	// a fresh service over the same artifacts answers identically
	other := New(store, WithLogger(log.Nop()), WithCacheSize(0))
	require.NoError(t, other.Load(context.Background()))
	q, err := other.Predict(referenceSample)
	require.NoError(t, err)
	assert.Equal(t, p, q)
}

func TestServiceLoadIdempotent(t *testing.T) {
	svc, store := trainedService(t)
	gen := svc.Generation()
	b := svc.current.Load()

	require.NoError(t, svc.Load(context.Background()))
	assert.Same(t, b, svc.current.Load())

	// Load does not pick up newer generations, Reload does
	newer := train(t, store, 7)
	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, gen, svc.Generation())
	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, newer, svc.Generation())
}

func TestServicePredictValidation(t *testing.T) {
	svc, _ := trainedService(t)

	tests := []struct {
		name   string
		sample []float64
		kind   error
	}{
		{"19 elements", referenceSample[:19], errors.ErrShape},
		{"21 elements", append(clone(referenceSample), 1), errors.ErrShape},
		{"empty", nil, errors.ErrShape},
		{"blue = 2", func() []float64 { s := clone(referenceSample); s[1] = 2; return s }(), errors.ErrSchema},
		{"NaN ram", func() []float64 { s := clone(referenceSample); s[13] = math.NaN(); return s }(), errors.ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Predict(tt.sample)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			_, err = svc.PredictBatch([][]float64{referenceSample, tt.sample})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.Contains(t, err.Error(), "sample 1")
		})
	}
}

func TestServicePredictNamed(t *testing.T) {
	svc, _ := trainedService(t)

	values := make(map[string]float64)
	for i, name := range schema.FeatureOrder() {
		values[name] = referenceSample[i]
	}
	named, err := svc.PredictNamed(values)
	require.NoError(t, err)
	positional, err := svc.Predict(referenceSample)
	require.NoError(t, err)
	assert.Equal(t, positional, named)

	delete(values, "ram")
	_, err = svc.PredictNamed(values)
	assert.True(t, errors.Is(err, errors.ErrSchema))
}

func TestServicePredictBatchMatchesSingle(t *testing.T) {
	svc, _ := trainedService(t)
	tbl := dataset.Synthetic(40, 99)

	samples := make([][]float64, tbl.Len())
	for i := range samples {
		samples[i] = mat.Row(nil, i, tbl.X)
	}
	batch, err := svc.PredictBatch(samples)
	require.NoError(t, err)
	require.Len(t, batch, len(samples))

	for i, sample := range samples {
		single, err := svc.Predict(sample)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "sample %d", i)
	}

	empty, err := svc.PredictBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestServicePredictCache(t *testing.T) {
	svc, _ := trainedService(t, WithCacheSize(4))
	b := svc.current.Load()
	require.NotNil(t, b.cache)

	first, err := svc.Predict(referenceSample)
	require.NoError(t, err)
	assert.Equal(t, 1, b.cache.Len())

	second, err := svc.Predict(referenceSample)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, b.cache.Len())

	noCache, _ := trainedService(t, WithCacheSize(0))
	assert.Nil(t, noCache.current.Load().cache)
}

func TestServiceExplain(t *testing.T) {
	svc, _ := trainedService(t)

	res, err := svc.Explain(context.Background(), inspection.WithNRepeats(10), inspection.WithRandomState(42))
	require.NoError(t, err)
	require.Len(t, res.ImportancesMean, schema.NumFeatures)
	for _, v := range res.ImportancesMean {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	ram, _ := schema.Index("ram")
	assert.Contains(t, res.Ranking()[:3], ram)
	assert.Greater(t, res.ImportancesMean[ram], 0.0)

	again, err := svc.Explain(context.Background(), inspection.WithNRepeats(10), inspection.WithRandomState(42))
	require.NoError(t, err)
	assert.Equal(t, res.ImportancesMean, again.ImportancesMean)
}

func TestServiceExplainCancelled(t *testing.T) {
	svc, _ := trainedService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Explain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceReloadKeepsPreviousOnFailure(t *testing.T) {
	svc, store := trainedService(t)
	gen := svc.Generation()
	before, err := svc.Predict(referenceSample)
	require.NoError(t, err)

	// a generation whose model is not a classifier
	g, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Save(artifact.Model, "not a model"))
	require.NoError(t, g.Save(artifact.Scaler, "not a scaler"))
	require.NoError(t, g.Save(artifact.XTrain, mat.NewDense(1, 1, nil)))
	require.NoError(t, g.Save(artifact.YTrain, []int{0}))
	_, err = g.Commit()
	require.NoError(t, err)

	err = svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrArtifactIncompatible))
	assert.Equal(t, gen, svc.Generation())

	after, err := svc.Predict(referenceSample)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestServiceConcurrentPredictDuringReload(t *testing.T) {
	svc, store := trainedService(t)
	train(t, store, 11)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p, err := svc.Predict(referenceSample)
				assert.NoError(t, err)
				assert.True(t, schema.IsLabel(p.Label))
			}
		}()
	}
	require.NoError(t, svc.Reload(context.Background()))
	wg.Wait()
}

func TestServiceWatch(t *testing.T) {
	svc, store := trainedService(t)
	first := svc.Generation()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()

	newer := train(t, store, 5)
	require.NotEqual(t, first, newer)
	assert.Eventually(t, func() bool { return svc.Generation() == newer },
		5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestPredictionString(t *testing.T) {
	assert.Equal(t, "2 (High Cost)", Prediction{Label: 2, Name: "High", Display: "High Cost"}.String())
}
