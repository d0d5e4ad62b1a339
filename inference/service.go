// Package inference serves price-range predictions from a committed artifact
// generation.
//
// A Service loads the model, scaler and training data of one generation into
// an immutable bundle. Predictions read the bundle through an atomic pointer,
// so they are safe for concurrent use and never observe a half-loaded
// generation. Reload (or Watch) swaps in a newer generation.
package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/preprocessing"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/inspection"
	"github.com/ezoic/pricerange/sklearn/neural_network"
	"github.com/ezoic/pricerange/sklearn/pipeline"
)

const defaultCacheSize = 1024

// Prediction is a decoded label.
type Prediction struct {
	Label int
	// Name is the ordinal name, e.g. "High".
	Name string
	// Display is the card text, e.g. "High Cost".
	Display string
}

type sampleKey = [schema.NumFeatures]float64

// bundle is one loaded generation. It is never mutated after load.
type bundle struct {
	generation string
	model      *neural_network.MLPClassifier
	// pipe is scaler then model, applied to raw samples
	pipe       *pipeline.Pipeline
	xTrain     *mat.Dense
	yTrain     []int
	cache      *lru.Cache[sampleKey, int]
}

// Service answers predict and explain calls.
type Service struct {
	store       *artifact.Store
	logger      log.Logger
	cacheSize   int
	explainOpts []inspection.Option

	current atomic.Pointer[bundle]
	loadMu  sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCacheSize sets the number of single-sample predictions memoized per
// generation. 0 disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Service) { s.cacheSize = n }
}

// WithExplainOptions sets default options for Explain.
func WithExplainOptions(opts ...inspection.Option) Option {
	return func(s *Service) { s.explainOpts = append(s.explainOpts, opts...) }
}

// New returns an unloaded Service reading from store.
func New(store *artifact.Store, opts ...Option) *Service {
	s := &Service{store: store, cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("inference")
	}
	return s
}

// Load reads the current generation unless one is already loaded.
func (s *Service) Load(ctx context.Context) error {
	if s.current.Load() != nil {
		return nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.current.Load() != nil {
		return nil
	}
	return s.reloadLocked(ctx)
}

// Reload loads the current generation if it differs from the loaded one.
// On failure the previously loaded generation stays in service.
func (s *Service) Reload(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) error {
	id, err := s.store.Current()
	if err != nil {
		return err
	}
	if b := s.current.Load(); b != nil && b.generation == id {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	b, err := s.loadBundle(id)
	if err != nil {
		return err
	}
	prev := s.current.Swap(b)

	fields := []interface{}{
		log.OperationKey, log.OperationLoad,
		log.GenerationKey, id,
		log.SamplesKey, len(b.yTrain),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	}
	if prev != nil {
		fields = append(fields, "previous", prev.generation)
	}
	s.logger.Info("Artifacts loaded", fields...)
	return nil
}

// loadBundle decodes every artifact of generation id into fresh values.
func (s *Service) loadBundle(id string) (*bundle, error) {
	clf := &neural_network.MLPClassifier{}
	if err := s.store.LoadFrom(id, artifact.Model, clf); err != nil {
		return nil, err
	}
	if !clf.IsFitted() || clf.NFeatures() != schema.NumFeatures {
		return nil, errors.NewArtifactError(errors.ErrArtifactIncompatible, artifact.Model, id,
			errors.Newf("model expects %d features", clf.NFeatures()))
	}
	clf.SetLogger(s.logger.With(log.ModelNameKey, "MLPClassifier"))

	scaler := &preprocessing.StandardScaler{}
	if err := s.store.LoadFrom(id, artifact.Scaler, scaler); err != nil {
		return nil, err
	}
	if !scaler.IsFitted() || scaler.NFeatures != schema.NumFeatures {
		return nil, errors.NewArtifactError(errors.ErrArtifactIncompatible, artifact.Scaler, id,
			errors.Newf("scaler expects %d features", scaler.NFeatures))
	}

	xTrain := &mat.Dense{}
	if err := s.store.LoadFrom(id, artifact.XTrain, xTrain); err != nil {
		return nil, err
	}
	var yTrain []int
	if err := s.store.LoadFrom(id, artifact.YTrain, &yTrain); err != nil {
		return nil, err
	}
	if r, c := xTrain.Dims(); r != len(yTrain) || c != schema.NumFeatures {
		return nil, errors.NewArtifactError(errors.ErrArtifactIncompatible, artifact.XTrain, id,
			errors.Newf("X_train is %dx%d with %d labels", r, c, len(yTrain)))
	}

	pipe, err := pipeline.New(
		pipeline.Step{Name: artifact.Scaler, Estimator: scaler},
		pipeline.Step{Name: artifact.Model, Estimator: clf},
	)
	if err != nil {
		return nil, err
	}

	b := &bundle{
		generation: id,
		model:      clf,
		pipe:       pipe,
		xTrain:     xTrain,
		yTrain:     yTrain,
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[sampleKey, int](s.cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create prediction cache")
		}
		b.cache = cache
	}
	return b, nil
}

func (s *Service) loaded(op string) (*bundle, error) {
	b := s.current.Load()
	if b == nil {
		return nil, errors.NewNotFittedError("inference.Service", op)
	}
	return b, nil
}

// Generation returns the id of the loaded generation, or "" before Load.
func (s *Service) Generation() string {
	if b := s.current.Load(); b != nil {
		return b.generation
	}
	return ""
}

// Predict validates a positional 20-feature sample, standardizes it and
// returns the predicted price range.
func (s *Service) Predict(sample []float64) (Prediction, error) {
	b, err := s.loaded("Predict")
	if err != nil {
		return Prediction{}, err
	}
	if err := schema.Validate(sample); err != nil {
		return Prediction{}, err
	}

	var key sampleKey
	copy(key[:], sample)
	if b.cache != nil {
		if label, ok := b.cache.Get(key); ok {
			return decode(label)
		}
	}

	label, err := b.pipe.PredictRow(sample)
	if err != nil {
		return Prediction{}, err
	}
	if b.cache != nil {
		b.cache.Add(key, label)
	}
	return decode(label)
}

// PredictNamed is Predict for a name→value mapping, which must name exactly
// the 20 features.
func (s *Service) PredictNamed(values map[string]float64) (Prediction, error) {
	if _, err := s.loaded("PredictNamed"); err != nil {
		return Prediction{}, err
	}
	sample, err := schema.ValidateNamed(values)
	if err != nil {
		return Prediction{}, err
	}
	return s.Predict(sample)
}

// PredictBatch predicts every sample in one pass. The first invalid sample
// fails the whole batch.
func (s *Service) PredictBatch(samples [][]float64) ([]Prediction, error) {
	b, err := s.loaded("PredictBatch")
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []Prediction{}, nil
	}

	X := mat.NewDense(len(samples), schema.NumFeatures, nil)
	for i, sample := range samples {
		if err := schema.Validate(sample); err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		X.SetRow(i, sample)
	}

	labels, err := b.pipe.Predict(X)
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, len(labels))
	for i, label := range labels {
		if out[i], err = decode(label); err != nil {
			return nil, err
		}
	}
	s.logger.Debug("Batch predicted",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseInference,
		log.PredsKey, len(out),
		log.GenerationKey, b.generation,
	)
	return out, nil
}

// Explain computes permutation importance of the loaded model on the
// training split stored with it. opts override the service defaults.
func (s *Service) Explain(ctx context.Context, opts ...inspection.Option) (*inspection.Result, error) {
	b, err := s.loaded("Explain")
	if err != nil {
		return nil, err
	}
	all := append(append([]inspection.Option{inspection.WithLogger(s.logger)}, s.explainOpts...), opts...)
	return inspection.PermutationImportance(ctx, b.model, b.xTrain, b.yTrain, all...)
}

// Watch reloads whenever the store's CURRENT pointer changes, until ctx is
// done. Reload failures are logged and the previous generation keeps
// serving.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer func() { _ = w.Close() }()

	// CURRENT is replaced by rename, so watch its directory
	if err := w.Add(s.store.Dir()); err != nil {
		return errors.Wrapf(err, "failed to watch %s", s.store.Dir())
	}
	s.logger.Info("Watching artifacts", log.PathKey, s.store.Dir())

	// catch up with commits made before the watch was registered
	s.reloadLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != artifact.CurrentFile {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				s.reloadLogged(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (s *Service) reloadLogged(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		if errors.Is(err, errors.ErrArtifactMissing) && s.current.Load() == nil {
			s.logger.Debug("No generation committed yet", "error", err)
			return
		}
		s.logger.Error("Reload failed", err)
	}
}

func decode(label int) (Prediction, error) {
	name, err := schema.LabelName(label)
	if err != nil {
		return Prediction{}, err
	}
	display, err := schema.LabelDisplay(label)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: label, Name: name, Display: display}, nil
}

// String implements fmt.Stringer.
func (p Prediction) String() string {
	return fmt.Sprintf("%d (%s)", p.Label, p.Display)
}
