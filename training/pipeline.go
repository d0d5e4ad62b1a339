// Package training fits the scaler and the classifier on a labeled table,
// measures held-out accuracy and publishes the artifacts as one generation.
package training

import (
	"context"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/dataset"
	"github.com/ezoic/pricerange/metrics"
	"github.com/ezoic/pricerange/pkg/config"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/preprocessing"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/model_selection"
	"github.com/ezoic/pricerange/sklearn/neural_network"
)

// Report summarizes a training run.
type Report struct {
	Accuracy     float64
	TrainSamples int
	TestSamples  int
	NIter        int
	Converged    bool
	// Generation is the id of the committed artifact generation.
	Generation string
	// ConfusionMatrix is 4×4, rows are true labels and columns predictions.
	ConfusionMatrix *mat.Dense
	// BelowTarget is set when Accuracy is under the configured minimum.
	BelowTarget bool
	Duration    time.Duration
}

type runOptions struct {
	table   *dataset.Table
	logger  log.Logger
	mlpOpts []neural_network.Option
}

// Option configures Run.
type Option func(*runOptions)

// WithTable trains on t instead of reading cfg.Dataset.
func WithTable(t *dataset.Table) Option {
	return func(o *runOptions) { o.table = t }
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithClassifierOptions appends options applied after the configured
// hyperparameters.
func WithClassifierOptions(opts ...neural_network.Option) Option {
	return func(o *runOptions) { o.mlpOpts = append(o.mlpOpts, opts...) }
}

// Run executes the pipeline:
//
//  1. read the table
//  2. fit the scaler on every row and standardize
//  3. split 80/20 with the configured seed
//  4. fit the classifier on the train split
//  5. score accuracy on the test split
//  6. stage model, scaler, X_train and y_train and commit them
//
// Nothing is committed unless every step succeeds, so a failed run leaves
// the previous generation current.
func Run(ctx context.Context, cfg config.Training, store *artifact.Store, opts ...Option) (_ *Report, err error) {
	defer errors.Recover(&err, "training.Run")

	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.getLogger()
	start := time.Now()

	tbl, err := o.load(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	n, f := tbl.X.Dims()
	logger.Info("Dataset loaded", log.SamplesKey, n, log.FeaturesKey, f, log.PathKey, cfg.Dataset)

	scaler := preprocessing.NewStandardScaler()
	Z, err := scaler.FitTransform(tbl.X)
	if err != nil {
		return nil, errors.NewModelError("training.Run", "fit scaler", err)
	}

	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(Z, tbl.Y, cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, err
	}

	mlpOpts := []neural_network.Option{
		neural_network.WithHiddenLayerSizes(cfg.HiddenLayerSizes...),
		neural_network.WithMaxIter(cfg.MaxIter),
		neural_network.WithRandomState(cfg.Seed),
		neural_network.WithClasses(schema.Labels()...),
	}
	clf := neural_network.NewMLPClassifier(append(mlpOpts, o.mlpOpts...)...)
	if err := clf.FitContext(ctx, XTrain, yTrain); err != nil {
		return nil, errors.NewModelError("training.Run", "fit classifier", err)
	}

	acc, cm, err := evaluate(clf, XTest, yTest)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := publish(store, clf, scaler, XTrain, yTrain, acc)
	if err != nil {
		return nil, err
	}

	trainN, _ := XTrain.Dims()
	report := &Report{
		Accuracy:        acc,
		TrainSamples:    trainN,
		TestSamples:     len(yTest),
		NIter:           clf.NIter(),
		Converged:       clf.Converged,
		Generation:      id,
		ConfusionMatrix: cm,
		BelowTarget:     acc < cfg.MinAccuracy,
		Duration:        time.Since(start),
	}

	if report.BelowTarget {
		logger.Warn("Accuracy below target",
			log.AccuracyKey, acc,
			"min_accuracy", cfg.MinAccuracy,
			log.GenerationKey, id,
		)
	}
	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.AccuracyKey, acc,
		log.GenerationKey, id,
		"train_samples", report.TrainSamples,
		"test_samples", report.TestSamples,
		"iterations", report.NIter,
		log.DurationMsKey, report.Duration.Milliseconds(),
	)
	return report, nil
}

func (o *runOptions) load(path string) (*dataset.Table, error) {
	tbl := o.table
	if tbl == nil {
		var err error
		if tbl, err = dataset.ReadCSV(path); err != nil {
			return nil, err
		}
	}
	n, f := tbl.X.Dims()
	if n == 0 || tbl.Len() == 0 {
		return nil, errors.NewDataError(errors.ErrEmptyDataset, 0, "", "no data rows")
	}
	if f != schema.NumFeatures {
		return nil, errors.NewDimensionError("training.load", schema.NumFeatures, f, 1)
	}
	for i, k := range tbl.Y {
		if !schema.IsLabel(k) {
			return nil, errors.NewDataError(errors.ErrBadLabel, i+1, schema.LabelColumn,
				"label "+strconv.Itoa(k)+" is not a price range")
		}
	}
	return tbl, nil
}

func (o *runOptions) getLogger() log.Logger {
	if o.logger == nil {
		return log.GetLoggerWithName("training")
	}
	return o.logger
}

// evaluate returns the held-out accuracy and the confusion matrix over the
// four price ranges.
func evaluate(clf *neural_network.MLPClassifier, XTest *mat.Dense, yTest []int) (float64, *mat.Dense, error) {
	pred, err := clf.Predict(XTest)
	if err != nil {
		return 0, nil, err
	}
	acc, err := metrics.AccuracyScore(yTest, pred)
	if err != nil {
		return 0, nil, err
	}
	cm, err := metrics.ConfusionMatrix(yTest, pred, schema.Labels())
	if err != nil {
		return 0, nil, err
	}
	return acc, cm, nil
}

// publish stages the four artifacts and commits them, aborting on any
// failure.
func publish(store *artifact.Store, clf *neural_network.MLPClassifier, scaler *preprocessing.StandardScaler,
	XTrain *mat.Dense, yTrain []int, acc float64) (id string, err error) {
	gen, err := store.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = gen.Abort()
		}
	}()

	for _, a := range []struct {
		name string
		obj  interface{}
	}{
		{artifact.Model, clf},
		{artifact.Scaler, scaler},
		{artifact.XTrain, XTrain},
		{artifact.YTrain, yTrain},
	} {
		if err := gen.Save(a.name, a.obj); err != nil {
			return "", err
		}
	}
	gen.SetMetadata("accuracy", strconv.FormatFloat(acc, 'f', 4, 64))
	gen.SetMetadata("train_samples", strconv.Itoa(len(yTrain)))
	gen.SetMetadata("model", clf.String())
	return gen.Commit()
}
