package training

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/pkg/config"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/preprocessing"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/model_selection"
	"github.com/ezoic/pricerange/sklearn/neural_network"
)

// Import publishes a classifier and scaler trained in scikit-learn. The
// labeled table is standardized with the imported scaler and split the same
// way Run splits it, so the committed X_train matches what the explainer
// expects and the reported accuracy is measured on the held-out rows.
func Import(ctx context.Context, cfg config.Training, store *artifact.Store, modelJSON, scalerJSON io.Reader, opts ...Option) (_ *Report, err error) {
	defer errors.Recover(&err, "training.Import")

	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.getLogger()
	start := time.Now()

	clf, err := neural_network.ImportSKLearn(modelJSON)
	if err != nil {
		return nil, errors.Wrap(err, "import classifier")
	}
	scaler, err := preprocessing.ImportSKLearn(scalerJSON)
	if err != nil {
		return nil, errors.Wrap(err, "import scaler")
	}
	if clf.NFeatures() != schema.NumFeatures {
		return nil, errors.NewDimensionError("training.Import", schema.NumFeatures, clf.NFeatures(), 1)
	}
	if scaler.NFeatures != schema.NumFeatures {
		return nil, errors.NewDimensionError("training.Import", schema.NumFeatures, scaler.NFeatures, 1)
	}
	if classes := clf.Classes(); !slices.Equal(classes, schema.Labels()) {
		for _, k := range classes {
			if !schema.IsLabel(k) {
				return nil, errors.NewUnknownLabelError(k)
			}
		}
		return nil, errors.NewValueError("training.Import",
			fmt.Sprintf("model classes %v, want %v", classes, schema.Labels()))
	}

	tbl, err := o.load(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	Z, err := scaler.Transform(tbl.X)
	if err != nil {
		return nil, err
	}
	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(Z, tbl.Y, cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, err
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

	report := &Report{
		Accuracy:        acc,
		TrainSamples:    len(yTrain),
		TestSamples:     len(yTest),
		NIter:           clf.NIter(),
		Converged:       clf.Converged,
		Generation:      id,
		ConfusionMatrix: cm,
		BelowTarget:     acc < cfg.MinAccuracy,
		Duration:        time.Since(start),
	}
	logger.Info("Imported scikit-learn model",
		log.AccuracyKey, acc,
		log.GenerationKey, id,
		log.DurationMsKey, report.Duration.Milliseconds(),
	)
	return report, nil
}
