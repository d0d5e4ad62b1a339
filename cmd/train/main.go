// Command train fits the price-range classifier on a labeled CSV table and
// commits the model, scaler and training split as a new artifact generation.
//
//	train -data dataset.csv -out artifacts/
//
// With -import-model and -import-scaler the network is not trained; the
// scikit-learn JSON exports are evaluated on the table and published instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/pkg/config"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/training"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dataPath := flag.String("data", "", "labeled CSV table (overrides training.dataset)")
	outDir := flag.String("out", "", "artifact directory (overrides artifacts.dir)")
	importModel := flag.String("import-model", "", "scikit-learn MLPClassifier JSON export to publish instead of training")
	importScaler := flag.String("import-scaler", "", "scikit-learn StandardScaler JSON export, required with -import-model")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "train: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *dataPath != "" {
		cfg.Training.Dataset = *dataPath
	}
	if *outDir != "" {
		cfg.Artifacts.Dir = *outDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if cfg.Training.Dataset == "" {
		fmt.Fprintln(os.Stderr, "train: -data is required")
		flag.Usage()
		os.Exit(2)
	}
	if (*importModel == "") != (*importScaler == "") {
		fmt.Fprintln(os.Stderr, "train: -import-model and -import-scaler must be given together")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(2)
	}
	log.Setup(cfg.Log.Options())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *importModel, *importScaler); err != nil {
		log.LogError(err, "training failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, importModel, importScaler string) error {
	store, err := artifact.Open(cfg.Artifacts.Dir, artifact.WithKeep(cfg.Artifacts.Keep))
	if err != nil {
		return err
	}

	var report *training.Report
	if importModel != "" {
		report, err = importExports(ctx, cfg, store, importModel, importScaler)
	} else {
		report, err = training.Run(ctx, cfg.Training, store)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Accuracy: %.4f\n", report.Accuracy)
	fmt.Printf("Train samples: %d, test samples: %d, iterations: %d (converged: %t)\n",
		report.TrainSamples, report.TestSamples, report.NIter, report.Converged)
	fmt.Printf("Confusion matrix (rows: true, columns: predicted):\n%v\n",
		mat.Formatted(report.ConfusionMatrix))
	fmt.Printf("Generation %s committed to %s\n", report.Generation, store.Dir())
	if report.BelowTarget {
		fmt.Printf("warning: accuracy is below the target of %.2f\n", cfg.Training.MinAccuracy)
	}
	return nil
}

func importExports(ctx context.Context, cfg *config.Config, store *artifact.Store, modelPath, scalerPath string) (*training.Report, error) {
	mf, err := os.Open(modelPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mf.Close() }()
	sf, err := os.Open(scalerPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sf.Close() }()
	return training.Import(ctx, cfg.Training, store, mf, sf)
}
