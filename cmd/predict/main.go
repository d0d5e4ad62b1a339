// Command predict classifies one phone with the current artifact generation
// and optionally explains the model with permutation importance.
//
//	predict -artifacts artifacts/ -sample "1500,1,2.0,0,8,1,64,0.8,180,4,12,1080,1920,4000,15,7,10,1,1,1" -explain
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ezoic/pricerange/artifact"
	"github.com/ezoic/pricerange/inference"
	"github.com/ezoic/pricerange/pkg/config"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
	"github.com/ezoic/pricerange/schema"
	"github.com/ezoic/pricerange/sklearn/inspection"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dir := flag.String("artifacts", "", "artifact directory (overrides artifacts.dir)")
	sampleFlag := flag.String("sample", "", "20 comma-separated feature values in canonical order; defaults to the form defaults")
	explain := flag.Bool("explain", false, "print permutation feature importance")
	plotPath := flag.String("plot", "", "write the importance chart to this file (.png, .svg, .pdf)")
	repeats := flag.Int("repeats", 0, "permutation repeats (overrides explain.n_repeats)")
	stdin := flag.Bool("stdin", false, "read one sample per line from standard input until EOF")
	watch := flag.Bool("watch", false, "with -stdin, reload when a new generation is committed (overrides serving.watch)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "predict: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *dir != "" {
		cfg.Artifacts.Dir = *dir
	}
	if *repeats > 0 {
		cfg.Explain.NRepeats = *repeats
	}
	if *watch {
		cfg.Serving.Watch = true
	}
	if *configPath == "" {
		cfg.Log.Level = "warn"
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log.Setup(cfg.Log.Options())

	sample := schema.DefaultSample()
	if *sampleFlag != "" {
		var err error
		if sample, err = parseSample(*sampleFlag); err != nil {
			fmt.Fprintf(os.Stderr, "predict: %v\n", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *stdin {
		err = serve(ctx, cfg)
	} else {
		err = run(ctx, cfg, sample, *explain || *plotPath != "", *plotPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func parseSample(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i+1)
		}
		out[i] = v
	}
	return out, nil
}

func newService(cfg *config.Config) (*inference.Service, error) {
	store, err := artifact.Open(cfg.Artifacts.Dir)
	if err != nil {
		return nil, err
	}
	return inference.New(store,
		inference.WithCacheSize(cfg.Serving.CacheSize),
		inference.WithExplainOptions(
			inspection.WithNRepeats(cfg.Explain.NRepeats),
			inspection.WithRandomState(cfg.Explain.Seed),
			inspection.WithWorkers(cfg.Explain.Workers),
		),
	), nil
}

func run(ctx context.Context, cfg *config.Config, sample []float64, explain bool, plotPath string) error {
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Load(ctx); err != nil {
		return err
	}

	if out := schema.CheckDomains(sample); len(out) > 0 {
		fmt.Printf("note: outside the usual range: %s\n", strings.Join(out, ", "))
	}
	p, err := svc.Predict(sample)
	if err != nil {
		return err
	}
	fmt.Printf("Predicted price range: %s\n", p)

	if !explain {
		return nil
	}
	res, err := svc.Explain(ctx)
	if err != nil {
		return err
	}
	names := schema.FeatureOrder()
	fmt.Printf("\nPermutation importance (baseline accuracy %.4f):\n", res.BaselineScore)
	for rank, fi := range res.Ranked(names) {
		fmt.Printf("%2d. %-14s %8.4f ± %.4f\n", rank+1, fi.Name, fi.Mean, fi.Std)
	}

	if plotPath != "" {
		if err := inspection.PlotImportances(res, names, plotPath); err != nil {
			return err
		}
		fmt.Printf("\nChart written to %s\n", plotPath)
	}
	return nil
}

// serve answers one prediction per input line. Malformed lines are reported
// and skipped.
func serve(ctx context.Context, cfg *config.Config) error {
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Load(ctx); err != nil {
		return err
	}
	if cfg.Serving.Watch {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				log.LogError(err, "artifact watch stopped")
			}
		}()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sample, err := parseSample(line)
		if err == nil {
			var p inference.Prediction
			if p, err = svc.Predict(sample); err == nil {
				fmt.Printf("%d\t%s\t%s\n", p.Label, p.Name, svc.Generation())
				continue
			}
		}
		fmt.Printf("error\t%v\n", err)
	}
	return errors.Wrap(scanner.Err(), "read stdin")
}
