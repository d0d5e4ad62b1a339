// Package inspection explains a fitted classifier by permutation feature
// importance: the drop in accuracy when one feature column is shuffled,
// breaking its relation to the target.
package inspection

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/metrics"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
)

const (
	defaultNRepeats    = 10
	defaultRandomState = 42
)

// Result holds the importance of every feature column.
type Result struct {
	// ImportancesMean is the mean accuracy drop per feature.
	ImportancesMean []float64
	// ImportancesStd is the population standard deviation of the drops.
	ImportancesStd []float64
	// Importances holds the raw drops, n_features × n_repeats.
	Importances [][]float64
	// BaselineScore is the accuracy on the unpermuted data.
	BaselineScore float64
}

// FeatureImportance is one row of a ranked Result.
type FeatureImportance struct {
	Index int
	Name  string
	Mean  float64
	Std   float64
}

type options struct {
	nRepeats    int
	randomState uint64
	workers     int
	logger      log.Logger
}

// Option configures PermutationImportance.
type Option func(*options)

// WithNRepeats sets how many times each feature is shuffled.
func WithNRepeats(n int) Option {
	return func(o *options) { o.nRepeats = n }
}

// WithRandomState sets the seed of the shuffles.
func WithRandomState(seed uint64) Option {
	return func(o *options) { o.randomState = seed }
}

// WithWorkers bounds the number of features evaluated concurrently.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// PermutationImportance scores every feature of X by how much the accuracy
// of m on (X, y) drops when that column is permuted.
//
// Each feature draws its shuffles from its own generator seeded with
// (random state, feature index), so the result does not depend on the
// number of workers. m must be safe for concurrent Predict calls.
func PermutationImportance(ctx context.Context, m model.Predictor, X mat.Matrix, y []int, opts ...Option) (_ *Result, err error) {
	defer errors.Recover(&err, "PermutationImportance")

	o := options{
		nRepeats:    defaultNRepeats,
		randomState: defaultRandomState,
		workers:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("inspection")
	}
	if o.nRepeats <= 0 {
		return nil, errors.NewValidationError("n_repeats", "must be positive", o.nRepeats)
	}
	if o.workers <= 0 {
		o.workers = 1
	}

	n, f := X.Dims()
	if n == 0 || f == 0 {
		return nil, errors.NewDataError(errors.ErrEmptyDataset, 0, "", "PermutationImportance: empty data")
	}
	if len(y) != n {
		return nil, errors.NewDimensionError("PermutationImportance", n, len(y), 0)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	base := mat.DenseCopyOf(X)
	baseline, err := score(m, base, y)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ImportancesMean: make([]float64, f),
		ImportancesStd:  make([]float64, f),
		Importances:     make([][]float64, f),
		BaselineScore:   baseline,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := 0; i < f; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer errors.Recover(&err, "PermutationImportance")
			drops, err := featureDrops(gctx, m, base, y, i, baseline, o)
			if err != nil {
				return err
			}
			res.Importances[i] = drops
			res.ImportancesMean[i], res.ImportancesStd[i] = stat.PopMeanStdDev(drops, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.logger.Info("Permutation importance computed",
		log.OperationKey, log.OperationExplain,
		log.PhaseKey, log.PhaseExplain,
		log.SamplesKey, n,
		log.FeaturesKey, f,
		"n_repeats", o.nRepeats,
		"baseline", baseline,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// featureDrops shuffles column i of a private copy of X nRepeats times.
func featureDrops(ctx context.Context, m model.Predictor, X *mat.Dense, y []int, i int, baseline float64, o options) ([]float64, error) {
	n, _ := X.Dims()
	work := mat.DenseCopyOf(X)
	orig := mat.Col(nil, i, X)
	col := make([]float64, n)
	rng := rand.New(rand.NewPCG(o.randomState, uint64(i)))

	drops := make([]float64, o.nRepeats)
	for r := 0; r < o.nRepeats; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(col, orig)
		rng.Shuffle(n, func(a, b int) { col[a], col[b] = col[b], col[a] })
		work.SetCol(i, col)

		s, err := score(m, work, y)
		if err != nil {
			return nil, err
		}
		drops[r] = baseline - s
	}
	return drops, nil
}

func score(m model.Predictor, X mat.Matrix, y []int) (float64, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(y, pred)
}

// Ranking returns feature indices ordered by descending mean importance.
// Equal importances keep ascending index order.
func (r *Result) Ranking() []int {
	idx := make([]int, len(r.ImportancesMean))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return r.ImportancesMean[idx[a]] > r.ImportancesMean[idx[b]]
	})
	return idx
}

// Ranked pairs the ranking with feature names. names may be nil.
func (r *Result) Ranked(names []string) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(r.ImportancesMean))
	for _, i := range r.Ranking() {
		fi := FeatureImportance{Index: i, Mean: r.ImportancesMean[i], Std: r.ImportancesStd[i]}
		if i < len(names) {
			fi.Name = names[i]
		}
		out = append(out, fi)
	}
	return out
}

// SortedAscending is Ranked in reverse, the bottom-to-top order of a
// horizontal bar chart.
func (r *Result) SortedAscending(names []string) []FeatureImportance {
	out := r.Ranked(names)
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}
