// Package neural_network implements a multi-layer perceptron classifier
// compatible with scikit-learn's MLPClassifier defaults: ReLU hidden units,
// a softmax output trained with cross-entropy, the Adam solver, L2 penalty
// and Glorot-uniform initialization.
//
// Training is deterministic for a given random state and input: the same
// seed produces bit-identical weights and predictions across runs.
//
//	clf := neural_network.NewMLPClassifier(
//		neural_network.WithHiddenLayerSizes(64, 64),
//		neural_network.WithMaxIter(500),
//		neural_network.WithRandomState(42),
//	)
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//		log.Fatal(err)
//	}
//	labels, err := clf.Predict(XTest)
package neural_network

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/core/model"
	"github.com/ezoic/pricerange/metrics"
	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
)

const (
	defaultBatchSize = 200
	// probClip keeps log() finite in the cross-entropy loss.
	probClip = 2.220446049250313e-16
)

// Params holds the hyperparameters. Exported for gob encoding.
type Params struct {
	HiddenLayerSizes []int
	Alpha            float64 // L2 penalty
	BatchSize        int     // 0 means min(200, n_samples)
	LearningRateInit float64
	Beta1            float64
	Beta2            float64
	Epsilon          float64
	MaxIter          int
	Tol              float64
	NIterNoChange    int
	Shuffle          bool
	RandomState      uint64
	// Classes fixes the output support. Empty means the sorted unique labels
	// of the training targets.
	Classes []int
}

// Layer is one fully connected layer. Weights is FanIn×FanOut in row-major
// order.
type Layer struct {
	FanIn   int
	FanOut  int
	Weights []float64
	Bias    []float64
}

func (l *Layer) weights() *mat.Dense {
	return mat.NewDense(l.FanIn, l.FanOut, l.Weights)
}

// MLPClassifier is a feed-forward neural network classifier.
type MLPClassifier struct {
	State  *model.StateManager
	Params Params

	// Learned parameters
	Layers      []Layer
	ClassLabels []int
	Iterations  int
	LossHistory []float64
	BestLoss    float64
	Converged   bool

	logger log.Logger
	mu     sync.RWMutex
}

// Option configures an MLPClassifier.
type Option func(*MLPClassifier)

// NewMLPClassifier creates an unfitted classifier with scikit-learn's
// defaults: hidden_layer_sizes=(100,), alpha=1e-4, learning_rate_init=1e-3,
// max_iter=200, tol=1e-4, n_iter_no_change=10.
func NewMLPClassifier(opts ...Option) *MLPClassifier {
	m := &MLPClassifier{
		State: model.NewStateManager(),
		Params: Params{
			HiddenLayerSizes: []int{100},
			Alpha:            1e-4,
			LearningRateInit: 1e-3,
			Beta1:            0.9,
			Beta2:            0.999,
			Epsilon:          1e-8,
			MaxIter:          200,
			Tol:              1e-4,
			NIterNoChange:    10,
			Shuffle:          true,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.GetLoggerWithName("neural_network").With(
		log.ModelNameKey, "MLPClassifier",
		log.ComponentKey, "neural_network",
	)
	return m
}

// WithHiddenLayerSizes sets the width of each hidden layer.
func WithHiddenLayerSizes(sizes ...int) Option {
	return func(m *MLPClassifier) {
		m.Params.HiddenLayerSizes = append([]int(nil), sizes...)
	}
}

// WithMaxIter sets the maximum number of epochs.
func WithMaxIter(n int) Option {
	return func(m *MLPClassifier) { m.Params.MaxIter = n }
}

// WithRandomState sets the seed used for initialization and shuffling.
func WithRandomState(seed uint64) Option {
	return func(m *MLPClassifier) { m.Params.RandomState = seed }
}

// WithAlpha sets the L2 penalty.
func WithAlpha(alpha float64) Option {
	return func(m *MLPClassifier) { m.Params.Alpha = alpha }
}

// WithLearningRateInit sets Adam's step size.
func WithLearningRateInit(lr float64) Option {
	return func(m *MLPClassifier) { m.Params.LearningRateInit = lr }
}

// WithBatchSize sets the minibatch size.
func WithBatchSize(n int) Option {
	return func(m *MLPClassifier) { m.Params.BatchSize = n }
}

// WithTol sets the loss improvement tolerance.
func WithTol(tol float64) Option {
	return func(m *MLPClassifier) { m.Params.Tol = tol }
}

// WithNIterNoChange sets the patience of the stopping rule.
func WithNIterNoChange(n int) Option {
	return func(m *MLPClassifier) { m.Params.NIterNoChange = n }
}

// WithShuffle sets whether samples are shuffled every epoch.
func WithShuffle(shuffle bool) Option {
	return func(m *MLPClassifier) { m.Params.Shuffle = shuffle }
}

// WithClasses fixes the output classes regardless of which labels occur in
// the training targets.
func WithClasses(classes ...int) Option {
	return func(m *MLPClassifier) {
		c := append([]int(nil), classes...)
		sort.Ints(c)
		m.Params.Classes = c
	}
}

// IsFitted reports whether Fit has completed.
func (m *MLPClassifier) IsFitted() bool {
	return m.State != nil && m.State.IsFitted()
}

// Classes returns the class labels in output order.
func (m *MLPClassifier) Classes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.ClassLabels...)
}

// NIter returns the number of epochs run by the last Fit.
func (m *MLPClassifier) NIter() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Iterations
}

// LossCurve returns the mean training loss of every epoch.
func (m *MLPClassifier) LossCurve() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.LossHistory...)
}

// SetLogger replaces the logger, e.g. after the model was decoded from an
// artifact.
func (m *MLPClassifier) SetLogger(l log.Logger) {
	m.logger = l
}

// NFeatures returns the input dimension seen by Fit.
func (m *MLPClassifier) NFeatures() int {
	if m.State == nil {
		return 0
	}
	n, _ := m.State.GetDimensions()
	return n
}

func (m *MLPClassifier) validateParams() error {
	p := m.Params
	if len(p.HiddenLayerSizes) == 0 {
		return errors.NewValidationError("hidden_layer_sizes", "at least one hidden layer is required", p.HiddenLayerSizes)
	}
	for _, h := range p.HiddenLayerSizes {
		if h <= 0 {
			return errors.NewValidationError("hidden_layer_sizes", "layer sizes must be positive", p.HiddenLayerSizes)
		}
	}
	if p.MaxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", p.MaxIter)
	}
	if p.LearningRateInit <= 0 {
		return errors.NewValidationError("learning_rate_init", "must be positive", p.LearningRateInit)
	}
	if p.Alpha < 0 {
		return errors.NewValidationError("alpha", "must not be negative", p.Alpha)
	}
	if p.BatchSize < 0 {
		return errors.NewValidationError("batch_size", "must not be negative", p.BatchSize)
	}
	return nil
}

// Fit trains the network on X (n_samples×n_features) and integer labels y.
func (m *MLPClassifier) Fit(X mat.Matrix, y []int) error {
	return m.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation checked between epochs.
func (m *MLPClassifier) FitContext(ctx context.Context, X mat.Matrix, y []int) (err error) {
	defer errors.Recover(&err, "MLPClassifier.Fit")

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateParams(); err != nil {
		return err
	}
	n, f := X.Dims()
	if n == 0 || f == 0 {
		return errors.NewDataError(errors.ErrEmptyDataset, 0, "", "MLPClassifier.Fit: empty data")
	}
	if len(y) != n {
		return errors.NewDimensionError("MLPClassifier.Fit", n, len(y), 0)
	}

	classes, classIdx, err := m.resolveClasses(y)
	if err != nil {
		return err
	}
	if len(classes) < 2 {
		return errors.NewValueError("MLPClassifier.Fit", "at least two classes are required")
	}

	start := time.Now()
	if m.logger != nil {
		m.logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.SamplesKey, n,
			log.FeaturesKey, f,
			"classes", len(classes),
			"hidden_layer_sizes", m.Params.HiddenLayerSizes,
		)
	}

	m.State.Reset()
	rng := rand.New(rand.NewPCG(m.Params.RandomState, m.Params.RandomState))
	m.Layers = initLayers(rng, f, m.Params.HiddenLayerSizes, len(classes))
	m.ClassLabels = classes
	m.LossHistory = m.LossHistory[:0]
	m.Iterations = 0
	m.BestLoss = math.Inf(1)
	m.Converged = false

	xd := mat.DenseCopyOf(X)
	target := oneHot(classIdx, len(classes))

	batchSize := m.Params.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > n {
		batchSize = n
	}

	opt := newAdam(m.Layers, m.Params)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	noImprovement := 0
	for epoch := 0; epoch < m.Params.MaxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Params.Shuffle {
			rng.Shuffle(n, func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}

		accumulated := 0.0
		for lo := 0; lo < n; lo += batchSize {
			hi := lo + batchSize
			if hi > n {
				hi = n
			}
			xb, yb := gatherBatch(xd, target, indices[lo:hi])
			loss, wGrads, bGrads := m.backprop(xb, yb)
			accumulated += loss * float64(hi-lo)
			opt.step(m.Layers, wGrads, bGrads)
		}

		m.Iterations++
		epochLoss := accumulated / float64(n)
		if err := errors.CheckScalar("loss", epochLoss, m.Iterations); err != nil {
			return errors.Wrap(err, "MLPClassifier.Fit")
		}
		m.LossHistory = append(m.LossHistory, epochLoss)

		if epochLoss > m.BestLoss-m.Params.Tol {
			noImprovement++
		} else {
			noImprovement = 0
		}
		if epochLoss < m.BestLoss {
			m.BestLoss = epochLoss
		}

		if m.logger != nil && m.Iterations%50 == 0 {
			m.logger.Debug("Epoch completed",
				"iteration", m.Iterations,
				"loss", epochLoss,
			)
		}

		if noImprovement > m.Params.NIterNoChange {
			m.Converged = true
			break
		}
	}

	if !m.Converged {
		errors.Warn(errors.NewConvergenceWarning("MLPClassifier", m.Iterations,
			"Stochastic Optimizer: Maximum iterations reached and the optimization hasn't converged yet"))
	}

	m.State.SetDimensions(f, n)
	m.State.SetFitted()

	if m.logger != nil {
		m.logger.Info("Training completed",
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, time.Since(start).Milliseconds(),
			"iterations", m.Iterations,
			"loss", m.LossHistory[len(m.LossHistory)-1],
			"converged", m.Converged,
		)
	}
	return nil
}

// resolveClasses maps y onto output indices.
func (m *MLPClassifier) resolveClasses(y []int) ([]int, []int, error) {
	var classes []int
	if len(m.Params.Classes) > 0 {
		classes = append([]int(nil), m.Params.Classes...)
	} else {
		seen := make(map[int]struct{})
		for _, v := range y {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				classes = append(classes, v)
			}
		}
		sort.Ints(classes)
	}

	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	idx := make([]int, len(y))
	for i, v := range y {
		p, ok := pos[v]
		if !ok {
			return nil, nil, errors.NewDataError(errors.ErrBadLabel, i+1, "",
				fmt.Sprintf("label %d is not one of %v", v, classes))
		}
		idx[i] = p
	}
	return classes, idx, nil
}

// initLayers draws Glorot-uniform weights and biases.
func initLayers(rng *rand.Rand, nFeatures int, hidden []int, nOutputs int) []Layer {
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, nFeatures)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, nOutputs)

	layers := make([]Layer, len(sizes)-1)
	for l := range layers {
		fanIn, fanOut := sizes[l], sizes[l+1]
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		w := make([]float64, fanIn*fanOut)
		for i := range w {
			w[i] = (rng.Float64()*2 - 1) * bound
		}
		b := make([]float64, fanOut)
		for i := range b {
			b[i] = (rng.Float64()*2 - 1) * bound
		}
		layers[l] = Layer{FanIn: fanIn, FanOut: fanOut, Weights: w, Bias: b}
	}
	return layers
}

func oneHot(idx []int, k int) *mat.Dense {
	out := mat.NewDense(len(idx), k, nil)
	for i, c := range idx {
		out.Set(i, c, 1)
	}
	return out
}

func gatherBatch(x, y *mat.Dense, rows []int) (*mat.Dense, *mat.Dense) {
	_, f := x.Dims()
	_, k := y.Dims()
	xb := mat.NewDense(len(rows), f, nil)
	yb := mat.NewDense(len(rows), k, nil)
	for r, idx := range rows {
		copy(xb.RawRowView(r), x.RawRowView(idx))
		copy(yb.RawRowView(r), y.RawRowView(idx))
	}
	return xb, yb
}

// forward returns the activations of every layer; acts[0] is the input.
func forward(layers []Layer, x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(layers)+1)
	acts[0] = x
	n, _ := x.Dims()
	for l := range layers {
		layer := &layers[l]
		z := mat.NewDense(n, layer.FanOut, nil)
		z.Mul(acts[l], layer.weights())
		for i := 0; i < n; i++ {
			row := z.RawRowView(i)
			for j := range row {
				row[j] += layer.Bias[j]
			}
			if l == len(layers)-1 {
				softmax(row)
			} else {
				relu(row)
			}
		}
		acts[l+1] = z
	}
	return acts
}

func relu(row []float64) {
	for j, v := range row {
		if v < 0 {
			row[j] = 0
		}
	}
}

func softmax(row []float64) {
	hi := row[0]
	for _, v := range row[1:] {
		if v > hi {
			hi = v
		}
	}
	sum := 0.0
	for j, v := range row {
		e := math.Exp(v - hi)
		row[j] = e
		sum += e
	}
	for j := range row {
		row[j] /= sum
	}
}

// backprop computes the penalized cross-entropy of one batch and the
// gradients of every layer.
func (m *MLPClassifier) backprop(xb, yb *mat.Dense) (float64, []*mat.Dense, [][]float64) {
	n, _ := xb.Dims()
	nf := float64(n)
	acts := forward(m.Layers, xb)
	out := acts[len(acts)-1]

	loss := 0.0
	_, k := out.Dims()
	for i := 0; i < n; i++ {
		p := out.RawRowView(i)
		t := yb.RawRowView(i)
		for j := 0; j < k; j++ {
			if t[j] != 0 {
				loss -= t[j] * math.Log(math.Min(math.Max(p[j], probClip), 1-probClip))
			}
		}
	}
	loss /= nf

	sumSq := 0.0
	for l := range m.Layers {
		for _, w := range m.Layers[l].Weights {
			sumSq += w * w
		}
	}
	loss += 0.5 * m.Params.Alpha * sumSq / nf

	wGrads := make([]*mat.Dense, len(m.Layers))
	bGrads := make([][]float64, len(m.Layers))

	// softmax + cross-entropy: dL/dz = p - y
	delta := mat.NewDense(n, k, nil)
	delta.Sub(out, yb)

	for l := len(m.Layers) - 1; l >= 0; l-- {
		layer := &m.Layers[l]
		w := layer.weights()

		gw := mat.NewDense(layer.FanIn, layer.FanOut, nil)
		gw.Mul(acts[l].T(), delta)
		gw.Add(gw, scaled(m.Params.Alpha, w))
		gw.Scale(1/nf, gw)
		wGrads[l] = gw

		gb := make([]float64, layer.FanOut)
		for i := 0; i < n; i++ {
			for j, d := range delta.RawRowView(i) {
				gb[j] += d
			}
		}
		for j := range gb {
			gb[j] /= nf
		}
		bGrads[l] = gb

		if l == 0 {
			break
		}
		prev := mat.NewDense(n, layer.FanIn, nil)
		prev.Mul(delta, w.T())
		for i := 0; i < n; i++ {
			a := acts[l].RawRowView(i)
			d := prev.RawRowView(i)
			for j := range d {
				if a[j] == 0 {
					d[j] = 0
				}
			}
		}
		delta = prev
	}
	return loss, wGrads, bGrads
}

func scaled(f float64, a mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}

// checkInput validates X against the fitted input dimension.
func (m *MLPClassifier) checkInput(op string, X mat.Matrix) (*mat.Dense, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MLPClassifier", op)
	}
	_, c := X.Dims()
	if want := m.NFeatures(); c != want {
		return nil, errors.NewDimensionError("MLPClassifier."+op, want, c, 1)
	}
	return mat.DenseCopyOf(X), nil
}

// PredictProba returns the class probabilities, one column per class in
// Classes order.
func (m *MLPClassifier) PredictProba(X mat.Matrix) (_ *mat.Dense, err error) {
	defer errors.Recover(&err, "MLPClassifier.PredictProba")
	m.mu.RLock()
	defer m.mu.RUnlock()

	xd, err := m.checkInput("PredictProba", X)
	if err != nil {
		return nil, err
	}
	acts := forward(m.Layers, xd)
	return acts[len(acts)-1], nil
}

// Predict returns the most probable class of every row. Ties resolve to the
// lowest class index.
func (m *MLPClassifier) Predict(X mat.Matrix) (_ []int, err error) {
	defer errors.Recover(&err, "MLPClassifier.Predict")
	m.mu.RLock()
	defer m.mu.RUnlock()

	xd, err := m.checkInput("Predict", X)
	if err != nil {
		return nil, err
	}
	n, _ := xd.Dims()
	if m.logger != nil {
		m.logger.Debug("Prediction started",
			log.OperationKey, log.OperationPredict,
			log.PhaseKey, log.PhaseInference,
			log.SamplesKey, n,
		)
	}

	acts := forward(m.Layers, xd)
	proba := acts[len(acts)-1]
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		row := proba.RawRowView(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		labels[i] = m.ClassLabels[best]
	}
	return labels, nil
}

// PredictOne predicts the label of a single already-scaled sample.
func (m *MLPClassifier) PredictOne(x []float64) (int, error) {
	if len(x) == 0 {
		return 0, errors.NewDimensionError("MLPClassifier.PredictOne", m.NFeatures(), 0, 1)
	}
	labels, err := m.Predict(mat.NewDense(1, len(x), append([]float64(nil), x...)))
	if err != nil {
		return 0, err
	}
	return labels[0], nil
}

// Score returns the accuracy on (X, y).
func (m *MLPClassifier) Score(X mat.Matrix, y []int) (float64, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(y, pred)
}

// String returns a short description.
func (m *MLPClassifier) String() string {
	return fmt.Sprintf("MLPClassifier(hidden_layer_sizes=%v, max_iter=%d, random_state=%d)",
		m.Params.HiddenLayerSizes, m.Params.MaxIter, m.Params.RandomState)
}
