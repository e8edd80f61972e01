package detector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/montanaflynn/stats"
)

const eulerGamma = 0.5772156649

// maxAutoSamples caps the per-tree sub-sample when sub-sampling is automatic.
const maxAutoSamples = 256

var errNotFitted = errors.New("isolation forest not fitted")

// Forest is an isolation forest: an ensemble of random partition trees in
// which outliers end up on short paths.
//
// Scores follow the decision-function convention: ScoreSamples is
// -2^(-E[h(x)]/c(psi)) and DecisionFunction subtracts an offset placed at the
// contamination quantile of the training scores, so negative values are
// outliers and lower is more anomalous.
type Forest struct {
	numTrees      int
	sampleSize    int // 0 means automatic
	contamination float64
	rng           *rand.Rand

	trees    []*isolationNode
	psi      int
	features int
	offset   float64
}

type isolationNode struct {
	splitFeature int
	splitValue   float64
	left, right  *isolationNode
	size         int
}

// ForestOption configures a Forest.
type ForestOption func(*Forest)

func WithTrees(n int) ForestOption {
	return func(f *Forest) { f.numTrees = n }
}

// WithSampleSize fixes the per-tree sub-sample; 0 selects min(256, n).
func WithSampleSize(n int) ForestOption {
	return func(f *Forest) { f.sampleSize = n }
}

func WithContamination(c float64) ForestOption {
	return func(f *Forest) { f.contamination = c }
}

func WithSeed(seed uint64) ForestOption {
	return func(f *Forest) { f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewForest returns an unfitted forest with 100 trees, automatic
// sub-sampling and 10% contamination unless overridden.
func NewForest(opts ...ForestOption) *Forest {
	f := &Forest{
		numTrees:      100,
		contamination: 0.1,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		seed := uint64(time.Now().UnixNano())
		f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return f
}

// Fit builds the trees and calibrates the decision offset on data.
func (f *Forest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("fit: %w", ErrInsufficientSignal)
	}
	if f.numTrees < 1 {
		return fmt.Errorf("fit: invalid tree count %d", f.numTrees)
	}
	if f.contamination <= 0 || f.contamination > 0.5 {
		return fmt.Errorf("fit: contamination %v out of range (0, 0.5]", f.contamination)
	}
	f.features = len(data[0])
	for i, row := range data {
		if len(row) != f.features {
			return fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), f.features)
		}
	}

	f.psi = f.sampleSize
	if f.psi <= 0 {
		f.psi = min(maxAutoSamples, len(data))
	}
	f.psi = min(f.psi, len(data))
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(f.psi), 2))))

	f.trees = make([]*isolationNode, f.numTrees)
	for i := range f.trees {
		f.trees[i] = f.buildTree(f.sample(data), 0, maxDepth)
	}

	trainScores, err := f.ScoreSamples(data)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	offset, err := stats.Percentile(trainScores, 100*f.contamination)
	if err != nil {
		return fmt.Errorf("fit: calibrate offset: %w: %v", ErrInsufficientSignal, err)
	}
	f.offset = offset
	return nil
}

// ScoreSamples returns the raw anomaly score of each row, in [-1, 0].
func (f *Forest) ScoreSamples(data [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, errNotFitted
	}
	norm := averagePathLength(f.psi)
	if norm <= 0 {
		norm = 1
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		if len(row) != f.features {
			return nil, fmt.Errorf("score: row %d has %d features, want %d", i, len(row), f.features)
		}
		total := 0.0
		for _, tree := range f.trees {
			total += pathLength(tree, row, 0)
		}
		avg := total / float64(len(f.trees))
		scores[i] = -math.Pow(2, -avg/norm)
	}
	return scores, nil
}

// DecisionFunction returns ScoreSamples shifted by the calibrated offset.
func (f *Forest) DecisionFunction(data [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(data)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// sample draws psi rows without replacement.
func (f *Forest) sample(data [][]float64) [][]float64 {
	if f.psi >= len(data) {
		return data
	}
	out := make([][]float64, f.psi)
	for i, idx := range f.rng.Perm(len(data))[:f.psi] {
		out[i] = data[idx]
	}
	return out
}

func (f *Forest) buildTree(data [][]float64, depth, maxDepth int) *isolationNode {
	node := &isolationNode{size: len(data)}
	if len(data) <= 1 || depth >= maxDepth {
		return node
	}

	// Pick a random feature that still varies in this node.
	candidates := f.rng.Perm(f.features)
	for _, feature := range candidates {
		lo, hi := data[0][feature], data[0][feature]
		for _, row := range data[1:] {
			lo = math.Min(lo, row[feature])
			hi = math.Max(hi, row[feature])
		}
		if lo == hi {
			continue
		}

		node.splitFeature = feature
		node.splitValue = lo + f.rng.Float64()*(hi-lo)

		var left, right [][]float64
		for _, row := range data {
			if row[feature] < node.splitValue {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		node.left = f.buildTree(left, depth+1, maxDepth)
		node.right = f.buildTree(right, depth+1, maxDepth)
		return node
	}

	// All features constant: leaf.
	return node
}

func pathLength(node *isolationNode, row []float64, depth int) float64 {
	if node.left == nil || node.right == nil {
		return float64(depth) + averagePathLength(node.size)
	}
	if row[node.splitFeature] < node.splitValue {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
