// Package detector provides the per-category anomaly detectors.
//
// Two implementations share the Detector interface: an isolation-forest
// outlier model and a deterministic trailing-window z-score detector. The
// services layer tries them in order and keeps the first that succeeds.
package detector

import (
	"context"
	"errors"

	"finassist/internal/core"
)

var (
	// ErrInsufficientSignal means the input cannot support the model, for
	// example too few points or constant amounts.
	ErrInsufficientSignal = errors.New("insufficient signal for outlier model")

	// ErrDegenerateScores means the model produced non-finite scores.
	ErrDegenerateScores = errors.New("outlier model produced non-numeric scores")
)

// Detector flags anomalous transactions of a single category.
type Detector interface {
	// Method identifies the detector in results and metrics.
	Method() core.Method

	// Detect returns the flagged subset of txs. categoryName is used in
	// reason text. Inputs shorter than core.MinQualifyingTransactions yield
	// no anomalies and no error.
	Detect(ctx context.Context, categoryName string, txs []core.Transaction) ([]core.Anomaly, error)
}

// Registry maps methods to detectors.
type Registry struct {
	detectors map[core.Method]Detector
}

// NewRegistry registers the given detectors under their own method names.
func NewRegistry(detectors ...Detector) *Registry {
	r := &Registry{detectors: make(map[core.Method]Detector, len(detectors))}
	for _, d := range detectors {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a detector.
func (r *Registry) Register(d Detector) {
	r.detectors[d.Method()] = d
}

// Get returns the detector for a method.
func (r *Registry) Get(method core.Method) (Detector, bool) {
	d, ok := r.detectors[method]
	return d, ok
}

// Chain returns the registered detectors for the given methods, in order,
// skipping unknown methods.
func (r *Registry) Chain(methods ...core.Method) []Detector {
	out := make([]Detector, 0, len(methods))
	for _, m := range methods {
		if d, ok := r.detectors[m]; ok {
			out = append(out, d)
		}
	}
	return out
}

// IsModelFailure reports whether err is an algorithmic failure that should
// trigger fallback rather than be surfaced.
func IsModelFailure(err error) bool {
	return errors.Is(err, ErrInsufficientSignal) || errors.Is(err, ErrDegenerateScores)
}
