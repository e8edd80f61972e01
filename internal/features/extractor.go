// Package features turns transactions into numeric vectors for the outlier
// model.
package features

import (
	"math"
	"time"

	"finassist/internal/core"
)

// Width is the number of features produced for every transaction.
const Width = 4

// RecencyHorizon is the span over which recency goes from 0 to 1.
const RecencyHorizon = 30 * 24 * time.Hour

// Neutral values used when the transaction date cannot be parsed.
const (
	defaultDayOfMonth = 1
	defaultDayOfWeek  = 0
	defaultRecency    = 0.5
)

// Vector is [amount, day-of-month, day-of-week, recency].
type Vector [Width]float64

// Extractor builds feature vectors relative to a clock.
type Extractor struct {
	now func() time.Time
}

// NewExtractor returns an extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt returns an extractor with a fixed reference time.
func NewExtractorAt(now time.Time) *Extractor {
	return &Extractor{now: func() time.Time { return now }}
}

// Extract never fails: malformed amounts become 0 and malformed dates get
// neutral values so a bad field cannot manufacture an anomaly.
func (e *Extractor) Extract(tx core.Transaction) Vector {
	v := Vector{tx.AmountValue(), defaultDayOfMonth, defaultDayOfWeek, defaultRecency}

	ts, ok := tx.Time()
	if !ok {
		return v
	}
	v[1] = float64(ts.Day())
	v[2] = float64(ts.Weekday())
	v[3] = recency(e.now().Sub(ts))
	return v
}

// ExtractAll converts every transaction, preserving order.
func (e *Extractor) ExtractAll(txs []core.Transaction) [][]float64 {
	out := make([][]float64, len(txs))
	for i, tx := range txs {
		v := e.Extract(tx)
		out[i] = v[:]
	}
	return out
}

func recency(age time.Duration) float64 {
	r := float64(age) / float64(RecencyHorizon)
	return math.Max(0, math.Min(1, r))
}
