package detector

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"finassist/internal/core"
)

const (
	multiplierRatio  = 3.0
	significantRatio = 1.5
)

// ReasonGenerator explains outlier-model anomalies against the statistics
// of the whole category history, not a local window.
type ReasonGenerator struct {
	mean float64
	max  float64
}

// NewReasonGenerator computes the mean and maximum amount of txs.
func NewReasonGenerator(txs []core.Transaction) *ReasonGenerator {
	amounts := make(stats.Float64Data, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.AmountValue()
	}
	g := &ReasonGenerator{}
	if mean, err := stats.Mean(amounts); err == nil {
		g.mean = mean
	}
	if m, err := stats.Max(amounts); err == nil {
		g.max = m
	}
	return g
}

// Reason returns the sentence for tx.
func (g *ReasonGenerator) Reason(categoryName string, tx core.Transaction) string {
	name := displayName(categoryName)
	amount := tx.AmountValue()

	ratio := 0.0
	if g.mean != 0 {
		ratio = amount / g.mean
	}

	switch {
	case ratio > multiplierRatio:
		return fmt.Sprintf("This %s expense of $%s is %.1fx higher than average",
			name, core.FormatAmount(amount), ratio)
	case ratio > significantRatio:
		return fmt.Sprintf("This %s expense of $%s is significantly higher than typical",
			name, core.FormatAmount(amount))
	case amount == g.max:
		return fmt.Sprintf("This is the largest recorded expense in %s ($%s)",
			name, core.FormatAmount(amount))
	default:
		return fmt.Sprintf("Unusual %s spending pattern on a %s", name, weekday(tx))
	}
}

// weekday matches the feature extractor: malformed dates count as Sunday.
func weekday(tx core.Transaction) time.Weekday {
	ts, ok := tx.Time()
	if !ok {
		return time.Sunday
	}
	return ts.Weekday()
}
