package detector

import (
	"context"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"finassist/internal/core"
)

const (
	// WindowSize is the maximum number of prior transactions in a context
	// window.
	WindowSize = 10

	// ThresholdSigmas is the distance above the window mean, in standard
	// deviations, beyond which an amount is flagged.
	ThresholdSigmas = 2.5

	extremeScore     = 5.0
	significantScore = 3.0
)

// WindowDetector flags transactions whose amount exceeds the trailing
// window mean by more than ThresholdSigmas standard deviations. It is fully
// deterministic. Scores are positive; larger means more anomalous.
type WindowDetector struct{}

func NewWindowDetector() *WindowDetector {
	return &WindowDetector{}
}

func (*WindowDetector) Method() core.Method {
	return core.MethodStatisticalWindow
}

// Detect compares every transaction from the sixth onwards with up to
// WindowSize transactions strictly before it.
func (*WindowDetector) Detect(_ context.Context, categoryName string, txs []core.Transaction) ([]core.Anomaly, error) {
	if len(txs) < core.MinQualifyingTransactions {
		return nil, nil
	}

	sorted := SortChronologically(txs)

	var anomalies []core.Anomaly
	for i := core.MinQualifyingTransactions; i < len(sorted); i++ {
		start := max(0, i-WindowSize)
		ctxStats, ok := ComputeContext(sorted[start:i])
		if !ok {
			continue
		}

		amount := sorted[i].AmountValue()
		score, flagged := ctxStats.Evaluate(amount)
		if !flagged {
			continue
		}
		anomalies = append(anomalies, core.Anomaly{
			Transaction:  sorted[i],
			CategoryName: categoryName,
			Score:        score,
			Reason:       WindowReason(categoryName, amount, ctxStats.Mean, score),
		})
	}
	return anomalies, nil
}

// Context holds the statistics of a set of prior transactions.
type Context struct {
	Mean   float64
	StdDev float64
}

// ComputeContext returns the mean and population standard deviation of the
// amounts. ok is false for an empty set.
func ComputeContext(txs []core.Transaction) (Context, bool) {
	amounts := make(stats.Float64Data, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.AmountValue()
	}
	mean, err := stats.Mean(amounts)
	if err != nil {
		return Context{}, false
	}
	sd, err := stats.StandardDeviationPopulation(amounts)
	if err != nil {
		return Context{}, false
	}
	return Context{Mean: mean, StdDev: sd}, true
}

// Threshold is the amount above which a transaction is anomalous.
func (c Context) Threshold() float64 {
	return c.Mean + ThresholdSigmas*c.StdDev
}

// Evaluate returns the z-score of amount and whether it is flagged. A zero
// standard deviation never flags.
func (c Context) Evaluate(amount float64) (float64, bool) {
	if c.StdDev == 0 {
		return 0, false
	}
	if amount <= c.Threshold() {
		return 0, false
	}
	return (amount - c.Mean) / c.StdDev, true
}

// WindowReason explains a window-detector anomaly using the local mean.
func WindowReason(categoryName string, amount, mean, score float64) string {
	name := displayName(categoryName)
	switch {
	case score > extremeScore:
		return fmt.Sprintf("Extremely high %s expense: $%s compared to a recent average of $%s",
			name, core.FormatAmount(amount), core.FormatAmount(mean))
	case score > significantScore:
		return fmt.Sprintf("This %s expense of $%s is significantly higher than average ($%s)",
			name, core.FormatAmount(amount), core.FormatAmount(mean))
	default:
		return fmt.Sprintf("This %s expense of $%s is higher than your typical pattern",
			name, core.FormatAmount(amount))
	}
}

// SortChronologically returns a copy of txs in ascending date order.
// Transactions with equal dates keep their input order.
func SortChronologically(txs []core.Transaction) []core.Transaction {
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortTime().Before(sorted[j].SortTime())
	})
	return sorted
}

func displayName(categoryName string) string {
	if categoryName == "" {
		return "category"
	}
	return categoryName
}
