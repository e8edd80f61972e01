package detector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"finassist/internal/core"
	"finassist/internal/features"
)

const (
	// OutlierScoreThreshold flags decision scores strictly below it.
	OutlierScoreThreshold = -0.3

	// Contamination is the expected fraction of anomalies.
	Contamination = 0.1

	// Estimators is the number of isolation trees.
	Estimators = 100

	// MinTrainingSamples is the smallest history the forest is trained on.
	// Shorter histories are left to the window detector.
	MinTrainingSamples = 10
)

var tracer = otel.Tracer("finassist/internal/detector")

// OutlierDetector scores transactions with an isolation forest trained on
// the category's own history. Scores are decision-function values; more
// negative means more anomalous.
type OutlierDetector struct {
	extractor  *features.Extractor
	threshold  float64
	forestOpts []ForestOption
}

// NewOutlierDetector uses the given extractor; forest options are applied
// after the fixed defaults, which is mainly useful to seed the forest.
func NewOutlierDetector(extractor *features.Extractor, opts ...ForestOption) *OutlierDetector {
	if extractor == nil {
		extractor = features.NewExtractor()
	}
	return &OutlierDetector{
		extractor:  extractor,
		threshold:  OutlierScoreThreshold,
		forestOpts: opts,
	}
}

func (*OutlierDetector) Method() core.Method {
	return core.MethodIsolationForest
}

// Detect trains a fresh forest on txs and returns the transactions scoring
// below the threshold, most anomalous first.
func (d *OutlierDetector) Detect(ctx context.Context, categoryName string, txs []core.Transaction) ([]core.Anomaly, error) {
	if len(txs) < core.MinQualifyingTransactions {
		return nil, nil
	}

	_, span := tracer.Start(ctx, "OutlierDetector.Detect")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions", len(txs)))

	scores, err := d.score(txs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model failure")
		return nil, err
	}

	reasons := NewReasonGenerator(txs)
	var anomalies []core.Anomaly
	for i, score := range scores {
		if score >= d.threshold {
			continue
		}
		anomalies = append(anomalies, core.Anomaly{
			Transaction:  txs[i],
			CategoryName: categoryName,
			Score:        score,
			Reason:       reasons.Reason(categoryName, txs[i]),
		})
	}
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Score < anomalies[j].Score
	})

	span.SetAttributes(attribute.Int("anomalies", len(anomalies)))
	return anomalies, nil
}

func (d *OutlierDetector) score(txs []core.Transaction) ([]float64, error) {
	if len(txs) < MinTrainingSamples {
		return nil, fmt.Errorf("%d transactions: %w", len(txs), ErrInsufficientSignal)
	}

	amounts := make(stats.Float64Data, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.AmountValue()
	}
	variance, err := stats.PopulationVariance(amounts)
	if err != nil || variance == 0 {
		return nil, fmt.Errorf("constant amounts: %w", ErrInsufficientSignal)
	}

	data := d.extractor.ExtractAll(txs)
	opts := append([]ForestOption{
		WithTrees(Estimators),
		WithSampleSize(0),
		WithContamination(Contamination),
	}, d.forestOpts...)
	forest := NewForest(opts...)
	if err := forest.Fit(data); err != nil {
		return nil, err
	}
	scores, err := forest.DecisionFunction(data)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("score %d is %v: %w", i, s, ErrDegenerateScores)
		}
	}
	return scores, nil
}
