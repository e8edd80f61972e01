// Package services provides business logic and orchestration services.
//
// AnomalyService runs per-category detection over a chain of interchangeable
// detectors: the outlier model first, the trailing-window detector when the
// model cannot produce a result.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"finassist/internal/core"
	"finassist/internal/detector"
	"finassist/internal/features"
	"finassist/internal/log"
	"finassist/internal/ports"
	"finassist/internal/telemetry"
)

var tracer = otel.Tracer("finassist/internal/services")

// DefaultChain is the detector order used unless overridden.
var DefaultChain = []core.Method{core.MethodIsolationForest, core.MethodStatisticalWindow}

// AnomalyService flags anomalous expenses for a user.
type AnomalyService struct {
	store     ports.TransactionStore
	detectors []detector.Detector
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

// Option configures an AnomalyService.
type Option func(*AnomalyService)

// WithDetectors replaces the detector chain. The first detector is primary;
// each later one runs only if all before it failed.
func WithDetectors(detectors ...detector.Detector) Option {
	return func(s *AnomalyService) { s.detectors = detectors }
}

// WithForestSeed seeds the outlier model in the default chain. Zero keeps
// the time-based seed.
func WithForestSeed(seed uint64) Option {
	return func(s *AnomalyService) {
		if seed == 0 {
			return
		}
		registry := detector.NewRegistry(
			detector.NewOutlierDetector(features.NewExtractor(), detector.WithSeed(seed)),
			detector.NewWindowDetector(),
		)
		s.detectors = registry.Chain(DefaultChain...)
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *AnomalyService) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *AnomalyService) { s.logger = l.WithComponent(log.ComponentAnomaly) }
}

func NewAnomalyService(store ports.TransactionStore, opts ...Option) *AnomalyService {
	registry := detector.NewRegistry(
		detector.NewOutlierDetector(features.NewExtractor()),
		detector.NewWindowDetector(),
	)
	s := &AnomalyService{
		store:     store,
		detectors: registry.Chain(DefaultChain...),
		logger: log.New(log.Config{
			Handler:   slog.Default().Handler(),
			Component: log.ComponentAnomaly,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DetectAnomaliesForCategory runs the detector chain over one category.
// Model failures are logged and trigger the next detector; only store
// failures are returned.
func (s *AnomalyService) DetectAnomaliesForCategory(ctx context.Context, userID, categoryID string) (core.CategoryResult, error) {
	ctx, span := tracer.Start(ctx, "AnomalyService.DetectAnomaliesForCategory")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("category.id", categoryID))

	result := core.CategoryResult{CategoryID: categoryID, Anomalies: []core.Anomaly{}}

	txs, err := s.store.ListExpenseTransactions(ctx, userID, categoryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list transactions")
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to list category transactions", err, log.OpList,
			log.NewFields().WithScope(userID, categoryID))
		return result, fmt.Errorf("list transactions for category %s: %w", categoryID, err)
	}
	txs = qualifying(txs, categoryID)

	if len(txs) < core.MinQualifyingTransactions {
		result.Message = core.InsufficientDataMessage
		s.logger.DebugContext(ctx, "Skipping category with short history",
			log.FieldUserID, userID,
			log.FieldCategoryID, categoryID,
			log.FieldTransactions, len(txs))
		return result, nil
	}

	name := core.ResolveCategoryName(categoryID, txs)
	for i, d := range s.detectors {
		anomalies, err := d.Detect(ctx, name, txs)
		if err != nil {
			s.logger.WarnContext(ctx, "Detector failed, trying next",
				log.FieldUserID, userID,
				log.FieldCategoryID, categoryID,
				log.FieldDetector, string(d.Method()),
				log.FieldError, err)
			continue
		}

		fellBack := i > 0
		if fellBack {
			result.Method = d.Method()
		}
		if anomalies != nil {
			result.Anomalies = anomalies
		}
		s.metrics.ObserveDetection(string(d.Method()), len(anomalies), fellBack)
		span.SetAttributes(
			attribute.String("detector", string(d.Method())),
			attribute.Int("anomalies", len(anomalies)),
		)
		log.NewStructuredLogger(s.logger).LogDetection(ctx, userID, categoryID, string(d.Method()), len(txs), len(anomalies))
		return result, nil
	}

	err = fmt.Errorf("no detector produced a result for category %s", categoryID)
	span.RecordError(err)
	span.SetStatus(codes.Error, "detector chain exhausted")
	return result, err
}

// DetectAnomaliesForUser runs category detection for every expense category
// of the user concurrently and merges the anomalies, newest first and, for
// equal dates, largest absolute score first.
func (s *AnomalyService) DetectAnomaliesForUser(ctx context.Context, userID string) ([]core.Anomaly, error) {
	ctx, span := tracer.Start(ctx, "AnomalyService.DetectAnomaliesForUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	categories, err := s.store.ListDistinctExpenseCategories(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list categories")
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to list expense categories", err, log.OpList,
			log.NewFields().WithScope(userID, ""))
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return []core.Anomaly{}, nil
	}

	// Every task runs to completion; the first error is reported after the join.
	var g errgroup.Group
	results := make([][]core.Anomaly, len(categories))
	for i, categoryID := range categories {
		g.Go(func() error {
			r, err := s.DetectAnomaliesForCategory(ctx, userID, categoryID)
			if err != nil {
				return err
			}
			results[i] = r.Anomalies
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "category detection")
		return nil, fmt.Errorf("detect anomalies for user %s: %w", userID, err)
	}

	all := []core.Anomaly{}
	for _, r := range results {
		all = append(all, r...)
	}
	SortFeed(all)

	span.SetAttributes(attribute.Int("categories", len(categories)), attribute.Int("anomalies", len(all)))
	s.logger.InfoContext(ctx, "User detection completed",
		log.FieldUserID, userID,
		"categories", len(categories),
		log.FieldAnomalies, len(all))
	return all, nil
}

// SortFeed orders anomalies by date descending, then by absolute score
// descending. The sort is stable.
func SortFeed(anomalies []core.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ti, tj := anomalies[i].SortTime(), anomalies[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return math.Abs(anomalies[i].Score) > math.Abs(anomalies[j].Score)
	})
}

// CheckTransactionForAnomaly evaluates tx against the user's prior expenses
// in the same category with the window statistics. It returns nil when the
// history is too short to decide. The outlier model is never used.
func (s *AnomalyService) CheckTransactionForAnomaly(ctx context.Context, userID string, tx core.Transaction) (*core.CheckResult, error) {
	ctx, span := tracer.Start(ctx, "AnomalyService.CheckTransactionForAnomaly")
	defer span.End()

	if tx.CategoryID == "" {
		return nil, core.ErrEmptyCategory
	}
	if tx.UserID == "" {
		tx.UserID = userID
	}
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("category.id", tx.CategoryID),
		attribute.String("transaction.id", tx.ID),
	)

	history, err := s.store.ListExpenseTransactions(ctx, userID, tx.CategoryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list transactions")
		return nil, fmt.Errorf("list transactions for category %s: %w", tx.CategoryID, err)
	}
	prior := priorTo(tx, qualifying(history, tx.CategoryID))

	if len(prior) < core.MinQualifyingTransactions {
		s.metrics.ObserveCheck(telemetry.CheckInsufficient)
		return nil, nil
	}

	stats, ok := detector.ComputeContext(prior)
	if !ok {
		s.metrics.ObserveCheck(telemetry.CheckInsufficient)
		return nil, nil
	}

	amount := tx.AmountValue()
	result := &core.CheckResult{Transaction: tx}
	score, flagged := stats.Evaluate(amount)
	if flagged {
		name := core.ResolveCategoryName(tx.CategoryID, append([]core.Transaction{tx}, prior...))
		result.IsAnomaly = true
		result.Score = score
		result.Reason = detector.WindowReason(name, amount, stats.Mean, score)
		s.metrics.ObserveCheck(telemetry.CheckAnomalous)
		s.logger.InfoContext(ctx, "Transaction flagged",
			log.FieldUserID, userID,
			log.FieldCategoryID, tx.CategoryID,
			log.FieldTransactionID, tx.ID,
			log.FieldScore, score)
	} else {
		s.metrics.ObserveCheck(telemetry.CheckNormal)
	}
	span.SetAttributes(attribute.Bool("anomaly", flagged))
	return result, nil
}

// qualifying keeps the expense transactions of categoryID.
func qualifying(txs []core.Transaction, categoryID string) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		if categoryID != "" && tx.CategoryID != categoryID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// priorTo drops tx itself and, when tx has a valid date, every transaction
// not strictly before it. The result is in ascending date order.
func priorTo(tx core.Transaction, history []core.Transaction) []core.Transaction {
	at, dated := tx.Time()
	out := make([]core.Transaction, 0, len(history))
	for _, h := range history {
		if tx.ID != "" && h.ID == tx.ID {
			continue
		}
		if dated && !h.SortTime().Before(at) {
			continue
		}
		out = append(out, h)
	}
	return detector.SortChronologically(out)
}
