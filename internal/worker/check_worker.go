package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finassist/internal/amqp"
	"finassist/internal/core"
	"finassist/internal/log"
	"finassist/internal/ports"
)

type (
	// Checker evaluates one transaction against its category history.
	Checker interface {
		CheckTransactionForAnomaly(ctx context.Context, userID string, tx core.Transaction) (*core.CheckResult, error)
	}

	Publisher interface {
		PublishAnomalyDetected(ctx context.Context, msg *amqp.AnomalyDetectedMessage) error
	}

	Consumer interface {
		ConsumeTransactions(ctx context.Context, handler amqp.MessageHandler) error
	}
)

// CheckWorker checks every announced transaction and publishes the ones
// flagged as anomalous.
type CheckWorker struct {
	checker   Checker
	publisher Publisher
	recorder  ports.TransactionWriter
	logger    *log.Logger
}

// NewCheckWorker builds a worker. recorder may be nil; when set, checked
// transactions are stored so later checks see them as history.
func NewCheckWorker(checker Checker, publisher Publisher, recorder ports.TransactionWriter) *CheckWorker {
	return &CheckWorker{
		checker:   checker,
		publisher: publisher,
		recorder:  recorder,
		logger: log.New(log.Config{
			Handler:   slog.Default().Handler(),
			Component: log.ComponentWorker,
		}),
	}
}

// Run consumes until ctx is done.
func (w *CheckWorker) Run(ctx context.Context, consumer Consumer) error {
	return consumer.ConsumeTransactions(ctx, w.HandleTransactionCreated)
}

// HandleTransactionCreated processes a single transaction-created message.
func (w *CheckWorker) HandleTransactionCreated(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	tx := msg.Transaction
	if tx.UserID == "" {
		tx.UserID = msg.UserID
	}

	w.logger.InfoContext(ctx, "Processing transaction message",
		"message_id", msg.MessageID,
		"user_id", msg.UserID,
		"transaction_id", tx.ID,
		"category_id", tx.CategoryID)

	if !tx.IsExpense() {
		w.logger.DebugContext(ctx, "Skipping non-expense transaction", "transaction_id", tx.ID, "type", tx.Type)
		return w.record(ctx, tx)
	}

	result, err := w.checker.CheckTransactionForAnomaly(ctx, msg.UserID, tx)
	if err != nil {
		if errors.Is(err, core.ErrEmptyCategory) {
			return fmt.Errorf("%w: %v", amqp.ErrInvalidMessage, err)
		}
		log.NewStructuredLogger(w.logger).LogError(ctx, "Transaction check failed", err, log.OpCheck,
			log.NewFields().WithScope(msg.UserID, tx.CategoryID))
		return fmt.Errorf("check transaction %s: %w", tx.ID, err)
	}

	if err := w.record(ctx, tx); err != nil {
		return err
	}

	if result == nil {
		w.logger.DebugContext(ctx, "Not enough history to check transaction", "transaction_id", tx.ID)
		return nil
	}
	if !result.IsAnomaly {
		return nil
	}

	if w.publisher == nil {
		w.logger.WarnContext(ctx, "No publisher configured, anomaly not announced",
			"transaction_id", tx.ID,
			"reason", result.Reason)
		return nil
	}
	out := amqp.NewAnomalyDetectedMessage(msg.MessageID, msg.UserID, *result)
	if err := w.publisher.PublishAnomalyDetected(ctx, out); err != nil {
		log.NewStructuredLogger(w.logger).LogError(ctx, "Failed to publish anomaly", err, log.OpPublish,
			log.NewFields().WithScope(msg.UserID, tx.CategoryID))
		return fmt.Errorf("publish anomaly for %s: %w", tx.ID, err)
	}
	return nil
}

func (w *CheckWorker) record(ctx context.Context, tx core.Transaction) error {
	if w.recorder == nil {
		return nil
	}
	if err := w.recorder.Insert(ctx, tx); err != nil {
		if errors.Is(err, core.ErrEmptyID) || errors.Is(err, core.ErrEmptyUser) || errors.Is(err, core.ErrEmptyCategory) {
			return fmt.Errorf("%w: %v", amqp.ErrInvalidMessage, err)
		}
		return fmt.Errorf("record transaction %s: %w", tx.ID, err)
	}
	return nil
}
