package ports

import (
	"context"

	"finassist/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionStore is the read side the anomaly service depends on.
	TransactionStore interface {
		// ListExpenseTransactions returns the user's expense transactions in
		// ascending date order. An empty categoryID selects every category.
		ListExpenseTransactions(ctx context.Context, userID, categoryID string) ([]core.Transaction, error)

		// ListDistinctExpenseCategories returns the category IDs the user has
		// expenses in.
		ListDistinctExpenseCategories(ctx context.Context, userID string) ([]string, error)
	}

	TransactionWriter interface {
		Insert(ctx context.Context, tx core.Transaction) error
	}

	// HealthChecker reports whether a backing resource is reachable.
	HealthChecker interface {
		Ping(ctx context.Context) error
	}
)
