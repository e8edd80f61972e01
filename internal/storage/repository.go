package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"finassist/internal/core"

	_ "modernc.org/sqlite"
)

const (
	insertTransaction = `
INSERT INTO transactions (user_id, id, category_id, category_name, type, amount, date, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    category_id = excluded.category_id,
    category_name = excluded.category_name,
    type = excluded.type,
    amount = excluded.amount,
    date = excluded.date,
    description = excluded.description`

	selectExpenses = `
SELECT id, user_id, category_id, category_name, type, amount, date, description
FROM transactions
WHERE user_id = ? AND type = 'expense' AND (? = '' OR category_id = ?)
ORDER BY date, rowid`

	selectExpenseCategories = `
SELECT DISTINCT category_id
FROM transactions
WHERE user_id = ? AND type = 'expense'
ORDER BY category_id`
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements ports.HealthChecker.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert stores tx, replacing any transaction with the same user and ID.
func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, insertTransaction,
		tx.UserID, tx.ID, tx.CategoryID, tx.CategoryName,
		string(tx.Type), string(tx.Amount), tx.Date, tx.Description)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", tx.UserID,
		"category_id", tx.CategoryID)
	return nil
}

// ListExpenseTransactions implements ports.TransactionStore.
func (r *SQLiteRepository) ListExpenseTransactions(ctx context.Context, userID, categoryID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectExpenses, userID, categoryID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query expense transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			tx     core.Transaction
			typ    string
			amount string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.CategoryID, &tx.CategoryName,
			&typ, &amount, &tx.Date, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = core.TransactionType(typ)
		tx.Amount = core.Amount(amount)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	// Dates are free text; text order differs from time order across layouts.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortTime().Before(out[j].SortTime())
	})
	return out, nil
}

// ListDistinctExpenseCategories implements ports.TransactionStore.
func (r *SQLiteRepository) ListDistinctExpenseCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectExpenseCategories, userID)
	if err != nil {
		return nil, fmt.Errorf("query expense categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}
