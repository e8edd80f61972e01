package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_InsertAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seed := []core.Transaction{
		{ID: "3", UserID: "u1", CategoryID: "food", Type: core.Expense, Amount: "30", Date: "2025-03-03T10:00:00Z"},
		{ID: "1", UserID: "u1", CategoryID: "food", CategoryName: "Food", Type: core.Expense, Amount: "10.50", Date: "2025-03-01"},
		{ID: "2", UserID: "u1", CategoryID: "food", Type: core.Income, Amount: "99", Date: "2025-03-02"},
		{ID: "4", UserID: "u1", CategoryID: "rent", Type: core.Expense, Amount: "800", Date: "2025-03-01"},
		{ID: "5", UserID: "u2", CategoryID: "food", Type: core.Expense, Amount: "5", Date: "2025-03-01"},
		{ID: "6", UserID: "u1", CategoryID: "food", Type: core.Expense, Amount: "abc", Date: "garbage"},
	}
	for _, tx := range seed {
		require.NoError(t, repo.Insert(ctx, tx))
	}

	got, err := repo.ListExpenseTransactions(ctx, "u1", "food")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "6", got[0].ID, "malformed date sorts first")
	assert.Equal(t, "1", got[1].ID)
	assert.Equal(t, "3", got[2].ID)
	assert.Equal(t, "Food", got[1].CategoryName)
	assert.InDelta(t, 10.5, got[1].AmountValue(), 1e-9)
	assert.Equal(t, 0.0, got[0].AmountValue())

	all, err := repo.ListExpenseTransactions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	cats, err := repo.ListDistinctExpenseCategories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "rent"}, cats)

	cats, err = repo.ListDistinctExpenseCategories(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestSQLiteRepository_InsertUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := core.Transaction{ID: "1", UserID: "u1", CategoryID: "food", Type: core.Expense, Amount: "10", Date: "2025-03-01"}
	require.NoError(t, repo.Insert(ctx, tx))
	tx.Amount = "12"
	require.NoError(t, repo.Insert(ctx, tx))

	got, err := repo.ListExpenseTransactions(ctx, "u1", "food")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Amount("12"), got[0].Amount)
}

func TestSQLiteRepository_InsertValidates(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Insert(context.Background(), core.Transaction{ID: "1", CategoryID: "food"})
	assert.ErrorIs(t, err, core.ErrEmptyUser)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(),
		core.Transaction{ID: "1", UserID: "u1", CategoryID: "food", Type: core.Expense, Amount: "1", Date: "2025-01-01"}))
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Ping(context.Background()))

	got, err := repo.ListExpenseTransactions(context.Background(), "u1", "food")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
