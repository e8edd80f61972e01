package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/core"
)

func tx(id, user, cat string, typ core.TransactionType, amount, date string) core.Transaction {
	return core.Transaction{ID: id, UserID: user, CategoryID: cat, Type: typ, Amount: core.Amount(amount), Date: date}
}

func TestStore_ListExpenseTransactions(t *testing.T) {
	s := New(
		tx("3", "u1", "food", core.Expense, "30", "2025-03-03"),
		tx("1", "u1", "food", core.Expense, "10", "2025-03-01"),
		tx("2", "u1", "food", core.Income, "99", "2025-03-02"),
		tx("4", "u1", "rent", core.Expense, "800", "2025-03-01"),
		tx("5", "u2", "food", core.Expense, "5", "2025-03-01"),
	)
	ctx := context.Background()

	got, err := s.ListExpenseTransactions(ctx, "u1", "food")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	all, err := s.ListExpenseTransactions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListExpenseTransactions(ctx, "nobody", "food")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ListDistinctExpenseCategories(t *testing.T) {
	s := New(
		tx("1", "u1", "travel", core.Expense, "1", "2025-01-01"),
		tx("2", "u1", "food", core.Expense, "1", "2025-01-01"),
		tx("3", "u1", "food", core.Expense, "1", "2025-01-02"),
		tx("4", "u1", "salary", core.Income, "1", "2025-01-02"),
	)
	cats, err := s.ListDistinctExpenseCategories(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "travel"}, cats)
}

func TestStore_InsertValidatesAndReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.ErrorIs(t, s.Insert(ctx, core.Transaction{UserID: "u1", CategoryID: "food"}), core.ErrEmptyID)

	require.NoError(t, s.Insert(ctx, tx("1", "u1", "food", core.Expense, "10", "2025-01-01")))
	require.NoError(t, s.Insert(ctx, tx("1", "u1", "food", core.Expense, "12", "2025-01-01")))

	got, err := s.ListExpenseTransactions(ctx, "u1", "food")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Amount("12"), got[0].Amount)
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	cats, _ := s.ListDistinctExpenseCategories(context.Background(), "u1")
	assert.Empty(t, cats)

	path := filepath.Join(dir, "seed.json")
	seed := `[
		{"id":"a","userId":"u1","categoryId":"food","type":"expense","amount":12.5,"date":"2025-02-01"},
		{"id":"b","userId":"u1","categoryId":"food","type":"expense","amount":"7,25","date":"2025-02-02"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	s, err = NewFromFile(path)
	require.NoError(t, err)
	got, err := s.ListExpenseTransactions(context.Background(), "u1", "food")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 12.5, got[0].AmountValue(), 1e-9)
	assert.InDelta(t, 7.25, got[1].AmountValue(), 1e-9)

	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644))
	_, err = NewFromFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a","categoryId":"food"}]`), 0o644))
	_, err = NewFromFile(path)
	assert.ErrorIs(t, err, core.ErrEmptyUser)
}
