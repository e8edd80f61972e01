package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"finassist/internal/core"
)

// Store keeps transactions in process memory, grouped by user.
type Store struct {
	mu    sync.RWMutex
	items map[string][]core.Transaction
}

func New(txs ...core.Transaction) *Store {
	s := &Store{items: make(map[string][]core.Transaction)}
	for _, tx := range txs {
		s.items[tx.UserID] = append(s.items[tx.UserID], tx)
	}
	return s
}

// NewFromFile seeds the store from a JSON array of transactions. A missing
// file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var txs []core.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("seed transaction %d: %w", i, err)
		}
	}
	return New(txs...), nil
}

// Insert stores tx. A transaction with the same user and ID replaces the
// existing one.
func (s *Store) Insert(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[tx.UserID]
	for i := range list {
		if list[i].ID == tx.ID {
			list[i] = tx
			return nil
		}
	}
	s.items[tx.UserID] = append(list, tx)
	return nil
}

// ListExpenseTransactions implements ports.TransactionStore.
func (s *Store) ListExpenseTransactions(_ context.Context, userID, categoryID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range s.items[userID] {
		if !tx.IsExpense() {
			continue
		}
		if categoryID != "" && tx.CategoryID != categoryID {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortTime().Before(out[j].SortTime())
	})
	return out, nil
}

// ListDistinctExpenseCategories implements ports.TransactionStore. Categories
// are returned sorted.
func (s *Store) ListDistinctExpenseCategories(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, tx := range s.items[userID] {
		if !tx.IsExpense() {
			continue
		}
		if _, ok := seen[tx.CategoryID]; ok {
			continue
		}
		seen[tx.CategoryID] = struct{}{}
		out = append(out, tx.CategoryID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }
