// Package memory keeps every repository in process memory. State is lost on
// restart; it backs tests and DB_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
)

// Store holds all in-memory tables behind one lock
type Store struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	ledger map[string]models.LedgerEntry
	access map[string]models.AccessEntry
	audit  []models.AuditLog
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		ledger: make(map[string]models.LedgerEntry),
		access: make(map[string]models.AccessEntry),
	}
}

// Repositories returns the repository set backed by this store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Ledger:    &LedgerRepository{s},
		Access:    &AccessRepository{s},
		AuditLogs: &AuditRepository{s},
		TxManager: &TransactionManager{s},
	}
}

// LedgerRepository implements repositories.LedgerRepository
type LedgerRepository struct{ s *Store }

// Get returns a copy of the user's entry, or nil
func (r *LedgerRepository) Get(_ context.Context, userID string) (*models.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.ledger[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Save stores a copy of the entry
func (r *LedgerRepository) Save(_ context.Context, entry *models.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ledger[entry.UserID] = *entry
	return nil
}

// AccessRepository implements repositories.AccessRepository
type AccessRepository struct{ s *Store }

// Get returns a copy of the user's entry, or nil
func (r *AccessRepository) Get(_ context.Context, userID string) (*models.AccessEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.access[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// List returns every entry ordered by user id
func (r *AccessRepository) List(_ context.Context) ([]*models.AccessEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.AccessEntry, 0, len(r.s.access))
	for _, entry := range r.s.access {
		e := entry
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Upsert inserts the entry or updates its role
func (r *AccessRepository) Upsert(_ context.Context, entry *models.AccessEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.access[entry.UserID]; ok {
		existing.Role = entry.Role
		r.s.access[entry.UserID] = existing
		return nil
	}
	r.s.access[entry.UserID] = *entry
	return nil
}

// Delete removes the user and reports whether it existed
func (r *AccessRepository) Delete(_ context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.access[userID]
	delete(r.s.access, userID)
	return ok, nil
}

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct{ s *Store }

// Insert appends an audit entry
func (r *AuditRepository) Insert(_ context.Context, log *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// ListByUser returns the user's entries, newest first
func (r *AuditRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*models.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if r.s.audit[i].UserID == userID {
			log := r.s.audit[i]
			matched = append(matched, &log)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// TransactionManager serializes transactions; writes are applied eagerly
// and are not undone on rollback.
type TransactionManager struct{ s *Store }

// Begin acquires the store-wide transaction lock
func (m *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.s.txMu.Lock()
	return &Transaction{ctx: ctx, unlock: m.s.txMu.Unlock}, nil
}

// InTransaction runs fn while holding the transaction lock
func (m *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Transaction releases the lock once on Commit or Rollback
type Transaction struct {
	ctx    context.Context
	once   sync.Once
	unlock func()
}

// Commit releases the transaction
func (t *Transaction) Commit() error {
	t.once.Do(t.unlock)
	return nil
}

// Rollback releases the transaction
func (t *Transaction) Rollback() error {
	t.once.Do(t.unlock)
	return nil
}

// Context returns the context the transaction began with
func (t *Transaction) Context() context.Context {
	return t.ctx
}
