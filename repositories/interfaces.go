package repositories

import (
	"context"

	"github.com/upb/stockbot/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context that routes repository calls through the transaction
	Context() context.Context
}

// LedgerRepository stores per-user daily spend
type LedgerRepository interface {
	// Get returns the user's entry, or nil when the user has never been seen
	Get(ctx context.Context, userID string) (*models.LedgerEntry, error)

	// Save inserts or replaces the user's entry
	Save(ctx context.Context, entry *models.LedgerEntry) error
}

// AccessRepository stores the allow-list and admin list
type AccessRepository interface {
	// Get returns the entry for a user, or nil when the user is not listed
	Get(ctx context.Context, userID string) (*models.AccessEntry, error)

	// List returns every entry ordered by user id
	List(ctx context.Context) ([]*models.AccessEntry, error)

	// Upsert inserts the entry or updates its role
	Upsert(ctx context.Context, entry *models.AccessEntry) error

	// Delete removes a user and reports whether a row existed
	Delete(ctx context.Context, userID string) (bool, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByUser retrieves a user's audit logs, newest first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories bundles one storage backend
type Repositories struct {
	Ledger    LedgerRepository
	Access    AccessRepository
	AuditLogs AuditRepository
	TxManager TransactionManager
}
