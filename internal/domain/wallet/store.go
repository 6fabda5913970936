package wallet

import (
	"context"
	"time"
)

// Store abstracts wallet and ledger persistence. The Postgres
// implementation lives in repository.go; memory.go provides an
// in-memory variant for tests and local development.
type Store interface {
	// FindWalletByKey returns (nil, nil) when no wallet has the key.
	FindWalletByKey(ctx context.Context, key string) (*Wallet, error)

	// FindWalletsByKey returns every wallet row sharing the key,
	// oldest first. Normally at most one; duplicates can appear when
	// concurrent creation races past the application lock.
	FindWalletsByKey(ctx context.Context, key string) ([]*Wallet, error)

	// SaveWallet inserts or updates a wallet. Inserting a second
	// wallet with an existing key returns ErrDuplicateWallet.
	SaveWallet(ctx context.Context, w *Wallet) error

	DeleteWallet(ctx context.Context, id string) error

	SaveTransaction(ctx context.Context, t *Transaction) error

	// FindTransactionBySessionID returns (nil, nil) when no entry
	// references the payment session.
	FindTransactionBySessionID(ctx context.Context, sessionID string) (*Transaction, error)

	// FindTransactionByBookingAndUser returns the oldest entry of the
	// given type tagged with bookingID and owned by the wallet key, or
	// (nil, nil) when none exists.
	FindTransactionByBookingAndUser(ctx context.Context, bookingID, userKey string, typ TransactionType) (*Transaction, error)

	// ListTransactionsByUser returns entries for a wallet key, newest
	// first.
	ListTransactionsByUser(ctx context.Context, userKey string) ([]*Transaction, error)

	ListTransactionsByUserAndType(ctx context.Context, userKey string, typ TransactionType) ([]*Transaction, error)

	ListTransactionsByUserBetween(ctx context.Context, userKey string, start, end time.Time) ([]*Transaction, error)

	// InTx runs fn against a transactional view of the store. Wallet
	// reads inside fn take row locks where the backend supports them.
	// The transaction commits when fn returns nil and rolls back
	// otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
