package wallet

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// All methods return copies so callers cannot mutate stored state
// without going through SaveWallet/SaveTransaction.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]*Wallet      // by wallet id
	transactions map[string]*Transaction // by transaction id
	txSeq        []string                // insertion order of transaction ids
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*Wallet),
		transactions: make(map[string]*Transaction),
	}
}

func copyWallet(w *Wallet) *Wallet {
	c := *w
	return &c
}

func copyTransaction(t *Transaction) *Transaction {
	c := *t
	if t.StripeSessionID != nil {
		s := *t.StripeSessionID
		c.StripeSessionID = &s
	}
	if t.BookingID != nil {
		b := *t.BookingID
		c.BookingID = &b
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (m *MemoryStore) findWalletByKey(key string) *Wallet {
	var found *Wallet
	for _, w := range m.wallets {
		if w.WalletKey != key {
			continue
		}
		if found == nil || w.CreatedAt.Before(found.CreatedAt) {
			found = w
		}
	}
	if found == nil {
		return nil
	}
	return copyWallet(found)
}

func (m *MemoryStore) findWalletsByKey(key string) []*Wallet {
	var out []*Wallet
	for _, w := range m.wallets {
		if w.WalletKey == key {
			out = append(out, copyWallet(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) saveWallet(w *Wallet) error {
	if _, exists := m.wallets[w.ID]; !exists {
		for _, other := range m.wallets {
			if other.WalletKey == w.WalletKey {
				return ErrDuplicateWallet
			}
		}
	}
	m.wallets[w.ID] = copyWallet(w)
	return nil
}

func (m *MemoryStore) saveTransaction(t *Transaction) error {
	if _, exists := m.transactions[t.ID]; !exists {
		if t.StripeSessionID != nil {
			for _, other := range m.transactions {
				if other.StripeSessionID != nil && *other.StripeSessionID == *t.StripeSessionID {
					return ErrDuplicateSession
				}
			}
		}
		m.txSeq = append(m.txSeq, t.ID)
	}
	m.transactions[t.ID] = copyTransaction(t)
	return nil
}

func (m *MemoryStore) findTransactionBySessionID(sessionID string) *Transaction {
	for _, id := range m.txSeq {
		t := m.transactions[id]
		if t.StripeSessionID != nil && *t.StripeSessionID == sessionID {
			return copyTransaction(t)
		}
	}
	return nil
}

func (m *MemoryStore) findTransactionByBookingAndUser(bookingID, userKey string, typ TransactionType) *Transaction {
	for _, id := range m.txSeq {
		t := m.transactions[id]
		if t.BookingID != nil && *t.BookingID == bookingID && t.UserID == userKey && t.Type == typ {
			return copyTransaction(t)
		}
	}
	return nil
}

func (m *MemoryStore) listByUser(userKey string, match func(*Transaction) bool) []*Transaction {
	var out []*Transaction
	for _, id := range m.txSeq {
		t := m.transactions[id]
		if t.UserID == userKey && match(t) {
			out = append(out, copyTransaction(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) FindWalletByKey(_ context.Context, key string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findWalletByKey(key), nil
}

func (m *MemoryStore) FindWalletsByKey(_ context.Context, key string) ([]*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findWalletsByKey(key), nil
}

func (m *MemoryStore) SaveWallet(_ context.Context, w *Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveWallet(w)
}

func (m *MemoryStore) DeleteWallet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wallets, id)
	return nil
}

func (m *MemoryStore) SaveTransaction(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTransaction(t)
}

func (m *MemoryStore) FindTransactionBySessionID(_ context.Context, sessionID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTransactionBySessionID(sessionID), nil
}

func (m *MemoryStore) FindTransactionByBookingAndUser(_ context.Context, bookingID, userKey string, typ TransactionType) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTransactionByBookingAndUser(bookingID, userKey, typ), nil
}

func (m *MemoryStore) ListTransactionsByUser(_ context.Context, userKey string) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByUser(userKey, func(*Transaction) bool { return true }), nil
}

func (m *MemoryStore) ListTransactionsByUserAndType(_ context.Context, userKey string, typ TransactionType) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByUser(userKey, func(t *Transaction) bool { return t.Type == typ }), nil
}

func (m *MemoryStore) ListTransactionsByUserBetween(_ context.Context, userKey string, start, end time.Time) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByUser(userKey, func(t *Transaction) bool {
		return !t.CreatedAt.Before(start) && !t.CreatedAt.After(end)
	}), nil
}

// InTx serializes against all other store access and rolls the data
// back when fn returns an error, mirroring the transactional contract
// of the Postgres store.
func (m *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapWallets := make(map[string]*Wallet, len(m.wallets))
	for id, w := range m.wallets {
		snapWallets[id] = copyWallet(w)
	}
	snapTx := make(map[string]*Transaction, len(m.transactions))
	for id, t := range m.transactions {
		snapTx[id] = copyTransaction(t)
	}
	snapSeq := append([]string(nil), m.txSeq...)

	if err := fn(&memoryTx{m: m}); err != nil {
		m.wallets = snapWallets
		m.transactions = snapTx
		m.txSeq = snapSeq
		return err
	}
	return nil
}

// memoryTx is the transactional view handed to InTx callbacks. The
// outer store's mutex is already held, so it touches the maps
// directly.
type memoryTx struct {
	m *MemoryStore
}

func (t *memoryTx) FindWalletByKey(_ context.Context, key string) (*Wallet, error) {
	return t.m.findWalletByKey(key), nil
}

func (t *memoryTx) FindWalletsByKey(_ context.Context, key string) ([]*Wallet, error) {
	return t.m.findWalletsByKey(key), nil
}

func (t *memoryTx) SaveWallet(_ context.Context, w *Wallet) error {
	return t.m.saveWallet(w)
}

func (t *memoryTx) DeleteWallet(_ context.Context, id string) error {
	delete(t.m.wallets, id)
	return nil
}

func (t *memoryTx) SaveTransaction(_ context.Context, tx *Transaction) error {
	return t.m.saveTransaction(tx)
}

func (t *memoryTx) FindTransactionBySessionID(_ context.Context, sessionID string) (*Transaction, error) {
	return t.m.findTransactionBySessionID(sessionID), nil
}

func (t *memoryTx) FindTransactionByBookingAndUser(_ context.Context, bookingID, userKey string, typ TransactionType) (*Transaction, error) {
	return t.m.findTransactionByBookingAndUser(bookingID, userKey, typ), nil
}

func (t *memoryTx) ListTransactionsByUser(_ context.Context, userKey string) ([]*Transaction, error) {
	return t.m.listByUser(userKey, func(*Transaction) bool { return true }), nil
}

func (t *memoryTx) ListTransactionsByUserAndType(_ context.Context, userKey string, typ TransactionType) ([]*Transaction, error) {
	return t.m.listByUser(userKey, func(tx *Transaction) bool { return tx.Type == typ }), nil
}

func (t *memoryTx) ListTransactionsByUserBetween(_ context.Context, userKey string, start, end time.Time) ([]*Transaction, error) {
	return t.m.listByUser(userKey, func(tx *Transaction) bool {
		return !tx.CreatedAt.Before(start) && !tx.CreatedAt.After(end)
	}), nil
}

func (t *memoryTx) InTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}
