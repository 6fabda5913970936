package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the Postgres-backed Store. Inside InTx all wallet
// reads take row locks so concurrent transfers against the same
// wallet serialize at the database.
type Repository struct {
	db        *sqlx.DB
	q         querier
	forUpdate bool
}

type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

const walletColumns = `id, wallet_key, user_id, role, email, token_balance, total_spent, created_at, updated_at`

const transactionColumns = `id, user_id, wallet_id, type, tokens_amount, money_amount, stripe_session_id, booking_id, description, status, side, created_at, completed_at`

func (r *Repository) FindWalletByKey(ctx context.Context, key string) (*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_key = $1 ORDER BY created_at LIMIT 1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	var w Wallet
	err := r.q.GetContext(ctx, &w, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) FindWalletsByKey(ctx context.Context, key string) ([]*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_key = $1 ORDER BY created_at`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	var wallets []*Wallet
	if err := r.q.SelectContext(ctx, &wallets, query, key); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *Repository) SaveWallet(ctx context.Context, w *Wallet) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO wallets (id, wallet_key, user_id, role, email, token_balance, total_spent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			token_balance = EXCLUDED.token_balance,
			total_spent = EXCLUDED.total_spent,
			updated_at = EXCLUDED.updated_at
	`, w.ID, w.WalletKey, w.UserID, string(w.Role), w.Email, w.TokenBalance, w.TotalSpent, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateWallet
		}
		return err
	}
	return nil
}

func (r *Repository) DeleteWallet(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	return err
}

func (r *Repository) SaveTransaction(ctx context.Context, t *Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, wallet_id, type, tokens_amount, money_amount, stripe_session_id, booking_id, description, status, side, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
	`, t.ID, t.UserID, t.WalletID, string(t.Type), t.TokensAmount, t.MoneyAmount, t.StripeSessionID, t.BookingID, t.Description, string(t.Status), string(t.Side), t.CreatedAt, t.CompletedAt)
	if err != nil {
		var pqErr *pq.Error
		// Id conflicts are absorbed by the upsert, so a 23505 here is
		// the session index: another process already recorded this
		// purchase. The caller must not credit the wallet again.
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (r *Repository) FindTransactionBySessionID(ctx context.Context, sessionID string) (*Transaction, error) {
	var t Transaction
	err := r.q.GetContext(ctx, &t, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE stripe_session_id = $1
		LIMIT 1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) FindTransactionByBookingAndUser(ctx context.Context, bookingID, userKey string, typ TransactionType) (*Transaction, error) {
	var t Transaction
	err := r.q.GetContext(ctx, &t, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE booking_id = $1 AND user_id = $2 AND type = $3
		ORDER BY created_at
		LIMIT 1
	`, bookingID, userKey, string(typ))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListTransactionsByUser(ctx context.Context, userKey string) ([]*Transaction, error) {
	var out []*Transaction
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userKey)
	return out, err
}

func (r *Repository) ListTransactionsByUserAndType(ctx context.Context, userKey string, typ TransactionType) ([]*Transaction, error) {
	var out []*Transaction
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC
	`, userKey, string(typ))
	return out, err
}

func (r *Repository) ListTransactionsByUserBetween(ctx context.Context, userKey string, start, end time.Time) ([]*Transaction, error) {
	var out []*Transaction
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+transactionColumns+`
		FROM wallet_transactions
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`, userKey, start, end)
	return out, err
}

func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txRepo := &Repository{db: r.db, q: tx, forUpdate: true}
	if err := fn(txRepo); err != nil {
		return err
	}
	return tx.Commit()
}
