package wallet

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two wallet kinds a user can hold.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTutor   Role = "TUTOR"
)

// ParseRole normalizes a role string. Returns ErrInvalidRole for anything
// other than STUDENT or TUTOR.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTutor:
		return RoleTutor, nil
	}
	return "", ErrInvalidRole
}

// Key builds the composite wallet key. A user holds at most one wallet
// per role, identified by "<userID>-<lowercase role>".
func Key(userID string, role Role) string {
	return userID + "-" + strings.ToLower(string(role))
}

// Wallet holds a user's token balance for a single role.
type Wallet struct {
	ID           string    `db:"id" json:"id"`
	WalletKey    string    `db:"wallet_key" json:"walletKey"`
	UserID       string    `db:"user_id" json:"userId"`
	Role         Role      `db:"role" json:"role"`
	Email        string    `db:"email" json:"email"`
	TokenBalance int64     `db:"token_balance" json:"tokenBalance"`
	TotalSpent   float64   `db:"total_spent" json:"totalSpent"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a zero-balance wallet for the given user and role.
func New(userID string, role Role, email string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New().String(),
		WalletKey: Key(userID, role),
		UserID:    userID,
		Role:      role,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTokens credits the balance. Non-positive amounts are ignored.
func (w *Wallet) AddTokens(tokens int64) {
	if tokens <= 0 {
		return
	}
	w.TokenBalance += tokens
	w.UpdatedAt = time.Now().UTC()
}

// UseTokens debits the balance. Returns false when the amount is
// non-positive or exceeds the current balance; the wallet is left
// unchanged in that case.
func (w *Wallet) UseTokens(tokens int64) bool {
	if tokens <= 0 || tokens > w.TokenBalance {
		return false
	}
	w.TokenBalance -= tokens
	w.UpdatedAt = time.Now().UTC()
	return true
}

// AddToTotalSpent accumulates real-money spend. Non-positive amounts
// are ignored.
func (w *Wallet) AddToTotalSpent(amount float64) {
	if amount <= 0 {
		return
	}
	w.TotalSpent += amount
	w.UpdatedAt = time.Now().UTC()
}

// HasEnough reports whether the wallet can cover a debit of tokens.
func (w *Wallet) HasEnough(tokens int64) bool {
	return tokens > 0 && w.TokenBalance >= tokens
}

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TypePurchase TransactionType = "PURCHASE"
	TypeUsage    TransactionType = "USAGE"
	TypeRefund   TransactionType = "REFUND"
)

// TransactionStatus tracks an entry's lifecycle.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Side marks which direction tokens moved for the owning wallet.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Transaction is an immutable ledger entry. UserID stores the wallet
// key of the owning wallet, not the bare user id.
type Transaction struct {
	ID              string            `db:"id" json:"id"`
	UserID          string            `db:"user_id" json:"userId"`
	WalletID        string            `db:"wallet_id" json:"walletId"`
	Type            TransactionType   `db:"type" json:"type"`
	TokensAmount    int64             `db:"tokens_amount" json:"tokensAmount"`
	MoneyAmount     float64           `db:"money_amount" json:"moneyAmount"`
	StripeSessionID *string           `db:"stripe_session_id" json:"stripeSessionId,omitempty"`
	BookingID       *string           `db:"booking_id" json:"bookingId,omitempty"`
	Description     string            `db:"description" json:"description"`
	Status          TransactionStatus `db:"status" json:"status"`
	Side            Side              `db:"side" json:"side"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	CompletedAt     *time.Time        `db:"completed_at" json:"completedAt,omitempty"`
}

// NewPurchase creates a pending purchase entry tied to a payment session.
func NewPurchase(w *Wallet, tokens int64, amount float64, sessionID string) *Transaction {
	return &Transaction{
		ID:              uuid.New().String(),
		UserID:          w.WalletKey,
		WalletID:        w.ID,
		Type:            TypePurchase,
		TokensAmount:    tokens,
		MoneyAmount:     amount,
		StripeSessionID: &sessionID,
		Description:     "Token purchase",
		Status:          StatusPending,
		Side:            SideCredit,
		CreatedAt:       time.Now().UTC(),
	}
}

// NewUsage creates a completed usage entry for a booking-tagged token
// movement.
func NewUsage(w *Wallet, tokens int64, side Side, description string, bookingID string) *Transaction {
	now := time.Now().UTC()
	t := &Transaction{
		ID:           uuid.New().String(),
		UserID:       w.WalletKey,
		WalletID:     w.ID,
		Type:         TypeUsage,
		TokensAmount: tokens,
		Description:  description,
		Status:       StatusCompleted,
		Side:         side,
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	if bookingID != "" {
		t.BookingID = &bookingID
	}
	return t
}

// NewRefund creates a completed refund entry crediting tokens back to a
// student wallet.
func NewRefund(w *Wallet, tokens int64, description string, bookingID string) *Transaction {
	now := time.Now().UTC()
	t := &Transaction{
		ID:           uuid.New().String(),
		UserID:       w.WalletKey,
		WalletID:     w.ID,
		Type:         TypeRefund,
		TokensAmount: tokens,
		Description:  description,
		Status:       StatusCompleted,
		Side:         SideCredit,
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	if bookingID != "" {
		t.BookingID = &bookingID
	}
	return t
}

// Complete marks a pending entry completed.
func (t *Transaction) Complete() {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
}
