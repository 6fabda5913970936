package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// TransferResult reports the post-transfer balances of both wallets.
type TransferResult struct {
	StudentBalance int64 `json:"studentBalance"`
	TutorBalance   int64 `json:"tutorBalance"`
}

// RefundResult reports the post-refund balances and the amount moved
// back to the student.
type RefundResult struct {
	StudentBalance int64 `json:"studentBalance"`
	TutorBalance   int64 `json:"tutorBalance"`
	TokensRefunded int64 `json:"tokensRefunded"`
}

type Service struct {
	store Store
	cache *BalanceCache
	locks *keyMutex
}

func NewService(store Store, cache *BalanceCache) *Service {
	return &Service{
		store: store,
		cache: cache,
		locks: newKeyMutex(),
	}
}

// GetOrCreateWallet returns the wallet for (userID, role), creating it
// with a zero balance when absent. Creation is serialized per wallet
// key; if duplicate rows slipped in anyway, the oldest survives and
// the rest are removed.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID string, role Role, email string) (*Wallet, error) {
	key := Key(userID, role)
	unlock := s.locks.Lock(key)
	defer unlock()

	wallets, err := s.store.FindWalletsByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(wallets) > 0 {
		primary := wallets[0]
		for _, dup := range wallets[1:] {
			if err := s.store.DeleteWallet(ctx, dup.ID); err != nil {
				log.Warn().Err(err).
					Str("wallet_key", key).
					Str("wallet_id", dup.ID).
					Msg("Failed to remove duplicate wallet")
			}
		}
		if len(wallets) > 1 {
			log.Info().Str("wallet_key", key).Int("duplicates", len(wallets)-1).Msg("Reconciled duplicate wallets")
		}
		return primary, nil
	}

	w := New(userID, role, email)
	err = s.store.SaveWallet(ctx, w)
	if errors.Is(err, ErrDuplicateWallet) {
		// Lost a creation race against another process; use the row
		// that won.
		existing, ferr := s.store.FindWalletByKey(ctx, key)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, ErrWalletNotFound
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("wallet_key", key).Str("user_id", userID).Str("role", string(role)).Msg("Wallet created")
	return w, nil
}

// GetWallet returns the wallet or ErrWalletNotFound.
func (s *Service) GetWallet(ctx context.Context, userID string, role Role) (*Wallet, error) {
	w, err := s.store.FindWalletByKey(ctx, Key(userID, role))
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// GetTokenBalance returns the balance, or zero when the wallet does
// not exist yet.
func (s *Service) GetTokenBalance(ctx context.Context, userID string, role Role) (int64, error) {
	key := Key(userID, role)
	if balance, ok := s.cache.Get(ctx, key); ok {
		return balance, nil
	}

	w, err := s.store.FindWalletByKey(ctx, key)
	if err != nil {
		return 0, err
	}
	if w == nil {
		return 0, nil
	}
	s.cache.Set(ctx, key, w.TokenBalance)
	return w.TokenBalance, nil
}

// HasEnoughTokens reports whether the wallet holds at least tokens.
// A missing wallet has nothing to spend.
func (s *Service) HasEnoughTokens(ctx context.Context, userID string, role Role, tokens int64) (bool, error) {
	if tokens <= 0 {
		return false, ErrInvalidAmount
	}
	balance, err := s.GetTokenBalance(ctx, userID, role)
	if err != nil {
		return false, err
	}
	return balance >= tokens, nil
}

// ProcessPurchase credits purchased tokens to an existing wallet and
// returns the purchase ledger entry. Replays of the same payment
// session return the original entry without touching the balance. The
// entry is written before the wallet is credited, so a crash between
// the two leaves an auditable entry rather than untracked tokens.
func (s *Service) ProcessPurchase(ctx context.Context, userID string, role Role, tokens int64, amount float64, sessionID string) (*Transaction, error) {
	if tokens <= 0 {
		return nil, ErrInvalidAmount
	}

	key := Key(userID, role)
	unlock := s.locks.Lock(key)
	defer unlock()

	existing, err := s.store.FindTransactionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("session_id", sessionID).Msg("Purchase already processed, skipping")
		return existing, nil
	}

	w, err := s.store.FindWalletByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}

	entry := NewPurchase(w, tokens, amount, sessionID)
	entry.Complete()
	err = s.store.SaveTransaction(ctx, entry)
	if errors.Is(err, ErrDuplicateSession) {
		// Another process recorded this session between our check and
		// the insert. Its entry is the purchase; do not credit again.
		recorded, ferr := s.store.FindTransactionBySessionID(ctx, sessionID)
		if ferr != nil {
			return nil, ferr
		}
		if recorded == nil {
			return nil, err
		}
		log.Info().Str("session_id", sessionID).Msg("Purchase recorded by concurrent request, skipping")
		return recorded, nil
	}
	if err != nil {
		return nil, err
	}

	w.AddTokens(tokens)
	w.AddToTotalSpent(amount)
	if err := s.store.SaveWallet(ctx, w); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, key)

	log.Info().
		Str("wallet_key", key).
		Int64("tokens", tokens).
		Float64("amount", amount).
		Str("session_id", sessionID).
		Msg("Purchase processed")
	return entry, nil
}

// TransferTokens moves tokens from a student wallet to a tutor wallet
// as payment for a booking. The tutor wallet is created on first
// payment. Both ledger entries carry the booking id so the transfer
// can later be reversed.
func (s *Service) TransferTokens(ctx context.Context, studentID, tutorID string, tokens int64, description, bookingID string) (*TransferResult, error) {
	if tokens <= 0 {
		return nil, ErrInvalidAmount
	}

	studentKey := Key(studentID, RoleStudent)
	tutorKey := Key(tutorID, RoleTutor)

	var result TransferResult
	err := s.store.InTx(ctx, func(tx Store) error {
		student, err := tx.FindWalletByKey(ctx, studentKey)
		if err != nil {
			return err
		}
		if student == nil {
			return ErrWalletNotFound
		}
		if !student.UseTokens(tokens) {
			return ErrInsufficientTokens
		}

		tutor, err := tx.FindWalletByKey(ctx, tutorKey)
		if err != nil {
			return err
		}
		if tutor == nil {
			tutor = New(tutorID, RoleTutor, "")
		}
		tutor.AddTokens(tokens)

		if err := tx.SaveWallet(ctx, student); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, tutor); err != nil {
			return err
		}

		debit := NewUsage(student, tokens, SideDebit, "Tutor payment - "+description, bookingID)
		if err := tx.SaveTransaction(ctx, debit); err != nil {
			return err
		}
		credit := NewUsage(tutor, tokens, SideCredit, description, bookingID)
		if err := tx.SaveTransaction(ctx, credit); err != nil {
			return err
		}

		result = TransferResult{StudentBalance: student.TokenBalance, TutorBalance: tutor.TokenBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, studentKey, tutorKey)

	log.Info().
		Str("student", studentKey).
		Str("tutor", tutorKey).
		Int64("tokens", tokens).
		Str("booking_id", bookingID).
		Msg("Tokens transferred")
	return &result, nil
}

// RefundTokensByBooking reverses a booking transfer. The amount is
// taken from the student's original debit entry for the booking, never
// from the caller, so a reversal always matches what was charged.
func (s *Service) RefundTokensByBooking(ctx context.Context, studentID, tutorID, bookingID, reason string) (*RefundResult, error) {
	studentKey := Key(studentID, RoleStudent)
	tutorKey := Key(tutorID, RoleTutor)

	var result RefundResult
	err := s.store.InTx(ctx, func(tx Store) error {
		student, err := tx.FindWalletByKey(ctx, studentKey)
		if err != nil {
			return err
		}
		if student == nil {
			return ErrWalletNotFound
		}
		tutor, err := tx.FindWalletByKey(ctx, tutorKey)
		if err != nil {
			return err
		}
		if tutor == nil {
			return ErrWalletNotFound
		}

		original, err := tx.FindTransactionByBookingAndUser(ctx, bookingID, studentKey, TypeUsage)
		if err != nil {
			return err
		}
		if original == nil {
			return ErrBookingTransactionNotFound
		}
		tokens := original.TokensAmount
		if tokens <= 0 {
			return ErrInvalidRefundAmount
		}

		if !tutor.UseTokens(tokens) {
			return ErrInsufficientTokens
		}
		student.AddTokens(tokens)

		if err := tx.SaveWallet(ctx, student); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, tutor); err != nil {
			return err
		}

		refund := NewRefund(student, tokens, "Refund - "+reason, bookingID)
		if err := tx.SaveTransaction(ctx, refund); err != nil {
			return err
		}
		debit := NewUsage(tutor, tokens, SideDebit, "Refund to student - "+reason, bookingID)
		if err := tx.SaveTransaction(ctx, debit); err != nil {
			return err
		}

		result = RefundResult{
			StudentBalance: student.TokenBalance,
			TutorBalance:   tutor.TokenBalance,
			TokensRefunded: tokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, studentKey, tutorKey)

	log.Info().
		Str("student", studentKey).
		Str("tutor", tutorKey).
		Int64("tokens", result.TokensRefunded).
		Str("booking_id", bookingID).
		Msg("Booking refunded")
	return &result, nil
}

// RefundTokens moves an explicit token amount from a tutor wallet back
// to a student wallet. Prefer RefundTokensByBooking, which derives the
// amount from the ledger.
func (s *Service) RefundTokens(ctx context.Context, studentID, tutorID string, tokens int64, reason, bookingID string) (*RefundResult, error) {
	if tokens <= 0 {
		return nil, ErrInvalidRefundAmount
	}

	studentKey := Key(studentID, RoleStudent)
	tutorKey := Key(tutorID, RoleTutor)

	var result RefundResult
	err := s.store.InTx(ctx, func(tx Store) error {
		student, err := tx.FindWalletByKey(ctx, studentKey)
		if err != nil {
			return err
		}
		if student == nil {
			return ErrWalletNotFound
		}
		tutor, err := tx.FindWalletByKey(ctx, tutorKey)
		if err != nil {
			return err
		}
		if tutor == nil {
			return ErrWalletNotFound
		}

		if !tutor.UseTokens(tokens) {
			return ErrInsufficientTokens
		}
		student.AddTokens(tokens)

		if err := tx.SaveWallet(ctx, student); err != nil {
			return err
		}
		if err := tx.SaveWallet(ctx, tutor); err != nil {
			return err
		}

		refund := NewRefund(student, tokens, "Refund - "+reason, bookingID)
		if err := tx.SaveTransaction(ctx, refund); err != nil {
			return err
		}
		debit := NewUsage(tutor, tokens, SideDebit, "Refund to student - "+reason, bookingID)
		if err := tx.SaveTransaction(ctx, debit); err != nil {
			return err
		}

		result = RefundResult{
			StudentBalance: student.TokenBalance,
			TutorBalance:   tutor.TokenBalance,
			TokensRefunded: tokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, studentKey, tutorKey)
	return &result, nil
}

// GetTransactions returns the wallet's ledger entries, newest first.
func (s *Service) GetTransactions(ctx context.Context, userID string, role Role) ([]*Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, Key(userID, role))
}

// GetTransactionsByType filters the ledger by entry type.
func (s *Service) GetTransactionsByType(ctx context.Context, userID string, role Role, typ TransactionType) ([]*Transaction, error) {
	return s.store.ListTransactionsByUserAndType(ctx, Key(userID, role), typ)
}

// GetTransactionsBetween returns entries created in [start, end].
func (s *Service) GetTransactionsBetween(ctx context.Context, userID string, role Role, start, end time.Time) ([]*Transaction, error) {
	return s.store.ListTransactionsByUserBetween(ctx, Key(userID, role), start, end)
}

// FindTransactionBySession returns the purchase entry for a payment
// session, or (nil, nil) when none was recorded.
func (s *Service) FindTransactionBySession(ctx context.Context, sessionID string) (*Transaction, error) {
	return s.store.FindTransactionBySessionID(ctx, sessionID)
}
