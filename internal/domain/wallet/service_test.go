package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tutorhub/wallet-api/internal/domain/wallet"
)

func newTestService() (*wallet.Service, *wallet.MemoryStore) {
	store := wallet.NewMemoryStore()
	return wallet.NewService(store, nil), store
}

func TestGetOrCreateWallet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	w, err := svc.GetOrCreateWallet(ctx, "user-1", wallet.RoleStudent, "u1@example.com")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if w.WalletKey != "user-1-student" {
		t.Fatalf("unexpected wallet key: %s", w.WalletKey)
	}
	if w.TokenBalance != 0 {
		t.Fatalf("new wallet should start empty, got %d", w.TokenBalance)
	}

	again, err := svc.GetOrCreateWallet(ctx, "user-1", wallet.RoleStudent, "u1@example.com")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if again.ID != w.ID {
		t.Fatalf("expected same wallet, got %s and %s", w.ID, again.ID)
	}

	tutor, err := svc.GetOrCreateWallet(ctx, "user-1", wallet.RoleTutor, "u1@example.com")
	if err != nil {
		t.Fatalf("tutor create failed: %v", err)
	}
	if tutor.WalletKey != "user-1-tutor" {
		t.Fatalf("unexpected tutor wallet key: %s", tutor.WalletKey)
	}
	if tutor.ID == w.ID {
		t.Fatal("student and tutor wallets must be distinct")
	}
}

func TestGetOrCreateWalletConcurrent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	ids := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := svc.GetOrCreateWallet(ctx, "user-7", wallet.RoleStudent, "")
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			ids <- w.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected 1 wallet id, got %d", len(seen))
	}
}

// duplicateStore simulates rows that raced past the uniqueness check,
// so reconciliation can be observed.
type duplicateStore struct {
	wallet.Store
	extras  []*wallet.Wallet
	deleted []string
}

func (d *duplicateStore) FindWalletsByKey(ctx context.Context, key string) ([]*wallet.Wallet, error) {
	wallets, err := d.Store.FindWalletsByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, e := range d.extras {
		if e.WalletKey == key {
			wallets = append(wallets, e)
		}
	}
	return wallets, nil
}

func (d *duplicateStore) DeleteWallet(ctx context.Context, id string) error {
	d.deleted = append(d.deleted, id)
	return d.Store.DeleteWallet(ctx, id)
}

func TestGetOrCreateWalletReconcilesDuplicates(t *testing.T) {
	inner := wallet.NewMemoryStore()
	ctx := context.Background()

	primary := wallet.New("user-2", wallet.RoleStudent, "")
	if err := inner.SaveWallet(ctx, primary); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	dup := wallet.New("user-2", wallet.RoleStudent, "")
	dup.CreatedAt = primary.CreatedAt.Add(time.Minute)

	store := &duplicateStore{Store: inner, extras: []*wallet.Wallet{dup}}
	svc := wallet.NewService(store, nil)

	w, err := svc.GetOrCreateWallet(ctx, "user-2", wallet.RoleStudent, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if w.ID != primary.ID {
		t.Fatalf("expected oldest wallet %s to survive, got %s", primary.ID, w.ID)
	}
	if len(store.deleted) != 1 || store.deleted[0] != dup.ID {
		t.Fatalf("expected duplicate %s removed, got %v", dup.ID, store.deleted)
	}
}

func TestProcessPurchaseIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.GetOrCreateWallet(ctx, "buyer", wallet.RoleStudent, ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entry, err := svc.ProcessPurchase(ctx, "buyer", wallet.RoleStudent, 10, 20000, "cs_test_1")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	w, err := svc.GetWallet(ctx, "buyer", wallet.RoleStudent)
	if err != nil {
		t.Fatalf("wallet missing: %v", err)
	}
	if w.TokenBalance != 10 {
		t.Fatalf("expected balance 10, got %d", w.TokenBalance)
	}
	if w.TotalSpent != 20000 {
		t.Fatalf("expected total spent 20000, got %f", w.TotalSpent)
	}

	// Replay of the same session returns the original entry and must
	// not credit again.
	replay, err := svc.ProcessPurchase(ctx, "buyer", wallet.RoleStudent, 10, 20000, "cs_test_1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.ID != entry.ID {
		t.Fatalf("replay returned a different entry: %s vs %s", replay.ID, entry.ID)
	}
	w, err = svc.GetWallet(ctx, "buyer", wallet.RoleStudent)
	if err != nil {
		t.Fatalf("wallet missing: %v", err)
	}
	if w.TokenBalance != 10 {
		t.Fatalf("replay changed balance to %d", w.TokenBalance)
	}

	txs, err := store.ListTransactionsByUser(ctx, "buyer-student")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(txs))
	}
	if txs[0].Type != wallet.TypePurchase || txs[0].Status != wallet.StatusCompleted {
		t.Fatalf("unexpected entry %+v", txs[0])
	}
}

// staleSessionStore misses the first session lookup, simulating a
// second process whose pre-insert check ran before the first process
// committed its entry.
type staleSessionStore struct {
	wallet.Store
	misses int
}

func (s *staleSessionStore) FindTransactionBySessionID(ctx context.Context, sessionID string) (*wallet.Transaction, error) {
	if s.misses > 0 {
		s.misses--
		return nil, nil
	}
	return s.Store.FindTransactionBySessionID(ctx, sessionID)
}

func TestProcessPurchaseDuplicateSessionAcrossProcesses(t *testing.T) {
	store := wallet.NewMemoryStore()
	first := wallet.NewService(store, nil)
	second := wallet.NewService(&staleSessionStore{Store: store, misses: 1}, nil)
	ctx := context.Background()

	if _, err := first.GetOrCreateWallet(ctx, "buyer", wallet.RoleStudent, ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	entry, err := first.ProcessPurchase(ctx, "buyer", wallet.RoleStudent, 10, 20000, "cs_race")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	// The second process passed its session check before the first
	// insert landed, so its own insert hits the session index. It must
	// surface the recorded entry and leave the balance alone.
	replay, err := second.ProcessPurchase(ctx, "buyer", wallet.RoleStudent, 10, 20000, "cs_race")
	if err != nil {
		t.Fatalf("concurrent purchase failed: %v", err)
	}
	if replay.ID != entry.ID {
		t.Fatalf("expected recorded entry %s, got %s", entry.ID, replay.ID)
	}

	w, err := first.GetWallet(ctx, "buyer", wallet.RoleStudent)
	if err != nil {
		t.Fatalf("wallet missing: %v", err)
	}
	if w.TokenBalance != 10 {
		t.Fatalf("expected balance 10, got %d", w.TokenBalance)
	}
	txs, err := store.ListTransactionsByUser(ctx, "buyer-student")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(txs))
	}
}

func TestProcessPurchaseRequiresWallet(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ProcessPurchase(context.Background(), "ghost", wallet.RoleStudent, 5, 10000, "cs_test_2")
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func seedStudent(t *testing.T, svc *wallet.Service, userID string, tokens int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.GetOrCreateWallet(ctx, userID, wallet.RoleStudent, ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.ProcessPurchase(ctx, userID, wallet.RoleStudent, tokens, float64(tokens)*2000, "seed-"+userID); err != nil {
		t.Fatalf("seed purchase failed: %v", err)
	}
}

func TestTransferTokens(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 10)

	result, err := svc.TransferTokens(ctx, "stu", "tut", 4, "Math lesson", "booking-1")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if result.StudentBalance != 6 || result.TutorBalance != 4 {
		t.Fatalf("unexpected balances %+v", result)
	}

	// Tutor wallet is created by the first payment.
	tutor, err := svc.GetWallet(ctx, "tut", wallet.RoleTutor)
	if err != nil {
		t.Fatalf("tutor wallet missing: %v", err)
	}
	if tutor.TokenBalance != 4 {
		t.Fatalf("expected tutor balance 4, got %d", tutor.TokenBalance)
	}

	debit, err := store.FindTransactionByBookingAndUser(ctx, "booking-1", "stu-student", wallet.TypeUsage)
	if err != nil || debit == nil {
		t.Fatalf("student debit entry missing: %v", err)
	}
	if debit.Side != wallet.SideDebit || debit.TokensAmount != 4 {
		t.Fatalf("unexpected debit entry %+v", debit)
	}
	credit, err := store.FindTransactionByBookingAndUser(ctx, "booking-1", "tut-tutor", wallet.TypeUsage)
	if err != nil || credit == nil {
		t.Fatalf("tutor credit entry missing: %v", err)
	}
	if credit.Side != wallet.SideCredit || credit.TokensAmount != 4 {
		t.Fatalf("unexpected credit entry %+v", credit)
	}
}

func TestTransferInsufficientTokens(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 3)

	_, err := svc.TransferTokens(ctx, "stu", "tut", 5, "Lesson", "booking-2")
	if !errors.Is(err, wallet.ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}

	balance, err := svc.GetTokenBalance(ctx, "stu", wallet.RoleStudent)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 3 {
		t.Fatalf("failed transfer must not change balance, got %d", balance)
	}
	if _, err := svc.GetWallet(ctx, "tut", wallet.RoleTutor); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("failed transfer must not create tutor wallet, got %v", err)
	}
}

func TestTransferMissingStudent(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.TransferTokens(context.Background(), "nobody", "tut", 1, "Lesson", "booking-3")
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService()
	seedStudent(t, svc, "stu", 5)

	for _, tokens := range []int64{0, -2} {
		if _, err := svc.TransferTokens(context.Background(), "stu", "tut", tokens, "Lesson", "booking-4"); !errors.Is(err, wallet.ErrInvalidAmount) {
			t.Fatalf("tokens=%d: expected ErrInvalidAmount, got %v", tokens, err)
		}
	}
}

func TestRefundTokensByBooking(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 10)

	if _, err := svc.TransferTokens(ctx, "stu", "tut", 4, "Lesson", "booking-5"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	result, err := svc.RefundTokensByBooking(ctx, "stu", "tut", "booking-5", "Tutor unavailable")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if result.TokensRefunded != 4 {
		t.Fatalf("expected exactly the debited 4 tokens back, got %d", result.TokensRefunded)
	}
	if result.StudentBalance != 10 || result.TutorBalance != 0 {
		t.Fatalf("unexpected balances %+v", result)
	}

	refund, err := store.FindTransactionByBookingAndUser(ctx, "booking-5", "stu-student", wallet.TypeRefund)
	if err != nil || refund == nil {
		t.Fatalf("refund entry missing: %v", err)
	}
	if refund.Side != wallet.SideCredit || refund.TokensAmount != 4 {
		t.Fatalf("unexpected refund entry %+v", refund)
	}
}

func TestRefundUnknownBooking(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 10)
	if _, err := svc.GetOrCreateWallet(ctx, "tut", wallet.RoleTutor, ""); err != nil {
		t.Fatalf("tutor create failed: %v", err)
	}

	_, err := svc.RefundTokensByBooking(ctx, "stu", "tut", "no-such-booking", "typo")
	if !errors.Is(err, wallet.ErrBookingTransactionNotFound) {
		t.Fatalf("expected ErrBookingTransactionNotFound, got %v", err)
	}
}

func TestRefundTutorAlreadySpent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 10)

	if _, err := svc.TransferTokens(ctx, "stu", "tut", 4, "Lesson", "booking-6"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	// Tutor moves their earnings elsewhere before the cancellation.
	seedStudent(t, svc, "other", 10)
	if _, err := svc.RefundTokens(ctx, "other", "tut", 4, "payout", ""); err != nil {
		t.Fatalf("payout failed: %v", err)
	}

	_, err := svc.RefundTokensByBooking(ctx, "stu", "tut", "booking-6", "cancelled")
	if !errors.Is(err, wallet.ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}

	// The failed refund must leave both wallets untouched.
	studentBalance, _ := svc.GetTokenBalance(ctx, "stu", wallet.RoleStudent)
	if studentBalance != 6 {
		t.Fatalf("expected student balance 6, got %d", studentBalance)
	}
	tutorBalance, _ := svc.GetTokenBalance(ctx, "tut", wallet.RoleTutor)
	if tutorBalance != 0 {
		t.Fatalf("expected tutor balance 0, got %d", tutorBalance)
	}
}

func TestRefundTokensRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 5)
	if _, err := svc.GetOrCreateWallet(ctx, "tut", wallet.RoleTutor, ""); err != nil {
		t.Fatalf("tutor create failed: %v", err)
	}

	if _, err := svc.RefundTokens(ctx, "stu", "tut", 0, "reason", ""); !errors.Is(err, wallet.ErrInvalidRefundAmount) {
		t.Fatalf("expected ErrInvalidRefundAmount, got %v", err)
	}
}

func TestHasEnoughTokens(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 5)

	ok, err := svc.HasEnoughTokens(ctx, "stu", wallet.RoleStudent, 5)
	if err != nil || !ok {
		t.Fatalf("expected enough tokens, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.HasEnoughTokens(ctx, "stu", wallet.RoleStudent, 6)
	if err != nil || ok {
		t.Fatalf("expected not enough tokens, got ok=%v err=%v", ok, err)
	}
	// A user with no wallet has nothing to spend.
	ok, err = svc.HasEnoughTokens(ctx, "ghost", wallet.RoleStudent, 1)
	if err != nil || ok {
		t.Fatalf("expected false for missing wallet, got ok=%v err=%v", ok, err)
	}
}

func TestTransactionHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 10)
	if _, err := svc.TransferTokens(ctx, "stu", "tut", 2, "Lesson", "booking-7"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if _, err := svc.RefundTokensByBooking(ctx, "stu", "tut", "booking-7", "cancelled"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	all, err := svc.GetTransactions(ctx, "stu", wallet.RoleStudent)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatal("entries must be newest first")
		}
	}

	usages, err := svc.GetTransactionsByType(ctx, "stu", wallet.RoleStudent, wallet.TypeUsage)
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(usages) != 1 {
		t.Fatalf("expected 1 usage entry, got %d", len(usages))
	}

	now := time.Now().UTC()
	ranged, err := svc.GetTransactionsBetween(ctx, "stu", wallet.RoleStudent, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("range list failed: %v", err)
	}
	if len(ranged) != 3 {
		t.Fatalf("expected 3 entries in range, got %d", len(ranged))
	}
	empty, err := svc.GetTransactionsBetween(ctx, "stu", wallet.RoleStudent, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("range list failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no entries in future range, got %d", len(empty))
	}
}

func TestConcurrentTransfersConserveTokens(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	seedStudent(t, svc, "stu", 5)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.TransferTokens(ctx, "stu", "tut", 1, "Lesson", fmt.Sprintf("booking-c%d", i))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, wallet.ErrInsufficientTokens) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 5 {
		t.Fatalf("expected 5 successful transfers, got %d", success)
	}
	studentBalance, _ := svc.GetTokenBalance(ctx, "stu", wallet.RoleStudent)
	tutorBalance, _ := svc.GetTokenBalance(ctx, "tut", wallet.RoleTutor)
	if studentBalance != 0 || tutorBalance != 5 {
		t.Fatalf("tokens not conserved: student=%d tutor=%d", studentBalance, tutorBalance)
	}
}
