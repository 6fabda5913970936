package wallet_test

import (
	"testing"

	"github.com/tutorhub/wallet-api/internal/domain/wallet"
)

func TestKey(t *testing.T) {
	if got := wallet.Key("user-1", wallet.RoleStudent); got != "user-1-student" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := wallet.Key("user-1", wallet.RoleTutor); got != "user-1-tutor" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseRole(t *testing.T) {
	for _, input := range []string{"STUDENT", "student", " Student "} {
		role, err := wallet.ParseRole(input)
		if err != nil || role != wallet.RoleStudent {
			t.Fatalf("ParseRole(%q) = %v, %v", input, role, err)
		}
	}
	if _, err := wallet.ParseRole("ADMIN"); err != wallet.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := wallet.ParseRole(""); err != wallet.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUseTokens(t *testing.T) {
	w := wallet.New("user-1", wallet.RoleStudent, "")
	w.AddTokens(5)

	if w.UseTokens(6) {
		t.Fatal("overdraft must be rejected")
	}
	if w.TokenBalance != 5 {
		t.Fatalf("rejected debit changed balance to %d", w.TokenBalance)
	}
	if w.UseTokens(0) || w.UseTokens(-1) {
		t.Fatal("non-positive debit must be rejected")
	}
	if !w.UseTokens(5) {
		t.Fatal("full debit should succeed")
	}
	if w.TokenBalance != 0 {
		t.Fatalf("expected empty wallet, got %d", w.TokenBalance)
	}
}

func TestAddTokensIgnoresNonPositive(t *testing.T) {
	w := wallet.New("user-1", wallet.RoleStudent, "")
	w.AddTokens(0)
	w.AddTokens(-3)
	if w.TokenBalance != 0 {
		t.Fatalf("expected 0, got %d", w.TokenBalance)
	}
	w.AddToTotalSpent(-1)
	if w.TotalSpent != 0 {
		t.Fatalf("expected 0 spent, got %f", w.TotalSpent)
	}
}
