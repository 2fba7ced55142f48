package token

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const usdc = "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K.token-aeusdc"

func TestMintAndBalance(t *testing.T) {
	b := NewBank()
	if err := b.Mint(usdc, "alice", 100); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := b.Mint(usdc, "alice", 50); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := b.Balance(usdc, "alice"); got != 150 {
		t.Fatalf("balance = %d, want 150", got)
	}
	if got := b.Balance(usdc, "bob"); got != 0 {
		t.Fatalf("unknown account balance = %d", got)
	}

	if err := b.Mint(usdc, "alice", math.MaxUint64); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := b.Mint("", "alice", 1); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if err := b.Mint(usdc, "", 1); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected invalid account, got %v", err)
	}
	if err := b.Mint(usdc, "alice", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestTransferIsAllOrNothing(t *testing.T) {
	b := NewBank()
	if err := b.Mint(usdc, "alice", 100); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := b.Transfer(usdc, 40, "alice", "bob"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if b.Balance(usdc, "alice") != 60 || b.Balance(usdc, "bob") != 40 {
		t.Fatalf("balances after transfer: alice=%d bob=%d", b.Balance(usdc, "alice"), b.Balance(usdc, "bob"))
	}

	err := b.Transfer(usdc, 61, "alice", "bob")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if b.Balance(usdc, "alice") != 60 || b.Balance(usdc, "bob") != 40 {
		t.Fatalf("failed transfer moved funds")
	}

	if err := b.Transfer(usdc, 60, "alice", "alice"); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if err := b.Transfer(usdc, 61, "alice", "alice"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("self transfer over balance: %v", err)
	}
}

func TestTransferRejectsRecipientOverflow(t *testing.T) {
	b := NewBank()
	if err := b.Mint(usdc, "whale", math.MaxUint64); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := b.Mint(usdc, "alice", 1); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := b.Transfer(usdc, 1, "alice", "whale"); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if b.Balance(usdc, "alice") != 1 {
		t.Fatalf("sender debited on overflow")
	}
}

func TestTransferDropsEmptyBalances(t *testing.T) {
	b := NewBank()
	if err := b.Mint(usdc, "alice", 5); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := b.Transfer(usdc, 5, "alice", "bob"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"` + usdc + `":{"bob":5}}`
	if string(raw) != want {
		t.Fatalf("encoded bank = %s, want %s", raw, want)
	}
}

func TestBankJSONRoundTrip(t *testing.T) {
	b := NewBank()
	_ = b.Mint(usdc, "alice", 7)
	_ = b.Mint("SP000.token-abtc", "bob", 9)

	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored := NewBank()
	if err := json.Unmarshal(raw, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if restored.Balance(usdc, "alice") != 7 || restored.Balance("SP000.token-abtc", "bob") != 9 {
		t.Fatalf("balances lost in round trip")
	}

	empty := NewBank()
	if err := json.Unmarshal([]byte("null"), empty); err != nil {
		t.Fatalf("Unmarshal null: %v", err)
	}
	if err := empty.Mint(usdc, "carol", 1); err != nil {
		t.Fatalf("Mint after null decode: %v", err)
	}
}
