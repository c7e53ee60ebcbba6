package state

import (
	"errors"
	"math/big"
	"testing"

	"settlenet/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestTransferMovesBalances(t *testing.T) {
	m := newTestManager()
	if err := m.RegisterToken("USDQ", "USD Quanta", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	from := []byte{0x01}
	to := []byte{0x02}
	if err := m.SetBalance(from, "USDQ", big.NewInt(1000)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := m.Transfer(from, to, "USDQ", big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBal, _ := m.Balance(from, "USDQ")
	toBal, _ := m.Balance(to, "USDQ")
	if fromBal.Int64() != 600 || toBal.Int64() != 400 {
		t.Fatalf("unexpected balances: %v / %v", fromBal, toBal)
	}
	if err := m.Transfer(from, to, "USDQ", big.NewInt(601)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestTransferHonoursRestrictions(t *testing.T) {
	m := newTestManager()
	if err := m.RegisterToken("USDQ", "USD Quanta", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	from := []byte{0x01}
	blocked := []byte{0x03}
	if err := m.SetBalance(from, "USDQ", big.NewInt(100)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := m.SetTransferRestricted("USDQ", blocked, true); err != nil {
		t.Fatalf("set restriction: %v", err)
	}
	if err := m.Transfer(from, blocked, "USDQ", big.NewInt(10)); !errors.Is(err, ErrTransferRestricted) {
		t.Fatalf("expected restriction error, got %v", err)
	}
	if err := m.ForceTransfer(from, blocked, "USDQ", big.NewInt(10)); err != nil {
		t.Fatalf("force transfer: %v", err)
	}
	bal, _ := m.Balance(blocked, "USDQ")
	if bal.Int64() != 10 {
		t.Fatalf("expected forced credit, got %v", bal)
	}
}

func TestAllowanceSpend(t *testing.T) {
	m := newTestManager()
	owner := []byte{0x01}
	spender := []byte{0x02}
	if err := m.SetAllowance(owner, spender, "USDQ", big.NewInt(50)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	if err := m.SpendAllowance(owner, spender, "USDQ", big.NewInt(30)); err != nil {
		t.Fatalf("spend allowance: %v", err)
	}
	remaining, _ := m.Allowance(owner, spender, "USDQ")
	if remaining.Int64() != 20 {
		t.Fatalf("expected 20 remaining, got %v", remaining)
	}
	if err := m.SpendAllowance(owner, spender, "USDQ", big.NewInt(21)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
}

func TestCommitPersistsJournal(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	if err := m.RegisterToken("USDQ", "USD Quanta", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	addr := []byte{0x07}
	if err := m.SetBalance(addr, "USDQ", big.NewInt(77)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	reopened := NewManager(db)
	bal, err := reopened.Balance(addr, "USDQ")
	if err != nil {
		t.Fatalf("balance after commit: %v", err)
	}
	if bal.Int64() != 77 {
		t.Fatalf("expected committed balance, got %v", bal)
	}
}

func TestDiscardedJournalLeavesNoTrace(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	addr := []byte{0x08}
	if err := m.RegisterToken("USDQ", "USD Quanta", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := m.SetBalance(addr, "USDQ", big.NewInt(5)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	// No commit: a fresh manager must not observe the writes.
	fresh := NewManager(db)
	if fresh.TokenExists("USDQ") {
		t.Fatalf("uncommitted token registration leaked")
	}
	bal, _ := fresh.Balance(addr, "USDQ")
	if bal.Sign() != 0 {
		t.Fatalf("uncommitted balance leaked: %v", bal)
	}
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager()
	type record struct {
		Name  string
		Count uint64
	}
	if err := m.KVPut([]byte("test:record"), &record{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	var got record
	ok, err := m.KVGet([]byte("test:record"), &got)
	if err != nil || !ok {
		t.Fatalf("kv get: ok=%v err=%v", ok, err)
	}
	if got.Name != "alpha" || got.Count != 3 {
		t.Fatalf("unexpected record: %+v", got)
	}
	ok, err = m.KVGet([]byte("test:missing"), &got)
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
}
