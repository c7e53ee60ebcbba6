package referral

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/state"
)

const testAsset = "USDQ"

// buildChain registers count descendants below an approved root and returns
// them ordered child-first (element 0 is the deepest descendant).
func buildChain(t *testing.T, st *state.Manager, registry *Registry, count int) []common.Address {
	t.Helper()
	root := addr(1)
	if err := registry.SetApprovedSeller(st, root, true); err != nil {
		t.Fatalf("approve root: %v", err)
	}
	members := []common.Address{root}
	for i := 0; i < count; i++ {
		member := addr(byte(20 + i))
		if err := registry.Register(st, member, members[len(members)-1]); err != nil {
			t.Fatalf("register member %d: %v", i, err)
		}
		members = append(members, member)
	}
	ordered := make([]common.Address, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		ordered = append(ordered, members[i])
	}
	return ordered
}

func fundPayer(t *testing.T, st *state.Manager, payer common.Address, amount int64) {
	t.Helper()
	if err := st.RegisterToken(testAsset, "USD Quanta", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := st.SetBalance(payer[:], testAsset, big.NewInt(amount)); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
}

func TestDistributeFullDepth(t *testing.T) {
	st := newTestState(t)
	registry := NewRegistry()
	chain := buildChain(t, st, registry, 5)
	payer := addr(200)
	fundPayer(t, st, payer, 2_000_000)

	distributor := NewDistributor(registry, nil)
	fee := big.NewInt(1_000_000)
	distributed, err := distributor.Distribute(st, payer, chain[0], testAsset, fee)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if distributed.Int64() != 625_000 {
		t.Fatalf("expected 625000 distributed, got %v", distributed)
	}
	wantShares := []int64{350_000, 150_000, 75_000, 35_000, 15_000}
	for i, want := range wantShares {
		recipient := chain[i+1]
		balance, _ := st.Balance(recipient[:], testAsset)
		if balance.Int64() != want {
			t.Fatalf("level %d: expected %d, got %v", i, want, balance)
		}
		accrued, err := registry.Accrued(st, recipient, testAsset)
		if err != nil {
			t.Fatalf("accrued level %d: %v", i, err)
		}
		if accrued.Int64() != want {
			t.Fatalf("level %d accrual: expected %d, got %v", i, want, accrued)
		}
	}
}

func TestDistributeShortChain(t *testing.T) {
	st := newTestState(t)
	registry := NewRegistry()
	chain := buildChain(t, st, registry, 2)
	payer := addr(200)
	fundPayer(t, st, payer, 2_000_000)

	distributor := NewDistributor(registry, nil)
	distributed, err := distributor.Distribute(st, payer, chain[0], testAsset, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	// The chain ends after two ancestors: levels 0 and 1 only, no error.
	if distributed.Int64() != 350_000+150_000 {
		t.Fatalf("expected two level shares, got %v", distributed)
	}
}

func TestDistributeZeroAmount(t *testing.T) {
	st := newTestState(t)
	registry := NewRegistry()
	distributor := NewDistributor(registry, nil)
	if _, err := distributor.Distribute(st, addr(200), addr(1), testAsset, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
}

func TestDistributeFloorsIndivisibleAmounts(t *testing.T) {
	st := newTestState(t)
	registry := NewRegistry()
	chain := buildChain(t, st, registry, 5)
	payer := addr(200)
	fundPayer(t, st, payer, 1_000)

	distributor := NewDistributor(registry, nil)
	// 999 * ppm / 1e6 floors every share; the rounding loss stays with the payer.
	distributed, err := distributor.Distribute(st, payer, chain[0], testAsset, big.NewInt(999))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	wantShares := []int64{349, 149, 74, 34, 14}
	var wantTotal int64
	for i, want := range wantShares {
		recipient := chain[i+1]
		balance, _ := st.Balance(recipient[:], testAsset)
		if balance.Int64() != want {
			t.Fatalf("level %d: expected %d, got %v", i, want, balance)
		}
		wantTotal += want
	}
	if distributed.Int64() != wantTotal {
		t.Fatalf("expected %d distributed, got %v", wantTotal, distributed)
	}
}

func TestDistributeSkipsUndeliverableLevel(t *testing.T) {
	st := newTestState(t)
	registry := NewRegistry()
	chain := buildChain(t, st, registry, 5)
	payer := addr(200)
	fundPayer(t, st, payer, 2_000_000)

	blocked := chain[2] // level 1 recipient
	if err := st.SetTransferRestricted(testAsset, blocked[:], true); err != nil {
		t.Fatalf("restrict recipient: %v", err)
	}

	distributor := NewDistributor(registry, nil)
	distributed, err := distributor.Distribute(st, payer, chain[0], testAsset, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if distributed.Int64() != 625_000-150_000 {
		t.Fatalf("expected level 1 share forfeited, got %v", distributed)
	}
	balance, _ := st.Balance(blocked[:], testAsset)
	if balance.Sign() != 0 {
		t.Fatalf("blocked recipient must not be paid, got %v", balance)
	}
	// The walk still advances: level 2 gets its share.
	next := chain[3]
	balance, _ = st.Balance(next[:], testAsset)
	if balance.Int64() != 75_000 {
		t.Fatalf("level 2 share expected, got %v", balance)
	}
}
