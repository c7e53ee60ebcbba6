package venue

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"settlenet/core/state"
)

// ExecContext carries everything an adapter needs to route one hop. Balances
// read before Execute must be re-read afterwards; the adapter mutates shared
// ledger state.
type ExecContext struct {
	State        *state.Manager
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	Payer        common.Address
	Receiver     common.Address
	MinAmountOut *big.Int // nil or zero falls back to the 1-unit floor
	Deadline     time.Time
	Routing      []byte
}

// Adapter is the uniform capability for executing one hop on one liquidity
// venue. Execute never propagates venue-side failures: it reports ok=false
// with a zero output and leaves recovery to the caller.
type Adapter interface {
	Name() string
	Execute(ctx *ExecContext) (*big.Int, bool)
}

// Registry dispatches venue selectors to adapters. Adding a venue means
// registering an implementation, not touching the dispatcher.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty dispatch table.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for a selector.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	r.adapters[adapter.Name()] = adapter
	r.mu.Unlock()
}

// Lookup resolves a selector to its adapter.
func (r *Registry) Lookup(selector string) (Adapter, bool) {
	r.mu.RLock()
	adapter, ok := r.adapters[selector]
	r.mu.RUnlock()
	return adapter, ok
}

// PoolAddress derives the holding address for a venue selector.
func PoolAddress(id string) common.Address {
	hash := ethcrypto.Keccak256([]byte("venue:custody:" + id))
	return common.BytesToAddress(hash[12:])
}

// maxAllowance is the approve-once-to-maximum sentinel. Granting the maximum
// once keeps the flow compatible with assets that demand a reset-to-zero
// before any re-approval.
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func grantAllowance(st *state.Manager, owner, spender common.Address, symbol string, needed *big.Int) error {
	current, err := st.Allowance(owner[:], spender[:], symbol)
	if err != nil {
		return err
	}
	if current.Cmp(needed) >= 0 {
		return nil
	}
	return st.SetAllowance(owner[:], spender[:], symbol, maxAllowance)
}

func effectiveMinOut(ctx *ExecContext) *big.Int {
	if ctx.MinAmountOut != nil && ctx.MinAmountOut.Sign() > 0 {
		return ctx.MinAmountOut
	}
	return big.NewInt(1)
}

func expired(ctx *ExecContext) bool {
	return !ctx.Deadline.IsZero() && time.Now().After(ctx.Deadline)
}
