package venue

import (
	"fmt"
	"log/slog"
	"math/big"

	"settlenet/core/state"
)

// ConstantProductPool is the stored record for a two-asset x*y=k venue.
type ConstantProductPool struct {
	ID             string
	TokenA         string
	TokenB         string
	ReserveA       *big.Int
	ReserveB       *big.Int
	FeeNumerator   uint64
	FeeDenominator uint64
}

const constantProductKind = "cp"

// CreateConstantProductPool stores the pool record and credits its holding
// address with the initial reserves.
func CreateConstantProductPool(st *state.Manager, pool *ConstantProductPool) error {
	if pool == nil || pool.ID == "" {
		return fmt.Errorf("venue: pool id required")
	}
	if pool.TokenA == pool.TokenB {
		return fmt.Errorf("%w: identical pair", ErrInvalidIndices)
	}
	if !st.TokenExists(pool.TokenA) || !st.TokenExists(pool.TokenB) {
		return fmt.Errorf("%w: unregistered pair %s/%s", ErrTokenNotInPool, pool.TokenA, pool.TokenB)
	}
	if pool.ReserveA == nil || pool.ReserveB == nil || pool.ReserveA.Sign() <= 0 || pool.ReserveB.Sign() <= 0 {
		return fmt.Errorf("venue: positive reserves required")
	}
	if pool.FeeDenominator == 0 {
		return fmt.Errorf("venue: zero fee denominator")
	}
	custody := PoolAddress(pool.ID)
	for _, leg := range []struct {
		token   string
		reserve *big.Int
	}{{pool.TokenA, pool.ReserveA}, {pool.TokenB, pool.ReserveB}} {
		balance, err := st.Balance(custody[:], leg.token)
		if err != nil {
			return err
		}
		if err := st.SetBalance(custody[:], leg.token, new(big.Int).Add(balance, leg.reserve)); err != nil {
			return err
		}
	}
	return st.KVPut(state.VenuePoolKey(constantProductKind, pool.ID), pool)
}

func loadConstantProductPool(st *state.Manager, id string) (*ConstantProductPool, error) {
	pool := new(ConstantProductPool)
	ok, err := st.KVGet(state.VenuePoolKey(constantProductKind, id), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return pool, nil
}

// ConstantProductAdapter routes hops through a stored constant-product pool.
type ConstantProductAdapter struct {
	id  string
	log *slog.Logger
}

// NewConstantProductAdapter binds an adapter to a pool selector.
func NewConstantProductAdapter(id string, log *slog.Logger) *ConstantProductAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &ConstantProductAdapter{id: id, log: log}
}

// Name implements the Adapter interface.
func (a *ConstantProductAdapter) Name() string { return a.id }

// Execute implements the Adapter interface. All fallible checks run before
// any ledger mutation so a failed hop leaves no partial state.
func (a *ConstantProductAdapter) Execute(ctx *ExecContext) (*big.Int, bool) {
	fail := func(err error) (*big.Int, bool) {
		a.log.Warn("constant-product hop failed",
			slog.String("venue", a.id),
			slog.String("tokenIn", ctx.TokenIn),
			slog.String("tokenOut", ctx.TokenOut),
			slog.Any("error", err))
		return big.NewInt(0), false
	}
	if expired(ctx) {
		return fail(ErrDeadline)
	}
	st := ctx.State
	pool, err := loadConstantProductPool(st, a.id)
	if err != nil {
		return fail(err)
	}
	var reserveIn, reserveOut *big.Int
	switch {
	case ctx.TokenIn == pool.TokenA && ctx.TokenOut == pool.TokenB:
		reserveIn, reserveOut = pool.ReserveA, pool.ReserveB
	case ctx.TokenIn == pool.TokenB && ctx.TokenOut == pool.TokenA:
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	default:
		return fail(fmt.Errorf("%w: %s/%s", ErrTokenNotInPool, ctx.TokenIn, ctx.TokenOut))
	}
	if ctx.AmountIn == nil || ctx.AmountIn.Sign() <= 0 {
		return fail(ErrAmountTooSmall)
	}

	fee := tradingFee(ctx.AmountIn, pool.FeeNumerator, pool.FeeDenominator)
	lessFees := new(big.Int).Sub(ctx.AmountIn, fee)
	if lessFees.Sign() <= 0 {
		return fail(ErrAmountTooSmall)
	}
	invariant := new(big.Int).Mul(reserveIn, reserveOut)
	newReserveIn := new(big.Int).Add(reserveIn, lessFees)
	newReserveOut := new(big.Int).Quo(invariant, newReserveIn)
	out := new(big.Int).Sub(reserveOut, newReserveOut)
	if out.Sign() <= 0 {
		return fail(ErrAmountTooSmall)
	}
	if out.Cmp(effectiveMinOut(ctx)) < 0 {
		return fail(ErrSlippage)
	}
	if st.IsTransferRestricted(ctx.TokenOut, ctx.Receiver[:]) {
		return fail(state.ErrTransferRestricted)
	}

	custody := PoolAddress(a.id)
	if err := grantAllowance(st, ctx.Payer, custody, ctx.TokenIn, ctx.AmountIn); err != nil {
		return fail(err)
	}
	if err := st.SpendAllowance(ctx.Payer[:], custody[:], ctx.TokenIn, ctx.AmountIn); err != nil {
		return fail(err)
	}
	if err := st.Transfer(ctx.Payer[:], custody[:], ctx.TokenIn, ctx.AmountIn); err != nil {
		return fail(err)
	}

	// The input-side fee stays in the pool: reserves track the full ledger
	// movement, not just the curve amounts.
	reserveIn.Add(reserveIn, ctx.AmountIn)
	reserveOut.Sub(reserveOut, out)
	if err := st.KVPut(state.VenuePoolKey(constantProductKind, pool.ID), pool); err != nil {
		return fail(err)
	}

	if ctx.Receiver != custody {
		if err := st.Transfer(custody[:], ctx.Receiver[:], ctx.TokenOut, out); err != nil {
			return fail(err)
		}
	}
	return out, true
}

// tradingFee computes the input-side venue fee with a 1-unit minimum whenever
// a fee rate is configured.
func tradingFee(amount *big.Int, numerator, denominator uint64) *big.Int {
	if numerator == 0 || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Quo(
		new(big.Int).Mul(amount, new(big.Int).SetUint64(numerator)),
		new(big.Int).SetUint64(denominator),
	)
	if fee.Sign() == 0 {
		return big.NewInt(1)
	}
	return fee
}
