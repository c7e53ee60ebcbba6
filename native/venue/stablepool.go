package venue

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"settlenet/core/state"
)

// StablePool is the stored record for an indexed-coin stable-swap venue.
type StablePool struct {
	ID             string
	Coins          []string
	Reserves       []*big.Int
	Amplification  uint64
	FeeNumerator   uint64
	FeeDenominator uint64
}

const (
	stableKind = "stable"
	// maxIndexScan bounds sequential coin discovery for pools that do not
	// expose their size.
	maxIndexScan = 32
	// stableCoins is the pairwise invariant dimension used by the solver.
	stableCoins        = 2
	stableCoinsSquared = 4
	// solverRounds caps the Newton iterations for D and Y.
	solverRounds = 32
)

// Coin returns the registered coin at the index, failing when the index is
// out of range. Discovery relies on this failure to stop scanning.
func (p *StablePool) Coin(index int) (string, error) {
	if index < 0 || index >= len(p.Coins) {
		return "", fmt.Errorf("venue: coin index %d out of range", index)
	}
	return p.Coins[index], nil
}

// StableRouting optionally carries explicit pool indices inside a step's
// opaque routing data.
type StableRouting struct {
	IndexIn  uint8
	IndexOut uint8
}

// EncodeStableRouting renders explicit indices as opaque routing data.
func EncodeStableRouting(indexIn, indexOut uint8) ([]byte, error) {
	return rlp.EncodeToBytes(&StableRouting{IndexIn: indexIn, IndexOut: indexOut})
}

// CreateStablePool stores the pool record and credits its holding address
// with the initial reserves.
func CreateStablePool(st *state.Manager, pool *StablePool) error {
	if pool == nil || pool.ID == "" {
		return fmt.Errorf("venue: pool id required")
	}
	if len(pool.Coins) < 2 || len(pool.Coins) != len(pool.Reserves) {
		return fmt.Errorf("venue: coins and reserves must match with at least two entries")
	}
	if pool.Amplification == 0 {
		return fmt.Errorf("venue: zero amplification")
	}
	if pool.FeeDenominator == 0 {
		return fmt.Errorf("venue: zero fee denominator")
	}
	custody := PoolAddress(pool.ID)
	for i, coin := range pool.Coins {
		if !st.TokenExists(coin) {
			return fmt.Errorf("%w: unregistered coin %s", ErrTokenNotInPool, coin)
		}
		if pool.Reserves[i] == nil || pool.Reserves[i].Sign() <= 0 {
			return fmt.Errorf("venue: positive reserves required")
		}
		balance, err := st.Balance(custody[:], coin)
		if err != nil {
			return err
		}
		if err := st.SetBalance(custody[:], coin, new(big.Int).Add(balance, pool.Reserves[i])); err != nil {
			return err
		}
	}
	return st.KVPut(state.VenuePoolKey(stableKind, pool.ID), pool)
}

func loadStablePool(st *state.Manager, id string) (*StablePool, error) {
	pool := new(StablePool)
	ok, err := st.KVGet(state.VenuePoolKey(stableKind, id), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return pool, nil
}

// resolveIndices maps the token pair onto pool indices, either from explicit
// routing data or by scanning the indexed-coin lookup up to maxIndexScan
// entries. Scanning stops at the first out-of-range lookup.
func resolveIndices(pool *StablePool, tokenIn, tokenOut string, routing []byte) (int, int, error) {
	if len(routing) > 0 {
		decoded := new(StableRouting)
		if err := rlp.DecodeBytes(routing, decoded); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrInvalidIndices, err)
		}
		indexIn, indexOut := int(decoded.IndexIn), int(decoded.IndexOut)
		if indexIn == indexOut {
			return 0, 0, ErrInvalidIndices
		}
		if indexIn >= len(pool.Coins) || indexOut >= len(pool.Coins) {
			return 0, 0, fmt.Errorf("%w: explicit index out of range", ErrTokenNotInPool)
		}
		return indexIn, indexOut, nil
	}
	indexIn, indexOut := -1, -1
	for i := 0; i < maxIndexScan; i++ {
		coin, err := pool.Coin(i)
		if err != nil {
			break
		}
		if coin == tokenIn && indexIn < 0 {
			indexIn = i
		}
		if coin == tokenOut && indexOut < 0 {
			indexOut = i
		}
	}
	if indexIn < 0 || indexOut < 0 {
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrTokenNotInPool, tokenIn, tokenOut)
	}
	if indexIn == indexOut {
		return 0, 0, ErrInvalidIndices
	}
	return indexIn, indexOut, nil
}

// StableAdapter routes hops through a stored stable-swap pool.
type StableAdapter struct {
	id  string
	log *slog.Logger
}

// NewStableAdapter binds an adapter to a pool selector.
func NewStableAdapter(id string, log *slog.Logger) *StableAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &StableAdapter{id: id, log: log}
}

// Name implements the Adapter interface.
func (a *StableAdapter) Name() string { return a.id }

// Execute implements the Adapter interface.
func (a *StableAdapter) Execute(ctx *ExecContext) (*big.Int, bool) {
	fail := func(err error) (*big.Int, bool) {
		a.log.Warn("stable hop failed",
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
	pool, err := loadStablePool(st, a.id)
	if err != nil {
		return fail(err)
	}
	indexIn, indexOut, err := resolveIndices(pool, ctx.TokenIn, ctx.TokenOut, ctx.Routing)
	if err != nil {
		return fail(err)
	}
	if coin, _ := pool.Coin(indexIn); coin != ctx.TokenIn {
		return fail(fmt.Errorf("%w: index %d is %s", ErrTokenNotInPool, indexIn, coin))
	}
	if coin, _ := pool.Coin(indexOut); coin != ctx.TokenOut {
		return fail(fmt.Errorf("%w: index %d is %s", ErrTokenNotInPool, indexOut, coin))
	}
	if ctx.AmountIn == nil || ctx.AmountIn.Sign() <= 0 {
		return fail(ErrAmountTooSmall)
	}

	fee := tradingFee(ctx.AmountIn, pool.FeeNumerator, pool.FeeDenominator)
	lessFees := new(big.Int).Sub(ctx.AmountIn, fee)
	if lessFees.Sign() <= 0 {
		return fail(ErrAmountTooSmall)
	}
	reserveIn := pool.Reserves[indexIn]
	reserveOut := pool.Reserves[indexOut]
	leverage := new(big.Int).Mul(new(big.Int).SetUint64(pool.Amplification), big.NewInt(stableCoins))
	dVal := computeD(leverage, reserveIn, reserveOut)
	newReserveIn := new(big.Int).Add(reserveIn, lessFees)
	newReserveOut := computeNewDestinationAmount(leverage, newReserveIn, dVal)
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

	pool.Reserves[indexIn] = new(big.Int).Add(reserveIn, ctx.AmountIn)
	pool.Reserves[indexOut] = new(big.Int).Sub(reserveOut, out)
	if err := st.KVPut(state.VenuePoolKey(stableKind, pool.ID), pool); err != nil {
		return fail(err)
	}

	if ctx.Receiver != custody {
		if err := st.Transfer(custody[:], ctx.Receiver[:], ctx.TokenOut, out); err != nil {
			return fail(err)
		}
	}
	return out, true
}

func calculateStep(d, leverage, sumX, dProduct *big.Int) *big.Int {
	nCoins := big.NewInt(stableCoins)
	leverageMul := new(big.Int).Mul(leverage, sumX)
	dpMul := new(big.Int).Mul(dProduct, nCoins)
	numerator := new(big.Int).Mul(new(big.Int).Add(leverageMul, dpMul), d)
	leverageSub := new(big.Int).Mul(d, new(big.Int).Sub(leverage, big.NewInt(1)))
	nCoinsSum := new(big.Int).Mul(dProduct, new(big.Int).Add(nCoins, big.NewInt(1)))
	denominator := new(big.Int).Add(leverageSub, nCoinsSum)
	return new(big.Int).Quo(numerator, denominator)
}

// computeD solves the pairwise StableSwap invariant by Newton iteration.
func computeD(leverage, reserveIn, reserveOut *big.Int) *big.Int {
	nCoins := big.NewInt(stableCoins)
	inTimesCoins := new(big.Int).Add(new(big.Int).Mul(reserveIn, nCoins), big.NewInt(1))
	outTimesCoins := new(big.Int).Add(new(big.Int).Mul(reserveOut, nCoins), big.NewInt(1))
	sumX := new(big.Int).Add(reserveIn, reserveOut)
	if sumX.Sign() == 0 {
		return big.NewInt(0)
	}
	d := sumX
	for i := 0; i < solverRounds; i++ {
		dProduct := new(big.Int).Quo(new(big.Int).Mul(d, d), inTimesCoins)
		dProduct = new(big.Int).Quo(new(big.Int).Mul(dProduct, d), outTimesCoins)
		previous := d
		d = calculateStep(d, leverage, sumX, dProduct)
		if d.Cmp(previous) == 0 {
			break
		}
	}
	return d
}

// computeNewDestinationAmount solves for the destination reserve that keeps
// the invariant after the source reserve grows.
func computeNewDestinationAmount(leverage, newSourceAmount, dVal *big.Int) *big.Int {
	nCoins := big.NewInt(stableCoins)
	nCoinsSquared := big.NewInt(stableCoinsSquared)
	c := new(big.Int).Quo(
		new(big.Int).Exp(dVal, new(big.Int).Add(nCoins, big.NewInt(1)), nil),
		new(big.Int).Mul(new(big.Int).Mul(newSourceAmount, nCoinsSquared), leverage),
	)
	b := new(big.Int).Add(newSourceAmount, new(big.Int).Quo(dVal, leverage))
	y := dVal
	for i := 0; i < solverRounds; i++ {
		previous := y
		y = new(big.Int).Quo(
			new(big.Int).Add(new(big.Int).Mul(y, y), c),
			new(big.Int).Sub(new(big.Int).Add(new(big.Int).Mul(y, big.NewInt(2)), b), dVal),
		)
		if y.Cmp(previous) == 0 {
			break
		}
	}
	return y
}
