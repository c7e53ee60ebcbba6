package swap

import (
	"math/big"

	"settlenet/core/state"
)

// feeDenominator scales the parts-per-million fee rate.
const feeDenominator = 1_000_000

// ComputeFee prices the settlement fee in output-token units. The fee is
// feePpm of the USD value gained across the route: amountOut at priceOut
// minus amountIn at priceIn, floored, and never more than amountOut. A route
// that lost value owes nothing.
func ComputeFee(amountIn *big.Int, priceIn *big.Rat, amountOut *big.Int, priceOut *big.Rat, feePpm uint64) *big.Int {
	if feePpm == 0 || amountIn == nil || amountOut == nil || amountOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	if priceIn == nil || priceOut == nil || priceOut.Sign() <= 0 {
		return big.NewInt(0)
	}
	valueIn := new(big.Rat).Mul(new(big.Rat).SetInt(amountIn), priceIn)
	valueOut := new(big.Rat).Mul(new(big.Rat).SetInt(amountOut), priceOut)
	gain := new(big.Rat).Sub(valueOut, valueIn)
	if gain.Sign() <= 0 {
		return big.NewInt(0)
	}
	feeValue := new(big.Rat).Mul(gain, new(big.Rat).SetFrac64(int64(feePpm), feeDenominator))
	feeTokens := new(big.Rat).Quo(feeValue, priceOut)
	fee := new(big.Int).Quo(feeTokens.Num(), feeTokens.Denom())
	if fee.Cmp(amountOut) > 0 {
		return new(big.Int).Set(amountOut)
	}
	return fee
}

// FeesAccrued returns the cumulative fee total collected in the asset, zero
// when none has been collected yet.
func FeesAccrued(st *state.Manager, symbol string) (*big.Int, error) {
	total := new(big.Int)
	ok, err := st.KVGet(state.FeeAccruedKey(symbol), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

func accrueFee(st *state.Manager, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	total, err := FeesAccrued(st, symbol)
	if err != nil {
		return err
	}
	return st.KVPut(state.FeeAccruedKey(symbol), new(big.Int).Add(total, amount))
}
