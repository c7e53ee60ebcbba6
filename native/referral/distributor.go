package referral

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/events"
	"settlenet/core/state"
)

// Distributor splits a fee amount across the ancestor chain of a participant
// using the fixed parts-per-million schedule.
type Distributor struct {
	registry *Registry
	log      *slog.Logger
}

// NewDistributor creates a distributor walking the supplied registry.
func NewDistributor(registry *Registry, log *slog.Logger) *Distributor {
	if log == nil {
		log = slog.Default()
	}
	return &Distributor{registry: registry, log: log}
}

// Distribute pays up to payoutLevels ancestors of start, beginning at start's
// referrer, out of the payer account. Level i receives
// fee * payoutPPM[i] / 1_000_000 with floor division; a zero share still
// advances to the next ancestor. The walk stops when the chain ends. The
// returned amount is the sum of rewards actually transferred; the caller is
// responsible for forwarding the remainder to the treasury.
func (d *Distributor) Distribute(st *state.Manager, payer, start common.Address, asset string, fee *big.Int) (*big.Int, error) {
	if fee == nil || fee.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	distributed := big.NewInt(0)
	current := start
	for level := 0; level < payoutLevels; level++ {
		ancestor, ok, err := d.registry.Referrer(st, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		share := new(big.Int).Mul(fee, big.NewInt(int64(payoutPPM[level])))
		share.Quo(share, big.NewInt(payoutDenominator))
		if share.Sign() > 0 {
			if err := st.Transfer(payer[:], ancestor[:], asset, share); err != nil {
				// An undeliverable level forfeits its share to the treasury
				// remainder rather than aborting the whole settlement.
				d.log.Warn("referral reward undeliverable",
					slog.String("recipient", ancestor.Hex()),
					slog.Int("level", level),
					slog.Any("error", err))
				st.AppendEvent(events.ReferralRewardSkipped{
					Recipient: ancestor,
					Level:     level,
					Asset:     asset,
					Amount:    share,
					Reason:    err.Error(),
				}.Event())
			} else {
				distributed.Add(distributed, share)
				if err := d.accrue(st, ancestor, asset, share); err != nil {
					return nil, err
				}
				st.AppendEvent(events.ReferralReward{
					Origin:    start,
					Recipient: ancestor,
					Level:     level,
					Asset:     asset,
					Amount:    share,
				}.Event())
			}
		}
		current = ancestor
	}
	return distributed, nil
}

func (d *Distributor) accrue(st *state.Manager, addr common.Address, asset string, amount *big.Int) error {
	accrued, err := d.registry.Accrued(st, addr, asset)
	if err != nil {
		return err
	}
	return st.KVPut(state.ReferralAccruedKey(addr[:], asset), new(big.Int).Add(accrued, amount))
}
