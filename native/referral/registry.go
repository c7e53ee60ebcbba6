package referral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/events"
	"settlenet/core/state"
)

const (
	// maxReferralDepth bounds the ancestor walk performed at registration time.
	maxReferralDepth = 6
	// payoutLevels is the number of ancestor levels eligible for rewards.
	payoutLevels = 5
	// payoutDenominator scales the parts-per-million payout table.
	payoutDenominator = 1_000_000
)

// payoutPPM is the fixed payout schedule: level i receives
// fee * payoutPPM[i] / payoutDenominator. The table sums to 625000 ppm.
var payoutPPM = [payoutLevels]uint32{350000, 150000, 75000, 35000, 15000}

// Percentages returns the fixed five-level payout schedule in parts per million.
func Percentages() [payoutLevels]uint32 {
	return payoutPPM
}

// Registry maintains the referrer forest and the approved-seller set. All
// methods operate on the state manager of the enclosing call.
type Registry struct{}

// NewRegistry creates a referral registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetApprovedSeller toggles the approved-seller flag for the address. The
// toggle is unconditional; the forest invariants are enforced at registration.
func (r *Registry) SetApprovedSeller(st *state.Manager, seller common.Address, approved bool) error {
	if err := st.KVPut(state.ReferralSellerKey(seller[:]), approved); err != nil {
		return err
	}
	st.AppendEvent(events.SellerUpdated{Seller: seller, Approved: approved}.Event())
	return nil
}

// IsApprovedSeller reports whether the address is flagged as a seller.
func (r *Registry) IsApprovedSeller(st *state.Manager, addr common.Address) bool {
	var approved bool
	ok, err := st.KVGet(state.ReferralSellerKey(addr[:]), &approved)
	return err == nil && ok && approved
}

// Referrer returns the referrer edge for the address, if one exists.
func (r *Registry) Referrer(st *state.Manager, addr common.Address) (common.Address, bool, error) {
	var referrer common.Address
	ok, err := st.KVGet(state.ReferralEdgeKey(addr[:]), &referrer)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	return referrer, true, nil
}

// Register creates the caller's referrer edge. The referrer must be an
// approved seller, the caller must not be one, the edge must be the caller's
// first, and the caller must not already appear in the referrer's ancestor
// chain within maxReferralDepth hops.
func (r *Registry) Register(st *state.Manager, caller, referrer common.Address) error {
	if !r.IsApprovedSeller(st, referrer) {
		return ErrNotApprovedSeller
	}
	if r.IsApprovedSeller(st, caller) {
		return ErrSellerCannotSetReferrer
	}
	if _, exists, err := r.Referrer(st, caller); err != nil {
		return err
	} else if exists {
		return ErrAlreadyRegistered
	}
	current := referrer
	for i := 0; i < maxReferralDepth; i++ {
		if current == caller {
			return ErrCircularReferral
		}
		next, ok, err := r.Referrer(st, current)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		current = next
	}
	if err := st.KVPut(state.ReferralEdgeKey(caller[:]), referrer); err != nil {
		return err
	}
	st.AppendEvent(events.ReferralRegistered{Caller: caller, Referrer: referrer}.Event())
	return nil
}

// Accrued returns the cumulative rewards credited to (addr, asset).
func (r *Registry) Accrued(st *state.Manager, addr common.Address, asset string) (*big.Int, error) {
	accrued := new(big.Int)
	ok, err := st.KVGet(state.ReferralAccruedKey(addr[:], asset), accrued)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return accrued, nil
}
