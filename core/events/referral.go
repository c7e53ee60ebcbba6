package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/types"
)

const (
	// TypeReferralRegistered is emitted when a new referrer edge is created.
	TypeReferralRegistered = "referral.registered"
	// TypeSellerUpdated is emitted when the approved-seller flag changes.
	TypeSellerUpdated = "referral.seller_updated"
	// TypeReferralReward is emitted per ancestor payout during distribution.
	TypeReferralReward = "referral.reward"
	// TypeReferralRewardSkipped is emitted when a level payout could not be delivered.
	TypeReferralRewardSkipped = "referral.reward_skipped"
)

type ReferralRegistered struct {
	Caller   common.Address
	Referrer common.Address
}

func (ReferralRegistered) EventType() string { return TypeReferralRegistered }

func (e ReferralRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralRegistered,
		Attributes: map[string]string{
			"caller":   e.Caller.Hex(),
			"referrer": e.Referrer.Hex(),
		},
	}
}

type SellerUpdated struct {
	Seller   common.Address
	Approved bool
}

func (SellerUpdated) EventType() string { return TypeSellerUpdated }

func (e SellerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSellerUpdated,
		Attributes: map[string]string{
			"seller":   e.Seller.Hex(),
			"approved": strconv.FormatBool(e.Approved),
		},
	}
}

type ReferralReward struct {
	Origin    common.Address
	Recipient common.Address
	Level     int
	Asset     string
	Amount    *big.Int
}

func (ReferralReward) EventType() string { return TypeReferralReward }

func (e ReferralReward) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralReward,
		Attributes: map[string]string{
			"origin":    e.Origin.Hex(),
			"recipient": e.Recipient.Hex(),
			"level":     strconv.Itoa(e.Level),
			"asset":     e.Asset,
			"amount":    bigString(e.Amount),
		},
	}
}

type ReferralRewardSkipped struct {
	Recipient common.Address
	Level     int
	Asset     string
	Amount    *big.Int
	Reason    string
}

func (ReferralRewardSkipped) EventType() string { return TypeReferralRewardSkipped }

func (e ReferralRewardSkipped) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralRewardSkipped,
		Attributes: map[string]string{
			"recipient": e.Recipient.Hex(),
			"level":     strconv.Itoa(e.Level),
			"asset":     e.Asset,
			"amount":    bigString(e.Amount),
			"reason":    e.Reason,
		},
	}
}
