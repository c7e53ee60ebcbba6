package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/types"
)

const (
	// TypeSwapExecuted is emitted when a request settles successfully.
	TypeSwapExecuted = "swap.executed"
	// TypeSwapFailed is emitted when a request terminates without settling.
	TypeSwapFailed = "swap.failed"
	// TypeFundsSeized is emitted when a refund or sweep could not complete and
	// the stuck balance was forwarded to the treasury.
	TypeFundsSeized = "swap.seized"
	// TypeFeeSkipped is emitted when a settled request could not surrender its fee.
	TypeFeeSkipped = "swap.fee_skipped"
	// TypeBatchSettled is the aggregate report naming every request and its outcome.
	TypeBatchSettled = "swap.batch_settled"
)

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type SwapExecuted struct {
	Sender    common.Address
	TokenIn   string
	AmountIn  *big.Int
	TokenOut  string
	AmountOut *big.Int
	Fee       *big.Int
	Rewards   *big.Int
}

func (SwapExecuted) EventType() string { return TypeSwapExecuted }

func (e SwapExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapExecuted,
		Attributes: map[string]string{
			"sender":    e.Sender.Hex(),
			"tokenIn":   e.TokenIn,
			"amountIn":  bigString(e.AmountIn),
			"tokenOut":  e.TokenOut,
			"amountOut": bigString(e.AmountOut),
			"fee":       bigString(e.Fee),
			"rewards":   bigString(e.Rewards),
		},
	}
}

type SwapFailed struct {
	Sender common.Address
	Hop    int
	Token  string
	Amount *big.Int
	Reason string
}

func (SwapFailed) EventType() string { return TypeSwapFailed }

func (e SwapFailed) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapFailed,
		Attributes: map[string]string{
			"sender": e.Sender.Hex(),
			"hop":    strconv.Itoa(e.Hop),
			"token":  e.Token,
			"amount": bigString(e.Amount),
			"reason": e.Reason,
		},
	}
}

type FundsSeized struct {
	Account common.Address
	Token   string
	Amount  *big.Int
	Reason  string
}

func (FundsSeized) EventType() string { return TypeFundsSeized }

func (e FundsSeized) Event() *types.Event {
	return &types.Event{
		Type: TypeFundsSeized,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"token":   e.Token,
			"amount":  bigString(e.Amount),
			"reason":  e.Reason,
		},
	}
}

type FeeSkipped struct {
	Sender common.Address
	Token  string
	Amount *big.Int
	Reason string
}

func (FeeSkipped) EventType() string { return TypeFeeSkipped }

func (e FeeSkipped) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeSkipped,
		Attributes: map[string]string{
			"sender": e.Sender.Hex(),
			"token":  e.Token,
			"amount": bigString(e.Amount),
			"reason": e.Reason,
		},
	}
}

type BatchSettled struct {
	BatchID  string
	Senders  []common.Address
	Outcomes []bool
}

func (BatchSettled) EventType() string { return TypeBatchSettled }

func (e BatchSettled) Event() *types.Event {
	senders := make([]string, len(e.Senders))
	for i, sender := range e.Senders {
		senders[i] = sender.Hex()
	}
	outcomes := make([]string, len(e.Outcomes))
	for i, ok := range e.Outcomes {
		outcomes[i] = strconv.FormatBool(ok)
	}
	return &types.Event{
		Type: TypeBatchSettled,
		Attributes: map[string]string{
			"batchId":  e.BatchID,
			"requests": strconv.Itoa(len(e.Outcomes)),
			"senders":  strings.Join(senders, ","),
			"outcomes": strings.Join(outcomes, ","),
		},
	}
}
