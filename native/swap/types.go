package swap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapStep is one hop of a route: trade TokenIn for TokenOut on Venue.
// MinAmountOut of zero falls back to the adapter's 1-unit floor. RoutingData
// is opaque to the executor and handed to the adapter as-is.
type SwapStep struct {
	TokenIn      string
	TokenOut     string
	Venue        string
	MinAmountOut *big.Int
	RoutingData  []byte
}

// SwapRequest is one sender's settlement: fund AmountIn of the first step's
// input token and route it through every step in order.
type SwapRequest struct {
	Sender   common.Address
	AmountIn *big.Int
	Steps    []SwapStep
}

// NewRequest assembles a request from the parallel wire arrays: a token path
// of n+1 symbols, n venue selectors, and optional per-hop minimum outputs and
// routing payloads (nil, or exactly n entries each).
func NewRequest(sender common.Address, amountIn *big.Int, path, venues []string, minOuts []*big.Int, routing [][]byte) (*SwapRequest, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path needs at least two tokens", ErrLengthMismatch)
	}
	hops := len(path) - 1
	if len(venues) != hops {
		return nil, fmt.Errorf("%w: %d hops but %d venues", ErrLengthMismatch, hops, len(venues))
	}
	if minOuts != nil && len(minOuts) != hops {
		return nil, fmt.Errorf("%w: %d hops but %d minimum outputs", ErrLengthMismatch, hops, len(minOuts))
	}
	if routing != nil && len(routing) != hops {
		return nil, fmt.Errorf("%w: %d hops but %d routing payloads", ErrLengthMismatch, hops, len(routing))
	}
	steps := make([]SwapStep, hops)
	for i := 0; i < hops; i++ {
		steps[i] = SwapStep{TokenIn: path[i], TokenOut: path[i+1], Venue: venues[i]}
		if minOuts != nil {
			steps[i].MinAmountOut = minOuts[i]
		}
		if routing != nil {
			steps[i].RoutingData = routing[i]
		}
	}
	return &SwapRequest{Sender: sender, AmountIn: amountIn, Steps: steps}, nil
}
