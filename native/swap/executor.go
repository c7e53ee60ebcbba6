package swap

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"settlenet/core/events"
	"settlenet/core/state"
	"settlenet/native/oracle"
	"settlenet/native/referral"
	"settlenet/native/venue"
)

// ExecutorConfig wires the executor's collaborators and policy knobs.
type ExecutorConfig struct {
	Venues      *venue.Registry
	Oracle      oracle.PriceOracle
	Distributor *referral.Distributor
	// Custody is the account intermediate hop outputs accumulate in.
	Custody common.Address
	// Treasury receives seized funds and undistributed fee remainders.
	Treasury common.Address
	// FeePpm is the settlement fee in parts per million of the USD value gain.
	FeePpm uint64
	// HopDeadline bounds each hop's execution; zero disables the deadline.
	HopDeadline time.Duration
	Log         *slog.Logger
}

// Executor drives one settlement request through funding, routing, fee
// collection, and recovery. Structural faults (unknown venue, malformed
// route, oracle failures) return an error and the caller must discard the
// journal; per-request faults settle as a failed outcome with the sender
// refunded, and the journal stays valid for the rest of the batch.
type Executor struct {
	venues      *venue.Registry
	oracle      oracle.PriceOracle
	distributor *referral.Distributor
	custody     common.Address
	treasury    common.Address
	feePpm      uint64
	hopDeadline time.Duration
	log         *slog.Logger
}

// NewExecutor builds an executor from the supplied configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		venues:      cfg.Venues,
		oracle:      cfg.Oracle,
		distributor: cfg.Distributor,
		custody:     cfg.Custody,
		treasury:    cfg.Treasury,
		feePpm:      cfg.FeePpm,
		hopDeadline: cfg.HopDeadline,
		log:         log,
	}
}

// ExecuteBatch settles the requests in order against one shared journal and
// reports the per-request outcomes. Any error aborts the whole batch.
func (e *Executor) ExecuteBatch(st *state.Manager, reqs []*SwapRequest) ([]bool, error) {
	outcomes := make([]bool, len(reqs))
	senders := make([]common.Address, len(reqs))
	for i, req := range reqs {
		ok, err := e.Execute(st, req)
		if err != nil {
			return nil, err
		}
		outcomes[i] = ok
		senders[i] = req.Sender
	}
	st.AppendEvent(events.BatchSettled{
		BatchID:  uuid.NewString(),
		Senders:  senders,
		Outcomes: outcomes,
	}.Event())
	return outcomes, nil
}

// Execute settles one request. The boolean is the request outcome; an error
// means the whole call is invalid and must roll back.
func (e *Executor) Execute(st *state.Manager, req *SwapRequest) (bool, error) {
	adapters, err := e.resolveRoute(req)
	if err != nil {
		return false, err
	}
	tokenIn := req.Steps[0].TokenIn
	tokenOut := req.Steps[len(req.Steps)-1].TokenOut

	// The input leg is priced before funding so a dead oracle aborts the call
	// while every sender still holds their funds.
	priceIn, err := e.oracle.LatestPrice(tokenIn)
	if err != nil {
		return false, err
	}
	snapshot, err := e.custodySnapshot(st, req)
	if err != nil {
		return false, err
	}

	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		st.AppendEvent(events.SwapFailed{
			Sender: req.Sender,
			Token:  tokenIn,
			Amount: req.AmountIn,
			Reason: "non-positive input amount",
		}.Event())
		return false, nil
	}
	if err := st.Transfer(req.Sender[:], e.custody[:], tokenIn, req.AmountIn); err != nil {
		st.AppendEvent(events.SwapFailed{
			Sender: req.Sender,
			Token:  tokenIn,
			Amount: req.AmountIn,
			Reason: err.Error(),
		}.Event())
		return false, nil
	}

	var deadline time.Time
	if e.hopDeadline > 0 {
		deadline = time.Now().Add(e.hopDeadline)
	}
	carry := new(big.Int).Set(req.AmountIn)
	for i, step := range req.Steps {
		receiver := e.custody
		if i == len(req.Steps)-1 {
			receiver = req.Sender
		}
		before, err := st.Balance(receiver[:], step.TokenOut)
		if err != nil {
			return false, err
		}
		_, ok := adapters[i].Execute(&venue.ExecContext{
			State:        st,
			TokenIn:      step.TokenIn,
			TokenOut:     step.TokenOut,
			AmountIn:     carry,
			Payer:        e.custody,
			Receiver:     receiver,
			MinAmountOut: step.MinAmountOut,
			Deadline:     deadline,
			Routing:      step.RoutingData,
		})
		if !ok {
			e.recover(st, req, i, step.TokenIn, carry)
			return false, nil
		}
		after, err := st.Balance(receiver[:], step.TokenOut)
		if err != nil {
			return false, err
		}
		// The hop output is measured as the receiver's balance delta, not
		// trusted from the adapter. A same-token hop paying back into custody
		// deflates the delta by the input that just left, so add it back.
		measured := new(big.Int).Sub(after, before)
		reserved := big.NewInt(0)
		if step.TokenIn == step.TokenOut && receiver == e.custody {
			measured.Add(measured, carry)
			// The carried output sits in custody in the same asset and must
			// not be mistaken for unconsumed input.
			reserved = measured
		}
		if err := e.sweepInputResidual(st, req.Sender, step.TokenIn, snapshot[step.TokenIn], reserved); err != nil {
			return false, err
		}
		carry = measured
	}
	amountOut := carry

	priceOut, err := e.oracle.LatestPrice(tokenOut)
	if err != nil {
		return false, err
	}
	fee := ComputeFee(req.AmountIn, priceIn.Rate, amountOut, priceOut.Rate, e.feePpm)
	rewards := big.NewInt(0)
	if fee.Sign() > 0 {
		collected, distributed, err := e.collectFee(st, req.Sender, tokenOut, fee)
		if err != nil {
			return false, err
		}
		fee = collected
		rewards = distributed
	}

	st.AppendEvent(events.SwapExecuted{
		Sender:    req.Sender,
		TokenIn:   tokenIn,
		AmountIn:  req.AmountIn,
		TokenOut:  tokenOut,
		AmountOut: amountOut,
		Fee:       fee,
		Rewards:   rewards,
	}.Event())
	return true, nil
}

// resolveRoute validates the route shape and binds every step to its adapter
// before any state is touched.
func (e *Executor) resolveRoute(req *SwapRequest) ([]venue.Adapter, error) {
	if req == nil || len(req.Steps) == 0 {
		return nil, fmt.Errorf("%w: empty route", ErrLengthMismatch)
	}
	adapters := make([]venue.Adapter, len(req.Steps))
	for i, step := range req.Steps {
		if step.TokenIn == "" || step.TokenOut == "" {
			return nil, fmt.Errorf("%w: hop %d missing token pair", ErrLengthMismatch, i)
		}
		if i > 0 && req.Steps[i-1].TokenOut != step.TokenIn {
			return nil, fmt.Errorf("%w: hop %d consumes %s but previous hop yields %s",
				ErrLengthMismatch, i, step.TokenIn, req.Steps[i-1].TokenOut)
		}
		adapter, ok := e.venues.Lookup(step.Venue)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedVenue, step.Venue)
		}
		adapters[i] = adapter
	}
	return adapters, nil
}

// collectFee moves the fee from the sender, pays referral rewards out of it,
// and forwards the remainder to the treasury. A sender that cannot surrender
// the fee still settles; the miss is reported instead.
func (e *Executor) collectFee(st *state.Manager, sender common.Address, asset string, fee *big.Int) (*big.Int, *big.Int, error) {
	if err := st.Transfer(sender[:], e.custody[:], asset, fee); err != nil {
		e.log.Warn("fee collection skipped",
			slog.String("sender", sender.Hex()),
			slog.String("asset", asset),
			slog.Any("error", err))
		st.AppendEvent(events.FeeSkipped{
			Sender: sender,
			Token:  asset,
			Amount: fee,
			Reason: err.Error(),
		}.Event())
		return big.NewInt(0), big.NewInt(0), nil
	}
	rewards, err := e.distributor.Distribute(st, e.custody, sender, asset, fee)
	if err != nil {
		return nil, nil, err
	}
	leftover := new(big.Int).Sub(fee, rewards)
	if leftover.Sign() > 0 {
		if err := st.ForceTransfer(e.custody[:], e.treasury[:], asset, leftover); err != nil {
			return nil, nil, err
		}
	}
	if err := accrueFee(st, asset, fee); err != nil {
		return nil, nil, err
	}
	return fee, rewards, nil
}

// recover refunds what custody holds for a failed request. An undeliverable
// refund is seized to the treasury so funds never strand in custody.
func (e *Executor) recover(st *state.Manager, req *SwapRequest, hop int, token string, amount *big.Int) {
	reason := "venue execution failed"
	if amount.Sign() > 0 {
		if err := st.Transfer(e.custody[:], req.Sender[:], token, amount); err != nil {
			if serr := st.ForceTransfer(e.custody[:], e.treasury[:], token, amount); serr != nil {
				e.log.Error("seizure failed, funds stranded in custody",
					slog.String("token", token),
					slog.String("amount", amount.String()),
					slog.Any("error", serr))
			} else {
				st.AppendEvent(events.FundsSeized{
					Account: req.Sender,
					Token:   token,
					Amount:  amount,
					Reason:  err.Error(),
				}.Event())
				reason = "refund undeliverable, funds seized"
			}
		}
	}
	st.AppendEvent(events.SwapFailed{
		Sender: req.Sender,
		Hop:    hop,
		Token:  token,
		Amount: amount,
		Reason: reason,
	}.Event())
}

// custodySnapshot records custody's balance in every token the route touches
// so the residual sweeps can tell this request's leftovers from pre-existing
// holdings.
func (e *Executor) custodySnapshot(st *state.Manager, req *SwapRequest) (map[string]*big.Int, error) {
	snapshot := make(map[string]*big.Int, len(req.Steps)+1)
	for _, token := range routeTokens(req) {
		balance, err := st.Balance(e.custody[:], token)
		if err != nil {
			return nil, err
		}
		snapshot[token] = balance
	}
	return snapshot, nil
}

// sweepInputResidual returns input the venue did not consume to the sender.
// reserved is the portion of custody's balance that is actually the next
// hop's carry. An undeliverable sweep is seized to the treasury.
func (e *Executor) sweepInputResidual(st *state.Manager, sender common.Address, token string, baseline, reserved *big.Int) error {
	balance, err := st.Balance(e.custody[:], token)
	if err != nil {
		return err
	}
	excess := new(big.Int).Sub(balance, baseline)
	excess.Sub(excess, reserved)
	if excess.Sign() <= 0 {
		return nil
	}
	if err := st.Transfer(e.custody[:], sender[:], token, excess); err != nil {
		if serr := st.ForceTransfer(e.custody[:], e.treasury[:], token, excess); serr != nil {
			return serr
		}
		st.AppendEvent(events.FundsSeized{
			Account: sender,
			Token:   token,
			Amount:  excess,
			Reason:  err.Error(),
		}.Event())
	}
	return nil
}

// routeTokens lists the distinct tokens on the route in path order.
func routeTokens(req *SwapRequest) []string {
	seen := make(map[string]bool, len(req.Steps)+1)
	tokens := make([]string, 0, len(req.Steps)+1)
	add := func(token string) {
		if !seen[token] {
			seen[token] = true
			tokens = append(tokens, token)
		}
	}
	for _, step := range req.Steps {
		add(step.TokenIn)
		add(step.TokenOut)
	}
	return tokens
}
