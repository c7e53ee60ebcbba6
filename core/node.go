package core

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/core/events"
	"settlenet/core/state"
	"settlenet/core/types"
	"settlenet/native/oracle"
	"settlenet/native/referral"
	"settlenet/native/swap"
	"settlenet/native/venue"
	"settlenet/observability/metrics"
	"settlenet/storage"
)

// NodeConfig wires the node's storage, market access, and settlement policy.
type NodeConfig struct {
	DB       storage.Database
	Venues   *venue.Registry
	Oracle   oracle.PriceOracle
	Manual   *oracle.ManualFeed
	Custody  common.Address
	Treasury common.Address
	FeePpm   uint64
	// HopDeadline bounds each routed hop; zero disables the bound.
	HopDeadline time.Duration
	Log         *slog.Logger
	Emitter     events.Emitter
}

// Node is the call boundary of the settlement engine. Every entry point runs
// against a fresh journal: the journal commits and its events publish only
// when the whole call succeeds, so a structural fault leaves no trace.
type Node struct {
	mu          sync.Mutex
	db          storage.Database
	log         *slog.Logger
	emitter     events.Emitter
	manual      *oracle.ManualFeed
	registry    *referral.Registry
	distributor *referral.Distributor
	executor    *swap.Executor
	metrics     *metrics.SettlementMetrics
}

// NewNode assembles a node from the supplied configuration.
func NewNode(cfg NodeConfig) *Node {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	registry := referral.NewRegistry()
	distributor := referral.NewDistributor(registry, log)
	executor := swap.NewExecutor(swap.ExecutorConfig{
		Venues:      cfg.Venues,
		Oracle:      cfg.Oracle,
		Distributor: distributor,
		Custody:     cfg.Custody,
		Treasury:    cfg.Treasury,
		FeePpm:      cfg.FeePpm,
		HopDeadline: cfg.HopDeadline,
		Log:         log,
	})
	return &Node{
		db:          cfg.DB,
		log:         log,
		emitter:     emitter,
		manual:      cfg.Manual,
		registry:    registry,
		distributor: distributor,
		executor:    executor,
		metrics:     metrics.Settlement(),
	}
}

// withState runs fn against a fresh journal and commits on success. Events
// collected during the call publish only after the commit lands.
func (n *Node) withState(fn func(st *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := state.NewManager(n.db)
	if err := fn(st); err != nil {
		return err
	}
	if err := st.Commit(); err != nil {
		return err
	}
	n.publish(st.Events())
	return nil
}

// readState runs fn against a throwaway journal that is never committed.
func (n *Node) readState(fn func(st *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(state.NewManager(n.db))
}

func (n *Node) publish(evts []*types.Event) {
	for _, evt := range evts {
		n.emitter.Emit(evt)
		switch evt.Type {
		case events.TypeFundsSeized:
			n.metrics.ObserveSeizure()
		case events.TypeFeeSkipped:
			n.metrics.ObserveFeeSkipped()
		case events.TypeReferralReward:
			n.metrics.ObserveReward()
		case events.TypeBatchSettled:
			n.metrics.ObserveBatch()
		}
	}
}

// ExecuteBatch settles the requests in order and reports per-request
// outcomes. A structural fault aborts and rolls back the whole batch.
func (n *Node) ExecuteBatch(reqs []*swap.SwapRequest) ([]bool, error) {
	var outcomes []bool
	err := n.withState(func(st *state.Manager) error {
		result, err := n.executor.ExecuteBatch(st, reqs)
		if err != nil {
			return err
		}
		outcomes = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ok := range outcomes {
		n.metrics.ObserveSettlement(ok)
	}
	return outcomes, nil
}

// RegisterReferral creates the caller's referrer edge.
func (n *Node) RegisterReferral(caller, referrer common.Address) error {
	return n.withState(func(st *state.Manager) error {
		return n.registry.Register(st, caller, referrer)
	})
}

// SetApprovedSeller toggles the approved-seller flag for the address.
func (n *Node) SetApprovedSeller(seller common.Address, approved bool) error {
	return n.withState(func(st *state.Manager) error {
		return n.registry.SetApprovedSeller(st, seller, approved)
	})
}

// Referrer returns the referrer edge for the address, if one exists.
func (n *Node) Referrer(addr common.Address) (common.Address, bool, error) {
	var (
		referrer common.Address
		ok       bool
	)
	err := n.readState(func(st *state.Manager) error {
		var err error
		referrer, ok, err = n.registry.Referrer(st, addr)
		return err
	})
	return referrer, ok, err
}

// IsApprovedSeller reports whether the address is flagged as a seller.
func (n *Node) IsApprovedSeller(addr common.Address) (bool, error) {
	var approved bool
	err := n.readState(func(st *state.Manager) error {
		approved = n.registry.IsApprovedSeller(st, addr)
		return nil
	})
	return approved, err
}

// Percentages returns the fixed referral payout schedule in parts per million.
func (n *Node) Percentages() [5]uint32 {
	return referral.Percentages()
}

// AccruedRewards returns the cumulative referral rewards credited to the
// address in the asset.
func (n *Node) AccruedRewards(addr common.Address, asset string) (*big.Int, error) {
	var accrued *big.Int
	err := n.readState(func(st *state.Manager) error {
		var err error
		accrued, err = n.registry.Accrued(st, addr, asset)
		return err
	})
	return accrued, err
}

// FeesAccrued returns the cumulative settlement fee total for the asset.
func (n *Node) FeesAccrued(asset string) (*big.Int, error) {
	var total *big.Int
	err := n.readState(func(st *state.Manager) error {
		var err error
		total, err = swap.FeesAccrued(st, asset)
		return err
	})
	return total, err
}

// SetManualPrice records a manual oracle quote for the symbol.
func (n *Node) SetManualPrice(symbol, rate string) error {
	if n.manual == nil {
		return oracle.ErrInsufficientObservations
	}
	return n.manual.SetDecimal(symbol, rate, time.Now())
}
