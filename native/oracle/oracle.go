package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInsufficientObservations indicates too few fresh quotes were available
	// to price the asset.
	ErrInsufficientObservations = errors.New("oracle: insufficient price observations")
	// ErrInvalidObservations indicates a feed reported a non-positive rate.
	ErrInvalidObservations = errors.New("oracle: invalid price observations")
)

// Quote captures a USD exchange rate for one asset along with the timestamp
// reported by the upstream feed and the feed identifier.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// PriceOracle resolves the latest USD price for the provided asset symbol.
type PriceOracle interface {
	LatestPrice(symbol string) (Quote, error)
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Aggregator consults registered feeds in priority order and answers with the
// median of the fresh observations. It refuses to price an asset when fewer
// than the configured minimum number of fresh quotes are available.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]PriceOracle
	maxAge   time.Duration
	minObs   int
	now      func() time.Time
}

// NewAggregator constructs an aggregator with the supplied freshness window
// and minimum observation count. A minObs below one is coerced to one.
func NewAggregator(maxAge time.Duration, minObs int) *Aggregator {
	if minObs < 1 {
		minObs = 1
	}
	return &Aggregator{
		priority: []string{},
		feeds:    make(map[string]PriceOracle),
		maxAge:   maxAge,
		minObs:   minObs,
		now:      time.Now,
	}
}

// SetClock overrides the aggregator clock, primarily for deterministic testing.
func (a *Aggregator) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Identifiers
// are stored in lowercase so lookups remain consistent regardless of the
// configuration casing.
func (a *Aggregator) Register(name string, feed PriceOracle) {
	if a == nil || feed == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if entry == trimmed {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// LatestPrice gathers one quote per feed, drops stale entries, and returns the
// median of the survivors.
func (a *Aggregator) LatestPrice(symbol string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("oracle: symbol required")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	minObs := a.minObs
	now := a.now()
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}

	fresh := make([]Quote, 0, len(priority))
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[name]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.LatestPrice(sym)
		if err != nil {
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			return Quote{}, fmt.Errorf("%w: feed %s reported %s", ErrInvalidObservations, name, sym)
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		fresh = append(fresh, result)
	}

	if len(fresh) < minObs {
		return Quote{}, fmt.Errorf("%w: %d/%d fresh quotes for %s", ErrInsufficientObservations, len(fresh), minObs, sym)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Rate.Cmp(fresh[j].Rate) < 0
	})
	return fresh[len(fresh)/2].Clone(), nil
}

// ManualFeed provides an in-memory feed used for genesis seeding and manual
// overrides during incident response.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[string]Quote)}
}

// SetDecimal records the supplied decimal rate for the symbol at the provided
// timestamp.
func (m *ManualFeed) SetDecimal(symbol, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual feed not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual feed: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual feed: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("%w: manual rate %q", ErrInvalidObservations, rate)
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("manual feed: symbol required")
	}
	m.mu.Lock()
	m.quotes[sym] = Quote{Rate: rat, Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
	return nil
}

// LatestPrice implements the PriceOracle interface.
func (m *ManualFeed) LatestPrice(symbol string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual feed not configured")
	}
	m.mu.RLock()
	quote, ok := m.quotes[normaliseSymbol(symbol)]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: no manual quote for %s", ErrInsufficientObservations, symbol)
	}
	return quote.Clone(), nil
}
