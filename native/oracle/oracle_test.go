package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestAggregatorMedianOfFreshQuotes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(time.Minute, 2)
	agg.SetClock(func() time.Time { return now })

	first := NewManualFeed()
	second := NewManualFeed()
	third := NewManualFeed()
	if err := first.SetDecimal("ABC", "1.00", now); err != nil {
		t.Fatalf("seed first: %v", err)
	}
	if err := second.SetDecimal("ABC", "1.10", now); err != nil {
		t.Fatalf("seed second: %v", err)
	}
	if err := third.SetDecimal("ABC", "1.20", now); err != nil {
		t.Fatalf("seed third: %v", err)
	}
	agg.Register("first", first)
	agg.Register("second", second)
	agg.Register("third", third)

	quote, err := agg.LatestPrice("abc")
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	want := new(big.Rat).SetFrac64(11, 10)
	if quote.Rate.Cmp(want) != 0 {
		t.Fatalf("expected median 1.10, got %s", quote.Rate.RatString())
	}
}

func TestAggregatorRejectsStaleQuotes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(time.Minute, 2)
	agg.SetClock(func() time.Time { return now })

	fresh := NewManualFeed()
	stale := NewManualFeed()
	if err := fresh.SetDecimal("ABC", "2.00", now); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}
	if err := stale.SetDecimal("ABC", "9.00", now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	agg.Register("fresh", fresh)
	agg.Register("stale", stale)

	_, err := agg.LatestPrice("ABC")
	if !errors.Is(err, ErrInsufficientObservations) {
		t.Fatalf("expected insufficient observations, got %v", err)
	}
}

func TestAggregatorRejectsInvalidRate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(0, 1)
	agg.SetClock(func() time.Time { return now })
	agg.Register("bad", badFeed{})

	_, err := agg.LatestPrice("ABC")
	if !errors.Is(err, ErrInvalidObservations) {
		t.Fatalf("expected invalid observations, got %v", err)
	}
}

type badFeed struct{}

func (badFeed) LatestPrice(string) (Quote, error) {
	return Quote{Rate: big.NewRat(0, 1), Timestamp: time.Now()}, nil
}

func TestManualFeedUnknownSymbol(t *testing.T) {
	feed := NewManualFeed()
	if _, err := feed.LatestPrice("NOPE"); !errors.Is(err, ErrInsufficientObservations) {
		t.Fatalf("expected insufficient observations, got %v", err)
	}
}
