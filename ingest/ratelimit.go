package ingest

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// limiterTable holds a token bucket per client identity, in a bounded LRU
// so a flood of distinct clients cannot grow memory without limit.
type limiterTable struct {
	buckets *lru.Cache[string, *rate.Limiter]
	perMin  int
}

func newLimiterTable(perMin int) *limiterTable {
	// error only fires for a non-positive size
	buckets, _ := lru.New[string, *rate.Limiter](10_000)
	return &limiterTable{
		buckets: buckets,
		perMin:  perMin,
	}
}

// Allow reports whether the client may proceed, refilling at perMin tokens
// per minute with a burst of the same size.
func (t *limiterTable) Allow(clientID string) bool {
	lim, ok := t.buckets.Get(clientID)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(t.perMin)/60.0), t.perMin)
		t.buckets.Add(clientID, lim)
	}
	return lim.Allow()
}
