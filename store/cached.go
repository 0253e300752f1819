package store

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
)

// CachedSource wraps a RuleSource with a short-lived snapshot per scope, so
// per-message evaluation does not hit the database on every event. Rule and
// exemption writes call Invalidate to keep the "always fresh enough"
// behavior; otherwise entries simply expire.
//
// Fetch errors are never cached.
type CachedSource struct {
	inner      engine.RuleSource
	rulesCache *expirable.LRU[string, []rules.Rule]
	exemptions *expirable.LRU[string, []rules.Exemption]
}

var _ engine.RuleSource = (*CachedSource)(nil)

func NewCachedSource(inner engine.RuleSource, size int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner:      inner,
		rulesCache: expirable.NewLRU[string, []rules.Rule](size, nil, ttl),
		exemptions: expirable.NewLRU[string, []rules.Exemption](size, nil, ttl),
	}
}

func scopeKey(companyID string, productID *string) string {
	if productID == nil {
		return companyID
	}
	return companyID + "/" + *productID
}

func (c *CachedSource) ListEnabledRules(ctx context.Context, companyID string, productID *string) ([]rules.Rule, error) {
	key := scopeKey(companyID, productID)
	if cached, ok := c.rulesCache.Get(key); ok {
		return cached, nil
	}
	fresh, err := c.inner.ListEnabledRules(ctx, companyID, productID)
	if err != nil {
		return nil, err
	}
	c.rulesCache.Add(key, fresh)
	return fresh, nil
}

func (c *CachedSource) ListExemptions(ctx context.Context, companyID string) ([]rules.Exemption, error) {
	if cached, ok := c.exemptions.Get(companyID); ok {
		return cached, nil
	}
	fresh, err := c.inner.ListExemptions(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.exemptions.Add(companyID, fresh)
	return fresh, nil
}

// Invalidate drops every snapshot for a company. Cheap enough to call on
// any rule or exemption write.
func (c *CachedSource) Invalidate(companyID string) {
	for _, key := range c.rulesCache.Keys() {
		if key == companyID || strings.HasPrefix(key, companyID+"/") {
			c.rulesCache.Remove(key)
		}
	}
	c.exemptions.Remove(companyID)
}
