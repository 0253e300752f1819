package store

import (
	"context"
	"sort"
	"sync"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
)

// MemStore is an in-memory RuleSource for tests and local experiments.
type MemStore struct {
	lk         sync.RWMutex
	rules      []rules.Rule
	exemptions []rules.Exemption
}

var _ engine.RuleSource = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) AddRule(r rules.Rule) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.rules = append(s.rules, r)
}

func (s *MemStore) AddExemption(e rules.Exemption) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.exemptions = append(s.exemptions, e)
}

func (s *MemStore) ListEnabledRules(ctx context.Context, companyID string, productID *string) ([]rules.Rule, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	var out []rules.Rule
	for _, r := range s.rules {
		if !r.Enabled || r.CompanyID != companyID {
			continue
		}
		if !sameProduct(r.ProductID, productID) {
			continue
		}
		r := r
		sort.SliceStable(r.Conditions, func(i, j int) bool {
			return r.Conditions[i].Priority > r.Conditions[j].Priority
		})
		sort.SliceStable(r.Actions, func(i, j int) bool {
			return r.Actions[i].Priority < r.Actions[j].Priority
		})
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out, nil
}

func (s *MemStore) ListExemptions(ctx context.Context, companyID string) ([]rules.Exemption, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	var out []rules.Exemption
	for _, e := range s.exemptions {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sameProduct(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
