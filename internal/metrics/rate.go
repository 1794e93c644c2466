package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Rate tracks the share of true samples among all samples added.
type Rate struct {
	name  string
	trues atomic.Int64
	total atomic.Int64
}

// RateStats is a point-in-time view of a Rate.
type RateStats struct {
	Name  string  `json:"name"`
	Trues int64   `json:"trues"`
	Total int64   `json:"total"`
	Rate  float64 `json:"rate"`
}

func newRate(name string) *Rate {
	return &Rate{name: name}
}

// Add records one sample.
func (r *Rate) Add(value bool) {
	if value {
		r.trues.Add(1)
	}
	r.total.Add(1)
}

// Stats returns the current counts. Rate is 0 when no samples were added.
func (r *Rate) Stats() RateStats {
	trues := r.trues.Load()
	total := r.total.Load()
	s := RateStats{Name: r.name, Trues: trues, Total: total}
	if total > 0 {
		s.Rate = float64(trues) / float64(total)
	}
	return s
}

// rateSet is a get-or-create registry of named rates.
type rateSet struct {
	mu    sync.RWMutex
	rates map[string]*Rate
}

func (s *rateSet) get(name string) *Rate {
	s.mu.RLock()
	r, ok := s.rates[name]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rates == nil {
		s.rates = make(map[string]*Rate)
	}
	if r, ok = s.rates[name]; ok {
		return r
	}
	r = newRate(name)
	s.rates[name] = r
	return r
}

func (s *rateSet) snapshot() map[string]RateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rates) == 0 {
		return nil
	}
	out := make(map[string]RateStats, len(s.rates))
	for name, r := range s.rates {
		out[name] = r.Stats()
	}
	return out
}

// SortedRateNames returns the keys of rates in lexical order.
func SortedRateNames(rates map[string]RateStats) []string {
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
