// Package matching finds which outstanding receivables a payment settles.
//
// The search is a bounded, first-fit subset sum: candidates are walked
// depth first, left to right, with strictly increasing indexes, so the
// first combination found favours older receivables at shallower depth.
package matching

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxCandidates = 25
	DefaultMaxDepth      = 6
)

// DefaultTolerance absorbs rounding artifacts in payment exports.
var DefaultTolerance = decimal.RequireFromString("0.50")

// Candidate is one outstanding balance, in oldest-due-first order.
type Candidate struct {
	ID      uuid.UUID
	Balance decimal.Decimal
}

// MatchResult is the combination chosen for a payment.
type MatchResult struct {
	IDs     []uuid.UUID
	Indexes []int
	Total   decimal.Decimal
}

type Config struct {
	Tolerance     decimal.Decimal
	MaxCandidates int
	MaxDepth      int
}

func DefaultConfig() Config {
	return Config{
		Tolerance:     DefaultTolerance,
		MaxCandidates: DefaultMaxCandidates,
		MaxDepth:      DefaultMaxDepth,
	}
}

type Matcher struct {
	cfg Config
}

// NewMatcher replaces non-positive bounds and a negative tolerance with the
// defaults. A zero tolerance is kept and means exact matches only.
func NewMatcher(cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.Tolerance.IsNegative() {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	return &Matcher{cfg: cfg}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

// Match uses the default bounds.
func Match(target decimal.Decimal, candidates []Candidate) (MatchResult, bool) {
	return NewMatcher(DefaultConfig()).Match(target, candidates)
}

// Match returns the first combination of at most MaxDepth of the first
// MaxCandidates candidates whose balances sum to within Tolerance of target.
// Candidate order is never changed.
func (m *Matcher) Match(target decimal.Decimal, candidates []Candidate) (MatchResult, bool) {
	if !target.IsPositive() || len(candidates) == 0 {
		return MatchResult{}, false
	}

	pool := candidates
	if len(pool) > m.cfg.MaxCandidates {
		pool = pool[:m.cfg.MaxCandidates]
	}

	s := search{
		pool:  pool,
		lower: target.Sub(m.cfg.Tolerance),
		upper: target.Add(m.cfg.Tolerance),
		depth: m.cfg.MaxDepth,
		path:  make([]int, 0, m.cfg.MaxDepth),
	}
	if !s.walk(0, decimal.Zero) {
		return MatchResult{}, false
	}

	res := MatchResult{
		IDs:     make([]uuid.UUID, len(s.path)),
		Indexes: append([]int(nil), s.path...),
		Total:   s.total,
	}
	for i, idx := range s.path {
		res.IDs[i] = pool[idx].ID
	}
	return res, true
}

type search struct {
	pool         []Candidate
	lower, upper decimal.Decimal
	depth        int
	path         []int
	total        decimal.Decimal
}

func (s *search) walk(start int, sum decimal.Decimal) bool {
	for i := start; i < len(s.pool); i++ {
		bal := s.pool[i].Balance
		if !bal.IsPositive() {
			continue
		}

		next := sum.Add(bal)
		// Balances are non-negative: once over the upper bound,
		// deeper additions along this branch only grow.
		if next.GreaterThan(s.upper) {
			continue
		}

		s.path = append(s.path, i)
		if next.GreaterThanOrEqual(s.lower) {
			s.total = next
			return true
		}
		if len(s.path) < s.depth && s.walk(i+1, next) {
			return true
		}
		s.path = s.path[:len(s.path)-1]
	}
	return false
}
