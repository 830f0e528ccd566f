package capability

import (
	"fmt"
	"math"
	"sync"
)

// LimitKind selects how a Limitation applies to its setting.
type LimitKind int

const (
	// LimitTop caps a setting from above.
	LimitTop LimitKind = iota
	// LimitBottom bounds a setting from below.
	LimitBottom
	// LimitReset removes both bounds.
	LimitReset
)

func (k LimitKind) String() string {
	switch k {
	case LimitTop:
		return "top"
	case LimitBottom:
		return "bottom"
	case LimitReset:
		return "reset"
	}
	return fmt.Sprintf("LimitKind(%d)", int(k))
}

// Limitation is a host-imposed bound on one plugin setting.
type Limitation struct {
	Setting string
	Kind    LimitKind
	Limit   int64
}

type bounds struct {
	lo, hi int64
}

// LimitSet accumulates limitations per setting. The zero value has no
// bounds and is safe for concurrent use.
type LimitSet struct {
	mu sync.RWMutex
	m  map[string]bounds
}

// Apply folds limits into the set in order.
func (s *LimitSet) Apply(limits []Limitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]bounds)
	}
	for _, l := range limits {
		b, ok := s.m[l.Setting]
		if !ok {
			b = bounds{lo: math.MinInt64, hi: math.MaxInt64}
		}
		switch l.Kind {
		case LimitTop:
			b.hi = l.Limit
		case LimitBottom:
			b.lo = l.Limit
		case LimitReset:
			delete(s.m, l.Setting)
			continue
		}
		s.m[l.Setting] = b
	}
}

// Bounds returns the bounds of setting and whether any are set.
func (s *LimitSet) Bounds(setting string) (lo, hi int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[setting]
	if !ok {
		return math.MinInt64, math.MaxInt64, false
	}
	return b.lo, b.hi, true
}

// Clamp restricts v to the bounds of setting.
func (s *LimitSet) Clamp(setting string, v int64) int64 {
	lo, hi, _ := s.Bounds(setting)
	return max(lo, min(v, hi))
}

// Check reports an error when v lies outside the bounds of setting.
func (s *LimitSet) Check(setting string, v int64) error {
	lo, hi, ok := s.Bounds(setting)
	if ok && (v < lo || v > hi) {
		return fmt.Errorf("%s = %d is outside the allowed range [%d, %d]", setting, v, lo, hi)
	}
	return nil
}
