package logger

import (
	"strconv"
	"strings"
	"sync"
)

// sampler lets keep out of every events through. A zero ratio keeps all.
type sampler struct {
	mu    sync.Mutex
	keep  int
	every int
	n     int
}

func newSampler(keep, every int) *sampler {
	s := &sampler{}
	s.set(keep, every)
	return s
}

func (s *sampler) set(keep, every int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep <= 0 || every <= 0 {
		keep, every = 0, 0
	}
	s.keep = min(keep, every)
	s.every = every
	s.n = 0
}

func (s *sampler) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.every == 0 {
		return true
	}
	ok := s.n < s.keep
	s.n = (s.n + 1) % s.every
	return ok
}

// parseRatio reads "1/50", "50" (one in fifty) or "all". ok is false for
// anything else.
func parseRatio(spec string) (keep, every int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "all", "off", "0":
		return 0, 0, true
	}
	if a, b, found := strings.Cut(spec, "/"); found {
		k, err1 := strconv.Atoi(strings.TrimSpace(a))
		e, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || k <= 0 || e <= 0 {
			return 0, 0, false
		}
		return k, e, true
	}
	e, err := strconv.Atoi(spec)
	if err != nil || e <= 0 {
		return 0, 0, false
	}
	return 1, e, true
}
