package siteclear

import (
	"fmt"
	"strings"
	"sync/atomic"
)

type backendCounters struct {
	cleared atomic.Uint64
	failed  atomic.Uint64
}

// clearStats counts clear attempts per backend. A swallowed failure counts as
// failed, never as cleared.
type clearStats struct {
	counters map[Backend]*backendCounters
}

func newClearStats() *clearStats {
	s := &clearStats{counters: make(map[Backend]*backendCounters, len(Backends))}
	for _, b := range Backends {
		s.counters[b] = &backendCounters{}
	}
	return s
}

func (s *clearStats) Observe(b Backend, err error) {
	c, ok := s.counters[b]
	if !ok {
		return
	}
	if err != nil {
		c.failed.Add(1)
		return
	}
	c.cleared.Add(1)
}

// BackendStats is the snapshot of one backend's counters.
type BackendStats struct {
	Cleared uint64 `json:"cleared"`
	Failed  uint64 `json:"failed"`
}

// StatsSnapshot maps each backend to its counters.
type StatsSnapshot map[Backend]BackendStats

func (s *clearStats) Snapshot() StatsSnapshot {
	out := make(StatsSnapshot, len(s.counters))
	for b, c := range s.counters {
		out[b] = BackendStats{Cleared: c.cleared.Load(), Failed: c.failed.Load()}
	}
	return out
}

// String renders the snapshot in clear order, e.g. "events=2/0 cookies=1/1".
func (ss StatsSnapshot) String() string {
	parts := make([]string, 0, len(Backends))
	for _, b := range Backends {
		st := ss[b]
		parts = append(parts, fmt.Sprintf("%s=%d/%d", b, st.Cleared, st.Failed))
	}
	return strings.Join(parts, " ")
}
