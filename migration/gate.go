package migration

import "go.uber.org/atomic"

// boolGate is a one-shot latch: take() returns true exactly once across the
// gate's lifetime, false on every subsequent call. Used to give Start/Stop
// their "AtomicOption::take" one-shot semantics without an actual channel
// handoff, since nothing downstream needs the taken value itself.
type boolGate struct {
	taken atomic.Bool
}

func (g *boolGate) take() bool {
	return g.taken.CAS(false, true)
}
