// Package migration implements C2-C5: the per-task migration state word,
// the scan-migration engine, and the migrating/importing phase drivers.
package migration

import "go.uber.org/atomic"

// State is the migration phase, ordered PreCheck < PreBlocking < PreSwitch <
// Scanning < FinalSwitch < SwitchCommitted.
type State uint32

const (
	PreCheck State = iota
	PreBlocking
	PreSwitch
	Scanning
	FinalSwitch
	SwitchCommitted
)

func (s State) String() string {
	switch s {
	case PreCheck:
		return "PreCheck"
	case PreBlocking:
		return "PreBlocking"
	case PreSwitch:
		return "PreSwitch"
	case Scanning:
		return "Scanning"
	case FinalSwitch:
		return "FinalSwitch"
	case SwitchCommitted:
		return "SwitchCommitted"
	default:
		return "Unknown"
	}
}

// AtomicState holds a State in an atomic word. Transitions are gated by
// compare-and-set against the exact expected predecessor, never a blind
// store: the original source (original_source/src/migration/task.rs's
// AtomicMigrationState) stores blindly; the Design Notes call that out for
// tightening, because a blind store lets a late-arriving retry clobber a
// state a faster peer-ack already advanced past. CAS makes an out-of-order
// set a silent no-op instead of a corruption, matching §4.2's "out-of-order
// sets are ignored (no error)".
type AtomicState struct {
	v atomic.Uint32
}

// NewAtomicState constructs a state word initialized to PreCheck.
func NewAtomicState() *AtomicState {
	a := &AtomicState{}
	a.v.Store(uint32(PreCheck))
	return a
}

func (a *AtomicState) Load() State { return State(a.v.Load()) }

// Advance moves the state from its current value to next iff next is
// exactly the successor of the current value. Returns false (no-op) if the
// state has already moved past, or isn't yet at, the expected predecessor.
func (a *AtomicState) Advance(next State) bool {
	cur := State(a.v.Load())
	if next != cur+1 {
		return false
	}
	return a.v.CAS(uint32(cur), uint32(next))
}

// Set forces the state to an exact value iff it is currently strictly less
// than value. Used by the importing side's handle_switch, which receives an
// absolute sub-command (PreCheck/PreSwitch/FinalSwitch) rather than driving
// an adjacent-only state machine locally (§4.5: "PreCheck -> sets state to
// PreCheck (idempotent)"). Monotonicity is preserved: Set never moves state
// backward.
func (a *AtomicState) Set(value State) bool {
	for {
		cur := State(a.v.Load())
		if value <= cur {
			return value == cur // idempotent re-set of the current value succeeds
		}
		if a.v.CAS(uint32(cur), uint32(value)) {
			return true
		}
	}
}
