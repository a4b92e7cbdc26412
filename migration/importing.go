package migration

import (
	"github.com/google/uuid"

	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/stats"
)

// ImportingTask is C5, the destination-side mirror of MigratingTask.
// Grounded on scan_task.rs's RedisScanImportingTask: unlike its source-side
// counterpart it drives no polling loop of its own -- it is purely
// reactive, advanced only by HandleSwitch calls arriving from the source
// proxy's poll. Start/Stop exist solely to give it the same one-shot
// lifecycle gating as MigratingTask, so a caller can track and cancel it
// uniformly.
type ImportingTask struct {
	id    string
	meta  TaskMeta
	state *AtomicState
	stats *stats.MigrationStats

	router CommandRouter

	startTaken boolGate
	stopTaken  boolGate
}

// NewImportingTask builds a not-yet-started importing task, state PreCheck.
func NewImportingTask(meta TaskMeta, router CommandRouter) *ImportingTask {
	id := uuid.NewString()
	return &ImportingTask{
		id:     id,
		meta:   meta,
		state:  NewAtomicState(),
		stats:  stats.NewMigrationStats(id, string(meta.Cluster), meta.SrcNode, meta.DstNode),
		router: router,
	}
}

// ID returns the task's opaque correlation ID.
func (t *ImportingTask) ID() string { return t.id }

// Stats returns a point-in-time snapshot of this task's progress counters.
func (t *ImportingTask) Stats() stats.MigrationStatsExt { return t.stats.Snapshot() }

// Start marks the task as active. It has no work to do beyond the one-shot
// gate: all phase progress arrives via HandleSwitch.
func (t *ImportingTask) Start() error {
	if !t.startTaken.take() {
		return cmn.NewAlreadyStarted("importing %s<-%s already started", t.meta.DstNode, t.meta.SrcNode)
	}
	return nil
}

// Stop retires the task. One-shot, like MigratingTask.Stop.
func (t *ImportingTask) Stop() error {
	if !t.stopTaken.take() {
		return cmn.NewAlreadyEnded("importing %s<-%s already stopped", t.meta.DstNode, t.meta.SrcNode)
	}
	return nil
}

// State returns the task's current phase.
func (t *ImportingTask) State() State {
	return t.state.Load()
}

// HandleSwitch is the UMCTL PRECHECK/PRESWITCH/FINALSWITCH entry point: it
// jumps the local state directly to the phase named by sub, rejecting a
// version mismatch outright (no retry is possible once the two proxies
// disagree on wire version) and otherwise relying on AtomicState.Set's
// monotonic, idempotent-on-current-value semantics -- a stale duplicate
// delivery of a sub-command already applied is a no-op, never an error.
func (t *ImportingTask) HandleSwitch(arg SwitchArg, sub SubCmd) error {
	if arg.Version != UMCTLVersion {
		return cmn.NewIncompatibleVersion("importing task version mismatch: got %q want %q", arg.Version, UMCTLVersion)
	}

	var target State
	switch sub {
	case SubCmdPreCheck:
		target = PreCheck
	case SubCmdPreSwitch:
		target = PreSwitch
	case SubCmdFinalSwitch:
		target = SwitchCommitted
	default:
		return cmn.NewInvalidKind("importing task: unknown sub-command %q", sub)
	}

	if t.state.Set(target) && target == SwitchCommitted {
		t.stats.Finish(false)
	}
	return nil
}

// Send mirrors MigratingTask.Send from the destination's point of view
// per §4.5: while still PreCheck the range isn't ready here yet, so
// commands redirect back to the source; once any later phase has landed,
// this node accepts the range and delivers the command locally.
func (t *ImportingTask) Send(cmd interface{}) error {
	if t.state.Load() == PreCheck {
		return t.router.Redirect(cmd, t.meta.SrcProxy)
	}
	return t.router.Forward(cmd)
}
