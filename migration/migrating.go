package migration

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
	"github.com/undermoon-go/undermoon/stats"
)

// TaskMeta identifies one in-flight migration from the migrating (source)
// or importing (destination) side's point of view.
type TaskMeta struct {
	Cluster       cluster.ClusterName
	SrcProxy      string
	SrcNode       string
	DstProxy      string
	DstNode       string
	Epoch         uint64
	SlotRangeFrom uint64
	SlotRangeTo   uint64
}

// MigratingTask drives C4: the source-side handshake that pushes one slot
// range's data to a destination proxy and hands off ownership. Grounded on
// scan_task.rs's RedisScanMigratingTask, generalized from its futures-chain
// run() to a blocking call meant to be launched in its own goroutine, and
// from its AtomicOption-based one-shot stop signal to a closed-channel
// sentinel guarded by a pair of go.uber.org/atomic-backed CAS gates.
type MigratingTask struct {
	id    string
	meta  TaskMeta
	state *AtomicState
	stats *stats.MigrationStats

	peer   PeerClient
	router CommandRouter
	cfg    *cmn.Config
	engine *scanEngine

	startTaken boolGate
	stopTaken  boolGate
	stopCh     chan struct{}
}

// NewMigratingTask builds a not-yet-started migrating task, identified by a
// fresh opaque ID (used for log correlation and as the ID of its stats
// snapshot -- the store itself never sees it, since §4.6 derives
// migration identity purely from tagged slot ranges, not a side table).
// cursor and dst are the source-side scan backend and the destination
// restore sink exercised once scanning begins.
func NewMigratingTask(meta TaskMeta, peer PeerClient, router CommandRouter, cursor ScanCursor, dst Destination, r cluster.MigrationTaskMeta, cfg *cmn.Config) *MigratingTask {
	id := uuid.NewString()
	st := stats.NewMigrationStats(id, string(meta.Cluster), meta.SrcNode, meta.DstNode)
	return &MigratingTask{
		id:     id,
		meta:   meta,
		state:  NewAtomicState(),
		stats:  st,
		peer:   peer,
		router: router,
		cfg:    cfg,
		engine: newScanEngine(cursor, dst, r.SlotRange, cfg, st),
		stopCh: make(chan struct{}),
	}
}

// ID returns the task's opaque correlation ID.
func (t *MigratingTask) ID() string { return t.id }

// Stats returns a point-in-time snapshot of this task's progress counters.
func (t *MigratingTask) Stats() stats.MigrationStatsExt { return t.stats.Snapshot() }

// Start runs the full handshake to completion: PreCheck, PreBlocking,
// PreSwitch, Scanning, FinalSwitch, SwitchCommitted, in that order, each
// phase refusing to begin until the previous one's state transition has
// landed. It returns AlreadyStarted if called more than once on the same
// task (mirrors the Rust side's AtomicOption::take on the stop receiver).
func (t *MigratingTask) Start(ctx context.Context) error {
	if !t.startTaken.take() {
		return cmn.NewAlreadyStarted("migration %s->%s already started", t.meta.SrcNode, t.meta.DstNode)
	}
	return t.run(ctx)
}

// Stop requests cancellation. It is one-shot: a second call returns
// AlreadyEnded, matching send_stop_signal's behavior on an already-taken
// AtomicOption.
func (t *MigratingTask) Stop() error {
	if !t.stopTaken.take() {
		return cmn.NewAlreadyEnded("migration %s->%s already stopped", t.meta.SrcNode, t.meta.DstNode)
	}
	close(t.stopCh)
	return nil
}

// State returns the task's current phase, for status reporting.
func (t *MigratingTask) State() State {
	return t.state.Load()
}

func (t *MigratingTask) run(ctx context.Context) error {
	if err := t.runPhases(ctx); err != nil {
		t.stats.Finish(true)
		return err
	}
	t.stats.Finish(false)
	return nil
}

func (t *MigratingTask) runPhases(ctx context.Context) error {
	if err := t.preCheck(ctx); err != nil {
		return err
	}
	t.preBlock()
	if err := t.preSwitch(ctx); err != nil {
		return err
	}
	if err := t.engine.run(ctx); err != nil {
		return err
	}
	t.state.Advance(FinalSwitch)
	if err := t.finalSwitch(ctx); err != nil {
		return err
	}
	return nil
}

func (t *MigratingTask) preCheck(ctx context.Context) error {
	err := t.pollSwitch(ctx, SubCmdPreCheck, t.cfg.Migration.PreCheckInterval)
	if err != nil {
		return err
	}
	t.state.Advance(PreBlocking)
	return nil
}

// preBlock has no peer handshake of its own and advances to PreSwitch
// immediately. Commands are not buffered here: while the state is
// PreBlocking, Send (below) forwards them straight to the local node.
func (t *MigratingTask) preBlock() {
	t.state.Advance(PreSwitch)
}

func (t *MigratingTask) preSwitch(ctx context.Context) error {
	err := t.pollSwitch(ctx, SubCmdPreSwitch, t.cfg.Migration.PreSwitchInterval)
	if err != nil {
		return err
	}
	t.state.Advance(Scanning)
	return nil
}

func (t *MigratingTask) finalSwitch(ctx context.Context) error {
	err := t.pollSwitch(ctx, SubCmdFinalSwitch, t.cfg.Migration.FinalSwitchInterval)
	if err != nil {
		return err
	}
	t.state.Advance(SwitchCommitted)
	return nil
}

// pollSwitch repeatedly sends sub to the destination proxy at interval
// until it replies ready, the peer reports NOT_READY_FOR_SWITCHING (logged
// at debug verbosity and retried, since it is the expected steady-state
// reply), or a harder error interrupts the loop: a version mismatch is
// fatal and not retried, any other transport error is logged at Warning
// and retried, and a stop request or context cancellation aborts
// immediately with Canceled.
func (t *MigratingTask) pollSwitch(ctx context.Context, sub SubCmd, interval time.Duration) error {
	arg := SwitchArg{
		Version: UMCTLVersion,
		Meta: cluster.MigrationTaskMeta{
			DB: t.meta.Cluster,
			SlotRange: slot.Range{
				Start: slot.Slot(t.meta.SlotRangeFrom),
				End:   slot.Slot(t.meta.SlotRangeTo),
				Tag:   slot.Migrating,
				Meta: &slot.MigrationMeta{
					Epoch:    t.meta.Epoch,
					SrcProxy: t.meta.SrcProxy,
					SrcNode:  t.meta.SrcNode,
					DstProxy: t.meta.DstProxy,
					DstNode:  t.meta.DstNode,
				},
			},
		},
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, reply, err := t.peer.SendUMCTL(ctx, t.meta.DstProxy, sub, arg)
		switch {
		case err != nil:
			if cmn.Is(err, cmn.KindIncompatibleVer) {
				return err
			}
			glog.Warningf("%s poll to %s failed: %v", sub, t.meta.DstProxy, err)
		case ok:
			return nil
		case reply == NotReadyReply:
			cmn.Debugf("%s not ready yet, retrying: %s->%s", sub, t.meta.SrcNode, t.meta.DstNode)
		default:
			glog.Warningf("%s unexpected reply from %s: %s", sub, t.meta.DstProxy, reply)
		}

		select {
		case <-ctx.Done():
			return cmn.NewCanceled("migration %s canceled: %v", sub, ctx.Err())
		case <-t.stopCh:
			return cmn.NewCanceled("migration %s stopped", sub)
		case <-ticker.C:
		}
	}
}

// Send implements the data-plane routing decision for commands touching
// this task's range, per §4.4: NotFound while still PreCheck (the caller
// should fall through to normal routing, since this proxy has not yet
// claimed the range for migration), a local Forward during PreBlocking
// (commands land on this node, unbuffered, while the two proxies finish
// agreeing on PreSwitch), and a redirect to the destination proxy at
// PreSwitch and every phase after -- once PreSwitch lands this proxy no
// longer authoritatively owns the range, so serving writes locally would
// double-write against the destination's concurrent scan-restore.
// Routing is recomputed fresh on every call rather than cached, so a
// command sent mid-handshake always reflects the task's current phase.
func (t *MigratingTask) Send(cmd interface{}) error {
	switch t.state.Load() {
	case PreCheck:
		return cmn.NewNotFound("slot not claimed by migration %s->%s yet", t.meta.SrcNode, t.meta.DstNode)
	case PreBlocking:
		return t.router.Forward(cmd)
	default:
		return t.router.Redirect(cmd, t.meta.DstProxy)
	}
}
