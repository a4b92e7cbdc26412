package migration

import (
	"fmt"
	"strconv"

	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/slot"
)

// UMCTLVersion is the fixed version string carried by every UMCTL
// sub-command; a mismatch with the peer's version is fatal
// (cmn.KindIncompatibleVer), never retried.
const UMCTLVersion = "UNDERMOON_MIGRATION_VERSION"

// SubCmd names the three UMCTL sub-commands driving the handshake.
type SubCmd string

const (
	SubCmdPreCheck    SubCmd = "PRECHECK"
	SubCmdPreSwitch   SubCmd = "PRESWITCH"
	SubCmdFinalSwitch SubCmd = "FINALSWITCH"
)

// NotReadyReply is the distinguished error string a peer returns while it
// has not yet installed the paired importing task. Callers log this at
// debug verbosity rather than warning (SPEC_FULL.md's pre_switch logging
// asymmetry decision).
const NotReadyReply = "NOT_READY_FOR_SWITCHING"

// SwitchArg is the payload carried by every UMCTL sub-command.
type SwitchArg struct {
	Version string
	Meta    cluster.MigrationTaskMeta
}

// Strings flattens a SwitchArg into the command-argument vector appended
// after "UMCTL <SUBCMD>", matching the wire layout:
//
//	<version> <cluster> <start> <end> <tag> <epoch> <src_proxy> <src_node> <dst_proxy> <dst_node>
//
// ported from original_source/src/migration/task.rs's into_strings.
func (a SwitchArg) Strings() []string {
	m := a.Meta
	tag := "MIGRATING"
	if m.SlotRange.Tag == slot.Importing {
		tag = "IMPORTING"
	}
	meta := m.SlotRange.Meta
	if meta == nil {
		meta = &slot.MigrationMeta{}
	}
	return []string{
		a.Version,
		m.DB,
		strconv.Itoa(int(m.SlotRange.Start)),
		strconv.Itoa(int(m.SlotRange.End)),
		tag,
		strconv.FormatUint(meta.Epoch, 10),
		meta.SrcProxy,
		meta.SrcNode,
		meta.DstProxy,
		meta.DstNode,
	}
}

// ParseSwitchArg is the inverse of Strings: SwitchArg.Strings() ∘
// ParseSwitchArg is identity (§8 round-trip property).
func ParseSwitchArg(args []string) (SwitchArg, error) {
	if len(args) != 10 {
		return SwitchArg{}, fmt.Errorf("malformed switch args: want 10 fields, got %d", len(args))
	}
	start, err := strconv.Atoi(args[2])
	if err != nil {
		return SwitchArg{}, fmt.Errorf("bad start slot: %w", err)
	}
	end, err := strconv.Atoi(args[3])
	if err != nil {
		return SwitchArg{}, fmt.Errorf("bad end slot: %w", err)
	}
	var tag slot.Tag
	switch args[4] {
	case "MIGRATING":
		tag = slot.Migrating
	case "IMPORTING":
		tag = slot.Importing
	default:
		return SwitchArg{}, fmt.Errorf("bad slot tag: %s", args[4])
	}
	epoch, err := strconv.ParseUint(args[5], 10, 64)
	if err != nil {
		return SwitchArg{}, fmt.Errorf("bad epoch: %w", err)
	}
	return SwitchArg{
		Version: args[0],
		Meta: cluster.MigrationTaskMeta{
			DB: args[1],
			SlotRange: slot.Range{
				Start: slot.Slot(start),
				End:   slot.Slot(end),
				Tag:   tag,
				Meta: &slot.MigrationMeta{
					Epoch:    epoch,
					SrcProxy: args[6],
					SrcNode:  args[7],
					DstProxy: args[8],
					DstNode:  args[9],
				},
			},
		},
	}, nil
}
