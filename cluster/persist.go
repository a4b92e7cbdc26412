package cluster

import (
	"github.com/golang/glog"
	"github.com/sdomino/scribble"
)

const snapshotCollection = "topology"
const snapshotRecord = "latest"

// ScribbleDurability is the optional durability hook named in §1's
// Non-goals ("the reference design is memory-resident; durability is a
// pluggable hook"): it writes the full Snapshot to a scribble-backed JSON
// file on every successful mutation. Adapted from downloader/db.go's
// driver-wrapping shape, simplified from per-job caching to a single
// whole-snapshot record because the store's mutation rate is operator-scale
// (tens/s per §5), not the downloader's per-object rate that justified
// batching writes.
type ScribbleDurability struct {
	driver *scribble.Driver
}

// NewScribbleDurability opens (or creates) a scribble database rooted at
// dir.
func NewScribbleDurability(dir string) (*ScribbleDurability, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &ScribbleDurability{driver: driver}, nil
}

// Persist implements Persister.
func (d *ScribbleDurability) Persist(snapshot Snapshot) error {
	if err := d.driver.Write(snapshotCollection, snapshotRecord, snapshot); err != nil {
		glog.Errorf("persist: failed to write topology snapshot: %v", err)
		return err
	}
	return nil
}

// Load reads back the last persisted snapshot, or (Snapshot{}, false, nil)
// if none exists yet.
func (d *ScribbleDurability) Load() (Snapshot, bool, error) {
	var snap Snapshot
	if err := d.driver.Read(snapshotCollection, snapshotRecord, &snap); err != nil {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Restore installs a previously-persisted snapshot into the store, bypassing
// the normal apply() path (no invariant re-derivation of epoch history is
// needed: a persisted snapshot was valid when written). Intended for
// broker startup only.
func (s *Store) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkInvariants(snap.Clusters, snap.Proxies); err != nil {
		return err
	}
	s.clusters = snap.Clusters
	s.proxies = snap.Proxies
	s.globalEpoch = snap.GlobalEpoch
	return nil
}
