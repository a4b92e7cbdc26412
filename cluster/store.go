package cluster

import (
	"sort"
	"sync"

	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
)

// Persister is the pluggable durability hook named in §1's Non-goals ("the
// reference design is memory-resident; durability is a pluggable hook").
// Store calls Persist after every successful mutation when one is
// configured; see persist.go for the scribble-backed implementation.
type Persister interface {
	Persist(snapshot Snapshot) error
}

// Snapshot is a deep, store-owned-nothing copy of the full topology,
// returned to every reader per "everything else reads snapshots (deep
// copies)".
type Snapshot struct {
	Clusters    map[ClusterName]Cluster
	Proxies     map[Addr]Proxy
	GlobalEpoch uint64
	Failures    []FailureEntry
}

// Store is the single in-memory structure holding the entire topology.
// Every mutation takes the exclusive lock, clones the maps it touches,
// mutates the clone, runs a full invariant check, and only then installs
// the clone and bumps the epoch -- otherwise the clone is discarded and the
// original mutation error is returned, leaving the store untouched. This is
// the generalization, to a single process with no peer broadcast, of the
// teacher's lock -> clone -> mutate -> [broadcast] -> commit-or-rollback
// transaction shape in ais/prxtxn.go's createBucket/makeNCopies.
type Store struct {
	mu          sync.RWMutex
	clusters    map[ClusterName]Cluster
	proxies     map[Addr]Proxy
	globalEpoch uint64
	detector    *Detector
	persister   Persister
}

// New constructs an empty Store. detector may be nil if failure reporting
// is not needed (e.g. in tests exercising topology operations alone).
func New(detector *Detector) *Store {
	return &Store{
		clusters: map[ClusterName]Cluster{},
		proxies:  map[Addr]Proxy{},
		detector: detector,
	}
}

func (s *Store) SetPersister(p Persister) { s.persister = p }

// mutation is the shape every C6 operation takes: given clones of the
// current maps, apply the change or return an error (clusters/proxies are
// left unmodified on error, and the clone is simply discarded).
type mutation func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error

// apply runs fn against clones of the store's maps under the exclusive
// lock. On success, installs the clones, bumps global_epoch, stamps the new
// epoch onto every modified entity (the caller's fn is expected to stamp
// Cluster.Epoch/Proxy.Epoch using the epoch apply hands it), re-validates
// invariants, and persists. On any failure the store is left untouched.
func (s *Store) apply(stamp func(epoch uint64) mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clustersClone := make(map[ClusterName]Cluster, len(s.clusters))
	for k, v := range s.clusters {
		clustersClone[k] = v.Clone()
	}
	proxiesClone := make(map[Addr]Proxy, len(s.proxies))
	for k, v := range s.proxies {
		proxiesClone[k] = v.Clone()
	}

	nextEpoch := s.globalEpoch + 1
	fn := stamp(nextEpoch)
	if err := fn(clustersClone, proxiesClone); err != nil {
		return err
	}
	if err := checkInvariants(clustersClone, proxiesClone); err != nil {
		return err
	}

	s.clusters = clustersClone
	s.proxies = proxiesClone
	s.globalEpoch = nextEpoch

	if s.persister != nil {
		if err := s.persister.Persist(s.snapshotLocked()); err != nil {
			cmn.Debugf("store: persist failed after epoch %d: %v", nextEpoch, err)
		}
	}
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	clusters := make(map[ClusterName]Cluster, len(s.clusters))
	for k, v := range s.clusters {
		clusters[k] = v.Clone()
	}
	proxies := make(map[Addr]Proxy, len(s.proxies))
	for k, v := range s.proxies {
		proxies[k] = v.Clone()
	}
	var failures []FailureEntry
	if s.detector != nil {
		failures = s.detector.entries()
	}
	return Snapshot{Clusters: clusters, Proxies: proxies, GlobalEpoch: s.globalEpoch, Failures: failures}
}

// Snapshot returns a deep copy of the full topology.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ClusterNames returns every cluster name, sorted.
func (s *Store) ClusterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.clusters))
	for name := range s.clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClusterMeta returns a deep copy of the named cluster, if present.
func (s *Store) ClusterMeta(name ClusterName) (Cluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[name]
	if !ok {
		return Cluster{}, false
	}
	return c.Clone(), true
}

// ProxyAddresses returns every proxy address, sorted.
func (s *Store) ProxyAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.proxies))
	for addr := range s.proxies {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// ProxyMeta returns a deep copy of the named proxy, if present.
func (s *Store) ProxyMeta(addr Addr) (Proxy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proxies[addr]
	if !ok {
		return Proxy{}, false
	}
	return p.Clone(), true
}

// Validate recomputes all invariants without mutating anything.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return checkInvariants(s.clusters, s.proxies)
}

// AddProxy registers a proxy with nodes as its free pool.
func (s *Store) AddProxy(addr Addr, nodes []Addr) error {
	if len(nodes) != 2 {
		return cmn.NewInvalidNodeCount("proxy %s must contribute exactly 2 nodes, got %d", addr, len(nodes))
	}
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			if _, ok := proxies[addr]; ok {
				return cmn.NewAlreadyExists("proxy %s already exists", addr)
			}
			proxies[addr] = Proxy{
				Addr:      addr,
				Nodes:     append([]Addr(nil), nodes...),
				FreeNodes: append([]Addr(nil), nodes...),
				Epoch:     epoch,
			}
			return nil
		}
	})
}

// AddCluster creates an empty cluster.
func (s *Store) AddCluster(name ClusterName) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			if _, ok := clusters[name]; ok {
				return cmn.NewAlreadyExists("cluster %s already exists", name)
			}
			clusters[name] = Cluster{Name: name, Epoch: epoch}
			return nil
		}
	})
}

// RemoveCluster returns all nodes of the cluster to their proxies' free
// pools and deletes the cluster record.
func (s *Store) RemoveCluster(name ClusterName) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			for _, n := range c.Nodes {
				for _, r := range n.Slots {
					if r.Tag != slot.Normal {
						return cmn.NewMigrationRunning("cluster %s: node %s has an in-flight migration", name, n.Addr)
					}
				}
			}
			for _, n := range c.Nodes {
				p, ok := proxies[n.ProxyAddr]
				if !ok {
					continue
				}
				p.FreeNodes = append(p.FreeNodes, n.Addr)
				if allNodesFree(p) {
					p.Cluster = ""
				}
				p.Epoch = epoch
				proxies[n.ProxyAddr] = p
			}
			delete(clusters, name)
			return nil
		}
	})
}

func allNodesFree(p Proxy) bool {
	return len(p.FreeNodes) == len(p.Nodes)
}

// AutoAddNodes picks the minimum-epoch proxy with free nodes whose proxy
// isn't already in this cluster, promotes two free nodes into the cluster,
// and assigns them a contiguous slot range sized to rebalance. Tie-break:
// candidate proxies are ordered by (lowest epoch, lexicographic address).
func (s *Store) AutoAddNodes(name ClusterName) ([]Node, error) {
	var added []Node
	err := s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			candidate, ok := pickCandidateProxy(proxies, name)
			if !ok {
				return cmn.NewNoAvailableResource("no proxy can contribute nodes to cluster %s", name)
			}
			p := proxies[candidate]
			if len(p.FreeNodes) < 2 {
				return cmn.NewNoAvailableResource("proxy %s does not have 2 free nodes", candidate)
			}
			masterAddr, replicaAddr := p.FreeNodes[0], p.FreeNodes[1]
			p.FreeNodes = p.FreeNodes[2:]
			p.Cluster = name
			p.Epoch = epoch
			proxies[candidate] = p

			masterRange, donorIdx, donorRange, hasDonor := rebalanceRange(c)
			if hasDonor {
				donor := c.Nodes[donorIdx]
				for i, r := range donor.Slots {
					if r.Tag == slot.Normal && r.Start == donorRange.Start {
						donor.Slots[i] = donorRange
						break
					}
				}
				c.Nodes[donorIdx] = donor
			}
			master := Node{Addr: masterAddr, ProxyAddr: candidate, Cluster: name, Role: RoleMaster, Slots: slot.Set{masterRange}}
			replica := Node{Addr: replicaAddr, ProxyAddr: candidate, Cluster: name, Role: RoleReplica, ReplMeta: ReplicationMeta{Masters: []Addr{masterAddr}}}
			c.Nodes = append(c.Nodes, master, replica)
			c.Epoch = epoch
			clusters[name] = c
			added = []Node{master, replica}
			return nil
		}
	})
	return added, err
}

// pickCandidateProxy selects, among proxies with >=2 free nodes not already
// assigned to any cluster (this one included), the one with the lowest
// epoch, breaking ties lexicographically by address.
func pickCandidateProxy(proxies map[Addr]Proxy, cluster ClusterName) (Addr, bool) {
	var best Addr
	var bestProxy Proxy
	found := false
	for addr, p := range proxies {
		if p.Cluster != "" {
			continue
		}
		if len(p.FreeNodes) < 2 {
			continue
		}
		if !found || p.Epoch < bestProxy.Epoch || (p.Epoch == bestProxy.Epoch && addr < best) {
			best, bestProxy, found = addr, p, true
		}
	}
	return best, found
}

// rebalanceRange computes the slot range a newly added master should own,
// keeping every existing master's coverage disjoint and the union always
// exactly [0, NumSlots): the first master takes the whole keyspace (the
// common bring-up case, since explicit operator-driven migration is the
// primary rebalancing mechanism per §1 Non-goals), and every subsequent
// master is carved out of the single largest existing master's Normal
// range by an even split, rather than drawn from an already-exhausted
// remainder -- so two AutoAddNodes calls against a fresh cluster leave its
// two masters each owning exactly half of the 16384 slots (§8 scenario 1's
// "full partition"). When a donor is split, donorIdx/donorRange name the
// existing master node (by index in c.Nodes) and its shrunk-in-place
// replacement; hasDonor is false only for the empty-cluster case.
func rebalanceRange(c Cluster) (newRange slot.Range, donorIdx int, donorRange slot.Range, hasDonor bool) {
	bestIdx, best, found := largestMasterNormalRange(c)
	if !found {
		return slot.Range{Start: 0, End: slot.NumSlots - 1, Tag: slot.Normal}, -1, slot.Range{}, false
	}
	mid := best.Start + (best.End-best.Start)/2 + 1
	left, right, ok := slot.SplitAt(best, mid)
	if !ok {
		// A single-slot range can't be split further; the new master gets
		// nothing to own yet until an operator migrates slots to it.
		return slot.Range{Start: best.End + 1, End: best.End, Tag: slot.Normal}, -1, slot.Range{}, false
	}
	return right, bestIdx, left, true
}

// largestMasterNormalRange finds the biggest Normal range owned by any
// master in c, returning the owning node's index.
func largestMasterNormalRange(c Cluster) (nodeIdx int, r slot.Range, ok bool) {
	nodeIdx = -1
	for ni, n := range c.Nodes {
		if n.Role != RoleMaster {
			continue
		}
		for _, cand := range n.Slots {
			if cand.Tag != slot.Normal {
				continue
			}
			size := int(cand.End) - int(cand.Start)
			if nodeIdx == -1 || size > int(r.End)-int(r.Start) {
				nodeIdx, r, ok = ni, cand, true
			}
		}
	}
	return
}

// RemoveProxyFromCluster returns that proxy's nodes to the free pool.
func (s *Store) RemoveProxyFromCluster(name ClusterName, proxyAddr Addr) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			p, ok := proxies[proxyAddr]
			if !ok {
				return cmn.NewNotFound("proxy %s not found", proxyAddr)
			}
			remaining := c.Nodes[:0:0]
			for _, n := range c.Nodes {
				if n.ProxyAddr != proxyAddr {
					remaining = append(remaining, n)
					continue
				}
				for _, r := range n.Slots {
					if r.Tag != slot.Normal {
						return cmn.NewMigrationRunning("cluster %s: node %s has an in-flight migration", name, n.Addr)
					}
				}
				p.FreeNodes = append(p.FreeNodes, n.Addr)
			}
			c.Nodes = remaining
			c.Epoch = epoch
			clusters[name] = c
			p.Cluster = ""
			p.Epoch = epoch
			proxies[proxyAddr] = p
			return nil
		}
	})
}

// RemoveProxy deletes a proxy that carries no cluster membership.
func (s *Store) RemoveProxy(addr Addr) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			p, ok := proxies[addr]
			if !ok {
				return cmn.NewNotFound("proxy %s not found", addr)
			}
			if p.Cluster != "" {
				return cmn.NewInUse("proxy %s is in use by cluster %s", addr, p.Cluster)
			}
			delete(proxies, addr)
			return nil
		}
	})
}

// MigrateSlots picks the source's largest Normal range, splits at the
// midpoint for KindHalf (whole range for KindAll), stamps a new epoch, tags
// the source range Migrating(M), and creates a paired Importing(M) on dst.
func (s *Store) MigrateSlots(name ClusterName, src, dst Addr, kind MigrationKind) (slot.MigrationMeta, error) {
	var meta slot.MigrationMeta
	err := s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			srcIdx := nodeIndex(c.Nodes, src)
			dstIdx := nodeIndex(c.Nodes, dst)
			if srcIdx < 0 {
				return cmn.NewNotFound("node %s not found in cluster %s", src, name)
			}
			if dstIdx < 0 {
				return cmn.NewNotFound("node %s not found in cluster %s", dst, name)
			}

			srcNode := c.Nodes[srcIdx]
			rangeIdx, biggest, ok := largestNormalRange(srcNode.Slots)
			if !ok {
				return cmn.NewNotFound("node %s has no Normal slot range to migrate", src)
			}

			srcProxy, dstProxy := srcNode.ProxyAddr, c.Nodes[dstIdx].ProxyAddr
			m := slot.MigrationMeta{Epoch: epoch, SrcProxy: srcProxy, SrcNode: src, DstProxy: dstProxy, DstNode: dst}

			var moving slot.Range
			switch kind {
			case KindAll:
				moving = biggest
				srcNode.Slots = append(srcNode.Slots[:rangeIdx], srcNode.Slots[rangeIdx+1:]...)
			case KindHalf:
				mid := biggest.Start + (biggest.End-biggest.Start)/2 + 1
				left, right, ok := slot.SplitAt(biggest, mid)
				if !ok {
					return cmn.NewInvalidKind("cannot split single-slot range %d-%d in half", biggest.Start, biggest.End)
				}
				moving = right
				srcNode.Slots[rangeIdx] = left
			default:
				return cmn.NewInvalidKind("unknown migration kind")
			}

			moving.Tag = slot.Migrating
			moving.Meta = &m
			srcNode.Slots = append(srcNode.Slots, moving)
			c.Nodes[srcIdx] = srcNode

			importing := moving
			importing.Tag = slot.Importing
			importingMeta := m
			importing.Meta = &importingMeta
			dstNode := c.Nodes[dstIdx]
			dstNode.Slots = append(dstNode.Slots, importing)
			c.Nodes[dstIdx] = dstNode

			c.Epoch = epoch
			clusters[name] = c
			meta = m
			return nil
		}
	})
	return meta, err
}

func nodeIndex(nodes []Node, addr Addr) int {
	for i, n := range nodes {
		if n.Addr == addr {
			return i
		}
	}
	return -1
}

func largestNormalRange(ranges slot.Set) (idx int, r slot.Range, ok bool) {
	idx = -1
	for i, cand := range ranges {
		if cand.Tag != slot.Normal {
			continue
		}
		size := int(cand.End) - int(cand.Start)
		if idx == -1 || size > int(r.End)-int(r.Start) {
			idx, r, ok = i, cand, true
		}
	}
	return
}

// StopMigrations removes a pending migration and reverts both tags. Fails
// AlreadyCommitted if the task has passed the point of no return.
func (s *Store) StopMigrations(name ClusterName, src, dst Addr) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			srcIdx := nodeIndex(c.Nodes, src)
			dstIdx := nodeIndex(c.Nodes, dst)
			if srcIdx < 0 || dstIdx < 0 {
				return cmn.NewNotFound("migration %s->%s not found in cluster %s", src, dst, name)
			}
			srcNode, dstNode := c.Nodes[srcIdx], c.Nodes[dstIdx]

			mIdx, mRange, ok := findTaggedRange(srcNode.Slots, slot.Migrating, dst)
			if !ok {
				return cmn.NewNotFound("no pending migration %s->%s in cluster %s", src, dst, name)
			}
			iIdx, _, ok := findTaggedRangeByEpoch(dstNode.Slots, slot.Importing, mRange.Meta.Epoch)
			if !ok {
				return cmn.NewAlreadyCommitted("migration %s->%s already committed or not found", src, dst)
			}

			// Reverted to Normal as-is, not coalesced with any adjacent
			// Normal range: per §4.1's tie-break, adjacency after a commit
			// is cosmetic only and auto-merging would erase it.
			reverted := mRange
			reverted.Tag = slot.Normal
			reverted.Meta = nil
			srcNode.Slots[mIdx] = reverted

			dstNode.Slots = append(dstNode.Slots[:iIdx], dstNode.Slots[iIdx+1:]...)

			c.Nodes[srcIdx] = srcNode
			c.Nodes[dstIdx] = dstNode
			c.Epoch = epoch
			clusters[name] = c
			return nil
		}
	})
}

func findTaggedRange(ranges slot.Set, tag slot.Tag, dstNode Addr) (int, slot.Range, bool) {
	for i, r := range ranges {
		if r.Tag == tag && r.Meta != nil && r.Meta.DstNode == dstNode {
			return i, r, true
		}
	}
	return -1, slot.Range{}, false
}

func findTaggedRangeByEpoch(ranges slot.Set, tag slot.Tag, epoch uint64) (int, slot.Range, bool) {
	for i, r := range ranges {
		if r.Tag == tag && r.Meta != nil && r.Meta.Epoch == epoch {
			return i, r, true
		}
	}
	return -1, slot.Range{}, false
}

// AssignReplica binds replica to master; both must exist in the cluster.
func (s *Store) AssignReplica(name ClusterName, masterAddr, replicaAddr Addr) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[name]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", name)
			}
			mIdx := nodeIndex(c.Nodes, masterAddr)
			rIdx := nodeIndex(c.Nodes, replicaAddr)
			if mIdx < 0 || rIdx < 0 {
				return cmn.NewNotFound("master %s or replica %s not found in cluster %s", masterAddr, replicaAddr, name)
			}
			if c.Nodes[mIdx].Role != RoleMaster {
				return cmn.NewRoleConflict("%s is not a master", masterAddr)
			}
			if c.Nodes[rIdx].Role != RoleReplica {
				return cmn.NewRoleConflict("%s is not a replica", replicaAddr)
			}
			r := c.Nodes[rIdx]
			for _, m := range r.ReplMeta.Masters {
				if m == masterAddr {
					return cmn.NewRoleConflict("%s already replicates %s", replicaAddr, masterAddr)
				}
			}
			r.ReplMeta.Masters = append(r.ReplMeta.Masters, masterAddr)
			c.Nodes[rIdx] = r
			c.Epoch = epoch
			clusters[name] = c
			return nil
		}
	})
}

// CommitMigration locates the record by cluster and epoch (taken from
// taskMeta.SlotRange.Meta), deletes the Migrating tag and flips the
// destination Importing(M) to Normal. SlotRange's Start and End are not
// compared against the record. The epoch in taskMeta must match exactly;
// stale commits are rejected with NotFound (§8 scenario 3).
func (s *Store) CommitMigration(taskMeta MigrationTaskMeta) error {
	return s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			c, ok := clusters[taskMeta.DB]
			if !ok {
				return cmn.NewNotFound("cluster %s not found", taskMeta.DB)
			}
			wantEpoch := uint64(0)
			if taskMeta.SlotRange.Meta != nil {
				wantEpoch = taskMeta.SlotRange.Meta.Epoch
			}

			var srcIdx, mIdx int = -1, -1
			var dstIdx, iIdx int = -1, -1
			for ni, n := range c.Nodes {
				for ri, r := range n.Slots {
					if r.Meta == nil || r.Meta.Epoch != wantEpoch {
						continue
					}
					if r.Tag == slot.Migrating {
						srcIdx, mIdx = ni, ri
					} else if r.Tag == slot.Importing {
						dstIdx, iIdx = ni, ri
					}
				}
			}
			if srcIdx < 0 || dstIdx < 0 {
				return cmn.NewNotFound("migration epoch %d not found in cluster %s", wantEpoch, taskMeta.DB)
			}

			srcNode := c.Nodes[srcIdx]
			srcNode.Slots = append(srcNode.Slots[:mIdx], srcNode.Slots[mIdx+1:]...)
			c.Nodes[srcIdx] = srcNode

			// Flipped to Normal in place, not merged with adjacent Normal
			// ranges -- same §4.1 tie-break as StopMigrations above.
			dstNode := c.Nodes[dstIdx]
			committed := dstNode.Slots[iIdx]
			committed.Tag = slot.Normal
			committed.Meta = nil
			dstNode.Slots[iIdx] = committed
			c.Nodes[dstIdx] = dstNode

			c.Epoch = epoch
			clusters[taskMeta.DB] = c
			return nil
		}
	})
}

// ReplaceFailedProxy chooses a free proxy of the same cluster size,
// relocates every node-slot assignment from addr onto the replacement
// preserving slot ranges and role bindings, and returns the new proxy
// record. Tie-break: candidate proxies are ordered by (lowest epoch,
// lexicographic address), same as AutoAddNodes.
func (s *Store) ReplaceFailedProxy(addr Addr) (Proxy, error) {
	var replacement Proxy
	err := s.apply(func(epoch uint64) mutation {
		return func(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
			failed, ok := proxies[addr]
			if !ok {
				return cmn.NewNotFound("proxy %s not found", addr)
			}
			needed := len(failed.Nodes)
			var candidateAddr Addr
			found := false
			var candidate Proxy
			for paddr, p := range proxies {
				if paddr == addr || p.Cluster != "" || len(p.FreeNodes) < needed {
					continue
				}
				if !found || p.Epoch < candidate.Epoch || (p.Epoch == candidate.Epoch && paddr < candidateAddr) {
					candidateAddr, candidate, found = paddr, p, true
				}
			}
			if !found {
				return cmn.NewNoAvailableResource("no replacement proxy of size %d available for %s", needed, addr)
			}

			c, ok := clusters[failed.Cluster]
			if failed.Cluster != "" && !ok {
				return cmn.NewInconsistent("proxy %s claims cluster %s which does not exist", addr, failed.Cluster)
			}

			newNodes := append([]Addr(nil), candidate.FreeNodes[:needed]...)
			candidate.FreeNodes = candidate.FreeNodes[needed:]
			candidate.Cluster = failed.Cluster
			candidate.Epoch = epoch
			candidate.Nodes = append(candidate.Nodes, newNodes...)

			relocated := make(map[Addr]Addr, needed)
			for i, oldAddr := range failed.Nodes {
				idx := nodeIndex(c.Nodes, oldAddr)
				if idx < 0 {
					continue
				}
				relocated[oldAddr] = newNodes[i]
				n := c.Nodes[idx]
				n.Addr = newNodes[i]
				n.ProxyAddr = candidateAddr
				c.Nodes[idx] = n
			}
			// A relocated node may be some other node's master: rewrite every
			// replica's stale reference before the invariant check runs, or
			// checkReplicaMasterConsistency rejects the mutation as
			// Inconsistent.
			for i, n := range c.Nodes {
				changed := false
				for j, m := range n.ReplMeta.Masters {
					if newAddr, ok := relocated[m]; ok {
						n.ReplMeta.Masters[j] = newAddr
						changed = true
					}
				}
				if changed {
					c.Nodes[i] = n
				}
			}
			if failed.Cluster != "" {
				c.Epoch = epoch
				clusters[failed.Cluster] = c
			}

			proxies[candidateAddr] = candidate
			delete(proxies, addr)
			replacement = candidate
			return nil
		}
	})
	if err == nil && s.detector != nil {
		s.detector.Clear(addr)
	}
	return replacement, err
}
