package cluster

import (
	"github.com/undermoon-go/undermoon/cmn"
	"github.com/undermoon-go/undermoon/slot"
)

// checkInvariants recomputes invariants §3-1..§3-5 against a candidate
// snapshot and returns the first violation, or nil. Epoch monotonicity
// (§3-6) is not checked here; apply() assigns each mutation the previous
// global epoch plus one. Grounded on the
// original's whole-store revalidation idiom
// (original_source/src/broker/service.rs's /validation route) and on the
// teacher's post-mutation check in ais/prxtxn.go (mutate clone, validate,
// then either commit or roll back).
func checkInvariants(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
	if err := checkSlotCoverage(clusters); err != nil {
		return err
	}
	if err := checkMigrationPairing(clusters); err != nil {
		return err
	}
	if err := checkNodeUniqueness(clusters); err != nil {
		return err
	}
	if err := checkProxyClusterAgreement(clusters, proxies); err != nil {
		return err
	}
	if err := checkReplicaMasterConsistency(clusters); err != nil {
		return err
	}
	return nil
}

// §3-1: for any cluster, the union of Normal-tagged ranges across master
// nodes equals [0, 16384) with no overlap. A source's Migrating range still
// counts as owned until the migration is committed (its paired Importing
// range does not), and a cluster with no master yet is not checked.
func checkSlotCoverage(clusters map[ClusterName]Cluster) error {
	for name, c := range clusters {
		var masterRanges slot.Set
		hasMaster := false
		for _, n := range c.Nodes {
			if n.Role != RoleMaster {
				continue
			}
			hasMaster = true
			for _, r := range n.Slots {
				if r.Tag == slot.Migrating {
					r.Tag = slot.Normal
				}
				masterRanges = append(masterRanges, r)
			}
		}
		if !hasMaster {
			continue
		}
		if !disjoint(masterRanges) {
			return cmn.NewInconsistent("cluster %s: master slot ranges overlap", name).WithContext(name, c.Epoch, "")
		}
		if !slot.CoversFull(masterRanges) {
			return cmn.NewInconsistent("cluster %s: master slot ranges do not cover [0,%d)", name, slot.NumSlots).WithContext(name, c.Epoch, "")
		}
	}
	return nil
}

func disjoint(ranges slot.Set) bool {
	normals := make(slot.Set, 0, len(ranges))
	for _, r := range ranges {
		if r.Tag == slot.Normal {
			normals = append(normals, r)
		}
	}
	for i := 0; i < len(normals); i++ {
		for j := i + 1; j < len(normals); j++ {
			if normals[i].Start <= normals[j].End && normals[j].Start <= normals[i].End {
				return false
			}
		}
	}
	return true
}

// §3-2: a Migrating(M) range on the source master is paired with an
// Importing(M) range on the destination master, same epoch, same
// [start,end], both in the same cluster.
func checkMigrationPairing(clusters map[ClusterName]Cluster) error {
	for name, c := range clusters {
		migrating := map[uint64]slot.Range{}
		importing := map[uint64]slot.Range{}
		for _, n := range c.Nodes {
			for _, r := range n.Slots {
				if r.Meta == nil {
					continue
				}
				switch r.Tag {
				case slot.Migrating:
					migrating[r.Meta.Epoch] = r
				case slot.Importing:
					importing[r.Meta.Epoch] = r
				}
			}
		}
		for epoch, mr := range migrating {
			ir, ok := importing[epoch]
			if !ok {
				return cmn.NewInconsistent("cluster %s: Migrating epoch %d has no paired Importing range", name, epoch).WithContext(name, c.Epoch, "")
			}
			if mr.Start != ir.Start || mr.End != ir.End {
				return cmn.NewInconsistent("cluster %s: migration epoch %d range mismatch %d-%d vs %d-%d",
					name, epoch, mr.Start, mr.End, ir.Start, ir.End).WithContext(name, c.Epoch, "")
			}
		}
		for epoch := range importing {
			if _, ok := migrating[epoch]; !ok {
				return cmn.NewInconsistent("cluster %s: Importing epoch %d has no paired Migrating range", name, epoch).WithContext(name, c.Epoch, "")
			}
		}
	}
	return nil
}

// §3-3: a node address appears in exactly one cluster and one role.
func checkNodeUniqueness(clusters map[ClusterName]Cluster) error {
	seen := map[Addr]ClusterName{}
	for name, c := range clusters {
		for _, n := range c.Nodes {
			if prior, ok := seen[n.Addr]; ok {
				return cmn.NewInconsistent("node %s appears in both cluster %s and %s", n.Addr, prior, name)
			}
			seen[n.Addr] = name
		}
	}
	return nil
}

// §3-4: a proxy's cluster assignment equals the cluster of any of its
// non-free nodes (they must agree).
func checkProxyClusterAgreement(clusters map[ClusterName]Cluster, proxies map[Addr]Proxy) error {
	nodeCluster := map[Addr]ClusterName{}
	for name, c := range clusters {
		for _, n := range c.Nodes {
			nodeCluster[n.Addr] = name
		}
	}
	for paddr, p := range proxies {
		for _, naddr := range p.Nodes {
			isFree := false
			for _, f := range p.FreeNodes {
				if f == naddr {
					isFree = true
					break
				}
			}
			if isFree {
				continue
			}
			nc, ok := nodeCluster[naddr]
			if !ok {
				continue
			}
			if p.Cluster != nc {
				return cmn.NewInconsistent("proxy %s cluster %q disagrees with node %s's cluster %q", paddr, p.Cluster, naddr, nc)
			}
		}
	}
	return nil
}

// §3-5: each replica's repl_meta.masters references a master in the same
// cluster.
func checkReplicaMasterConsistency(clusters map[ClusterName]Cluster) error {
	for name, c := range clusters {
		masters := map[Addr]bool{}
		for _, n := range c.Nodes {
			if n.Role == RoleMaster {
				masters[n.Addr] = true
			}
		}
		for _, n := range c.Nodes {
			if n.Role != RoleReplica {
				continue
			}
			for _, m := range n.ReplMeta.Masters {
				if !masters[m] {
					return cmn.NewInconsistent("cluster %s: replica %s references master %s not in this cluster", name, n.Addr, m).WithContext(name, c.Epoch, "")
				}
			}
		}
	}
	return nil
}
