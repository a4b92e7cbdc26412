// Package cluster implements C6 (the Metadata Store) and C7 (the Failure
// Detector): the single source of truth for cluster topology.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import "github.com/undermoon-go/undermoon/slot"

type Addr = string
type ClusterName = string

type Role int

const (
	RoleMaster Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleMaster {
		return "Master"
	}
	return "Replica"
}

// ReplicationMeta binds a replica to the masters it shadows, as a list of
// master addresses: AutoAddNodes starts each replica with one, and
// AssignReplica appends further masters of the same cluster.
type ReplicationMeta struct {
	Masters []Addr
}

// Node is a backend data instance: a member of a cluster with a role and the
// slot ranges it owns (for a master) or nothing (for a replica, which mirrors
// its master's ranges implicitly).
type Node struct {
	Addr      Addr
	ProxyAddr Addr
	Cluster   ClusterName // "" if unassigned
	Role      Role
	Slots     slot.Set
	ReplMeta  ReplicationMeta
}

func (n Node) Clone() Node {
	c := n
	c.Slots = append(slot.Set(nil), n.Slots...)
	c.ReplMeta.Masters = append([]Addr(nil), n.ReplMeta.Masters...)
	return c
}

// Proxy contributes a fixed number of nodes (typically 2); unassigned nodes
// sit in FreeNodes.
type Proxy struct {
	Addr      Addr
	Nodes     []Addr
	FreeNodes []Addr
	Cluster   ClusterName // "" if unassigned
	Epoch     uint64
}

func (p Proxy) Clone() Proxy {
	c := p
	c.Nodes = append([]Addr(nil), p.Nodes...)
	c.FreeNodes = append([]Addr(nil), p.FreeNodes...)
	return c
}

// Cluster is a named collection of nodes whose masters collectively cover
// all 16384 slots.
type Cluster struct {
	Name  ClusterName
	Epoch uint64
	Nodes []Node
}

func (c Cluster) Clone() Cluster {
	nc := c
	nc.Nodes = make([]Node, len(c.Nodes))
	for i, n := range c.Nodes {
		nc.Nodes[i] = n.Clone()
	}
	return nc
}

func (c Cluster) NodeAddr(addr Addr) (Node, bool) {
	for _, n := range c.Nodes {
		if n.Addr == addr {
			return n, true
		}
	}
	return Node{}, false
}

// MigrationTaskMeta identifies a migration record by its cluster and slot
// range; the tag on SlotRange carries the MigrationMeta (epoch, endpoints).
type MigrationTaskMeta struct {
	DB        ClusterName
	SlotRange slot.Range
}

// MigrationKind selects how much of the source's largest Normal range
// migrate_slots moves.
type MigrationKind int

const (
	KindHalf MigrationKind = iota
	KindAll
)
