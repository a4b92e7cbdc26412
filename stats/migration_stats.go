// Package stats tracks per-task migration counters, exposed through each
// task's Stats() snapshot, in the teacher's JSON-tagged snapshot-struct style.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"time"

	"go.uber.org/atomic"
)

// MigrationStats is the live, concurrently-updated counter set for one
// migrating or importing task, mirroring BaseXactStats/
// RebalanceTargetStats's JSON-tagged snapshot shape (xaction_stats.go) but
// backed by go.uber.org/atomic counters instead of the teacher's
// externally-synchronized plain int64 fields, since this module's callers
// (the scan engine's producer/consumer goroutines) update counters without
// going through the single store lock.
type MigrationStats struct {
	idX       string
	clusterX  string
	srcNodeX  string
	dstNodeX  string
	startTime time.Time

	keysScanned  atomic.Int64
	keysRestored atomic.Int64
	bytesMoved   atomic.Int64
	retries      atomic.Int64

	endTime atomic.Int64 // unix nanos, 0 while running
	aborted atomic.Bool
}

// NewMigrationStats starts a fresh counter set for one task.
func NewMigrationStats(id, cluster, srcNode, dstNode string) *MigrationStats {
	return &MigrationStats{
		idX:       id,
		clusterX:  cluster,
		srcNodeX:  srcNode,
		dstNodeX:  dstNode,
		startTime: time.Now(),
	}
}

func (s *MigrationStats) AddKeyScanned()              { s.keysScanned.Inc() }
func (s *MigrationStats) AddKeyRestored(bytes int64)   { s.keysRestored.Inc(); s.bytesMoved.Add(bytes) }
func (s *MigrationStats) AddRetry()                    { s.retries.Inc() }

// Finish records completion; aborted distinguishes a canceled/errored task
// from one that ran to SwitchCommitted.
func (s *MigrationStats) Finish(aborted bool) {
	s.endTime.Store(time.Now().UnixNano())
	s.aborted.Store(aborted)
}

// MigrationStatsExt is the JSON-serializable snapshot returned by a task's
// Stats(), shaped like BaseXactStatsExt: a flat base plus an
// Ext block of domain-specific counters.
type MigrationStatsExt struct {
	ID          string `json:"id"`
	Cluster     string `json:"cluster"`
	SrcNode     string `json:"src_node"`
	DstNode     string `json:"dst_node"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	Aborted     bool   `json:"aborted"`
	Running     bool   `json:"running"`
	Ext         struct {
		KeysScanned  int64 `json:"keys_scanned,string"`
		KeysRestored int64 `json:"keys_restored,string"`
		BytesMoved   int64 `json:"bytes_moved,string"`
		Retries      int64 `json:"retries,string"`
	} `json:"ext"`
}

// Snapshot takes a point-in-time copy safe to serialize and hand to an HTTP
// handler.
func (s *MigrationStats) Snapshot() MigrationStatsExt {
	var ext MigrationStatsExt
	ext.ID = s.idX
	ext.Cluster = s.clusterX
	ext.SrcNode = s.srcNodeX
	ext.DstNode = s.dstNodeX
	ext.StartTime = s.startTime.UTC().Format(time.RFC3339Nano)
	ext.Aborted = s.aborted.Load()
	if end := s.endTime.Load(); end != 0 {
		ext.EndTime = time.Unix(0, end).UTC().Format(time.RFC3339Nano)
	} else {
		ext.Running = true
	}
	ext.Ext.KeysScanned = s.keysScanned.Load()
	ext.Ext.KeysRestored = s.keysRestored.Load()
	ext.Ext.BytesMoved = s.bytesMoved.Load()
	ext.Ext.Retries = s.retries.Load()
	return ext
}
