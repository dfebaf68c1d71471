// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stg builds and owns the state transition graph: the
// deduplicated directed graph of (scheduling state, code region)
// nodes and cause-tagged, timed transition edges observed across all
// executions of one fuzzing worker. The graph only ever grows; node
// and edge indices are stable for the lifetime of the process.
package stg

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

type NodeIndex uint32

type EdgeIndex uint32

// NodeKey identifies a node: the fingerprint of the scheduling state
// joined with the region about to execute. The same state with
// different upcoming code is a different node.
type NodeKey struct {
	State  hash.Sig
	Region uint64
}

// KeyHash folds the node key into a 64-bit signal key that is stable
// across stores and runs (unlike indices, which are per-store).
func (k NodeKey) KeyHash() uint64 {
	h := fnv.New64a()
	h.Write(k.State[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k.Region)
	h.Write(buf[:])
	return h.Sum64()
}

type Node struct {
	Key      NodeKey
	Level    uint8
	Task     string
	FirstGen uint64
	Visits   uint64
}

type edgeKey struct {
	From  NodeIndex
	To    NodeIndex
	Cause trace.Cause
}

type Edge struct {
	From  NodeIndex
	To    NodeIndex
	Cause trace.Cause
	Stats TimeStats
}

// KeyHash is the store-independent identity of the edge, derived from
// the endpoint keys and the cause.
func (s *Store) edgeKeyHash(e *Edge) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], s.nodes[e.From].Key.KeyHash())
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], s.nodes[e.To].Key.KeyHash())
	h.Write(buf[:])
	h.Write([]byte{uint8(e.Cause.Kind)})
	binary.LittleEndian.PutUint32(buf[:4], e.Cause.ID)
	h.Write(buf[:4])
	return h.Sum64()
}

// Store is the arena-backed graph. Nodes and edges live in dense
// slices addressed by integer indices; hash maps provide key→index
// lookup. Nothing is ever removed.
type Store struct {
	nodes     []Node
	edges     []Edge
	nodeIndex map[NodeKey]NodeIndex
	edgeIndex map[edgeKey]EdgeIndex
	out       [][]EdgeIndex // adjacency, parallel to nodes

	// Global max-duration bookkeeping across all edges.
	maxEdgeDur uint64
	maxEdge    EdgeIndex

	// Worst observed response time per distinct STG path.
	wortPerPath map[uint64]uint64
	// Worst job per (task, ABB path), aggregated across runs.
	taskRecords map[uint64]*TaskRecord
}

func NewStore() *Store {
	return &Store{
		nodeIndex:   make(map[NodeKey]NodeIndex),
		edgeIndex:   make(map[edgeKey]EdgeIndex),
		wortPerPath: make(map[uint64]uint64),
		taskRecords: make(map[uint64]*TaskRecord),
	}
}

// GetOrCreateNode returns the node for the key, creating it on first
// sight. Amortized O(1). The visit count is bumped either way.
func (s *Store) GetOrCreateNode(key NodeKey, level uint8, task string, gen uint64) (NodeIndex, bool) {
	if idx, ok := s.nodeIndex[key]; ok {
		s.nodes[idx].Visits++
		return idx, false
	}
	idx := NodeIndex(len(s.nodes))
	s.nodes = append(s.nodes, Node{
		Key:      key,
		Level:    level,
		Task:     task,
		FirstGen: gen,
		Visits:   1,
	})
	s.out = append(s.out, nil)
	s.nodeIndex[key] = idx
	return idx, true
}

// RecordEdge folds one observed transition duration into the edge's
// running statistics, creating the edge on first occurrence.
func (s *Store) RecordEdge(from, to NodeIndex, cause trace.Cause, duration uint64) (EdgeIndex, bool) {
	key := edgeKey{From: from, To: to, Cause: cause}
	idx, ok := s.edgeIndex[key]
	wasNew := !ok
	if !ok {
		idx = EdgeIndex(len(s.edges))
		s.edges = append(s.edges, Edge{From: from, To: to, Cause: cause})
		s.edgeIndex[key] = idx
		s.out[from] = append(s.out[from], idx)
	}
	s.edges[idx].Stats.Fold(duration)
	if duration > s.maxEdgeDur {
		s.maxEdgeDur = duration
		s.maxEdge = idx
	}
	return idx, wasNew
}

func (s *Store) NodeCount() int { return len(s.nodes) }
func (s *Store) EdgeCount() int { return len(s.edges) }

func (s *Store) Node(idx NodeIndex) *Node { return &s.nodes[idx] }
func (s *Store) Edge(idx EdgeIndex) *Edge { return &s.edges[idx] }

// LookupNode returns the index for a key without creating it.
func (s *Store) LookupNode(key NodeKey) (NodeIndex, bool) {
	idx, ok := s.nodeIndex[key]
	return idx, ok
}

// Out returns the outgoing edges of a node. The returned slice is
// owned by the store.
func (s *Store) Out(idx NodeIndex) []EdgeIndex {
	return s.out[idx]
}

// MaxDurationEdge returns the single longest transition ever folded.
func (s *Store) MaxDurationEdge() (EdgeIndex, uint64) {
	return s.maxEdge, s.maxEdgeDur
}

// PathWorst returns the recorded worst response time for a path hash.
func (s *Store) PathWorst(path uint64) (uint64, bool) {
	v, ok := s.wortPerPath[path]
	return v, ok
}

func (s *Store) updatePathWorst(path, response uint64, eps float64) (improved, isNew bool) {
	old, ok := s.wortPerPath[path]
	if !ok {
		s.wortPerPath[path] = response
		return true, true
	}
	if float64(response) > float64(old)*(1+eps) {
		s.wortPerPath[path] = response
		return true, false
	}
	return false, false
}

// TaskRecord aggregates the worst job seen for one (task, ABB path)
// identity across runs.
type TaskRecord struct {
	Task          string
	PathHash      uint64
	WorstResponse uint64
	WorstExec     uint64
}

func (rec *TaskRecord) update(job *trace.Job) bool {
	improved := false
	if job.Response() > rec.WorstResponse {
		rec.WorstResponse = job.Response()
		improved = true
	}
	if job.Exec > rec.WorstExec {
		rec.WorstExec = job.Exec
		improved = true
	}
	return improved
}

// FoldJob records a complete job into the per-task worst bookkeeping.
func (s *Store) FoldJob(job *trace.Job) bool {
	key := job.PathHash()
	rec, ok := s.taskRecords[key]
	if !ok {
		s.taskRecords[key] = &TaskRecord{
			Task:          job.Task,
			PathHash:      key,
			WorstResponse: job.Response(),
			WorstExec:     job.Exec,
		}
		return true
	}
	return rec.update(job)
}

// TaskWorst returns the worst record for a job path, if any.
func (s *Store) TaskWorst(path uint64) (*TaskRecord, bool) {
	rec, ok := s.taskRecords[path]
	return rec, ok
}

// Records returns all per-task worst-job records, worst response
// first.
func (s *Store) Records() []*TaskRecord {
	recs := make([]*TaskRecord, 0, len(s.taskRecords))
	for _, rec := range s.taskRecords {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].WorstResponse != recs[j].WorstResponse {
			return recs[i].WorstResponse > recs[j].WorstResponse
		}
		return recs[i].PathHash < recs[j].PathHash
	})
	return recs
}

// WorstPaths returns a copy of the per-path worst response table.
func (s *Store) WorstPaths() map[uint64]uint64 {
	m := make(map[uint64]uint64, len(s.wortPerPath))
	for k, v := range s.wortPerPath {
		m[k] = v
	}
	return m
}
