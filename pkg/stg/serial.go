// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stg

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

// The graph snapshot is deterministic: nodes and edges are written in
// index order and the bookkeeping maps in sorted key order, so two
// identical replays serialize to identical bytes for all integer
// fields. Mean and variance are written as raw float bits and compare
// within tolerance only.

const (
	stgMagic   = "FSTG"
	stgVersion = 1
)

// Snapshot serializes the entire store.
func (s *Store) Snapshot() []byte {
	w := writer{}
	w.bytes([]byte(stgMagic))
	w.u8(stgVersion)
	w.u32(uint32(len(s.nodes)))
	for i := range s.nodes {
		n := &s.nodes[i]
		w.bytes(n.Key.State[:])
		w.u64(n.Key.Region)
		w.u8(n.Level)
		w.str(n.Task)
		w.u64(n.FirstGen)
		w.u64(n.Visits)
	}
	w.u32(uint32(len(s.edges)))
	for i := range s.edges {
		e := &s.edges[i]
		w.u32(uint32(e.From))
		w.u32(uint32(e.To))
		w.u8(uint8(e.Cause.Kind))
		w.u32(e.Cause.ID)
		w.u64(e.Stats.Count)
		w.u64(e.Stats.Min)
		w.u64(e.Stats.Max)
		w.u64(math.Float64bits(e.Stats.Mean))
		w.u64(math.Float64bits(e.Stats.m2))
	}
	w.u64(s.maxEdgeDur)
	w.u32(uint32(s.maxEdge))

	paths := make([]uint64, 0, len(s.wortPerPath))
	for k := range s.wortPerPath {
		paths = append(paths, k)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	w.u32(uint32(len(paths)))
	for _, k := range paths {
		w.u64(k)
		w.u64(s.wortPerPath[k])
	}

	recs := make([]uint64, 0, len(s.taskRecords))
	for k := range s.taskRecords {
		recs = append(recs, k)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i] < recs[j] })
	w.u32(uint32(len(recs)))
	for _, k := range recs {
		rec := s.taskRecords[k]
		w.u64(k)
		w.str(rec.Task)
		w.u64(rec.WorstResponse)
		w.u64(rec.WorstExec)
	}
	return w.b
}

// Restore rebuilds a store from a snapshot. Failure aborts whatever
// requested the restore; it never corrupts an existing store.
func Restore(data []byte) (*Store, error) {
	r := reader{b: data}
	if string(r.take(4)) != stgMagic {
		return nil, fmt.Errorf("stg: bad snapshot magic")
	}
	if v := r.u8(); r.err == nil && v != stgVersion {
		return nil, fmt.Errorf("stg: unsupported snapshot version %d", v)
	}
	s := NewStore()
	nnodes := int(r.u32())
	for i := 0; i < nnodes && r.err == nil; i++ {
		var n Node
		sig, _ := hash.FromBytes(r.take(len(n.Key.State)))
		n.Key.State = sig
		n.Key.Region = r.u64()
		n.Level = r.u8()
		n.Task = r.str()
		n.FirstGen = r.u64()
		n.Visits = r.u64()
		s.nodes = append(s.nodes, n)
		s.out = append(s.out, nil)
		s.nodeIndex[n.Key] = NodeIndex(i)
	}
	nedges := int(r.u32())
	for i := 0; i < nedges && r.err == nil; i++ {
		var e Edge
		e.From = NodeIndex(r.u32())
		e.To = NodeIndex(r.u32())
		e.Cause.Kind = trace.Kind(r.u8())
		e.Cause.ID = r.u32()
		e.Stats.Count = r.u64()
		e.Stats.Min = r.u64()
		e.Stats.Max = r.u64()
		e.Stats.Mean = math.Float64frombits(r.u64())
		e.Stats.m2 = math.Float64frombits(r.u64())
		if r.err != nil {
			break
		}
		if int(e.From) >= len(s.nodes) || int(e.To) >= len(s.nodes) {
			return nil, fmt.Errorf("stg: edge %d references missing node", i)
		}
		s.edges = append(s.edges, e)
		s.edgeIndex[edgeKey{From: e.From, To: e.To, Cause: e.Cause}] = EdgeIndex(i)
		s.out[e.From] = append(s.out[e.From], EdgeIndex(i))
	}
	s.maxEdgeDur = r.u64()
	s.maxEdge = EdgeIndex(r.u32())
	npaths := int(r.u32())
	for i := 0; i < npaths && r.err == nil; i++ {
		k := r.u64()
		s.wortPerPath[k] = r.u64()
	}
	nrecs := int(r.u32())
	for i := 0; i < nrecs && r.err == nil; i++ {
		k := r.u64()
		rec := &TaskRecord{PathHash: k}
		rec.Task = r.str()
		rec.WorstResponse = r.u64()
		rec.WorstExec = r.u64()
		s.taskRecords[k] = rec
	}
	if r.err != nil {
		return nil, fmt.Errorf("stg: %w", r.err)
	}
	if int(s.maxEdge) >= len(s.edges) && len(s.edges) > 0 {
		return nil, fmt.Errorf("stg: max edge index out of range")
	}
	return s, nil
}

type writer struct {
	b []byte
}

func (w *writer) bytes(b []byte) { w.b = append(w.b, b...) }
func (w *writer) u8(v uint8)     { w.b = append(w.b, v) }
func (w *writer) u32(v uint32)   { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64)   { w.b = binary.LittleEndian.AppendUint64(w.b, v) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.bytes([]byte(s))
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("snapshot truncated: want %d bytes, have %d", n, len(r.b))
		return nil
	}
	chunk := r.b[:n]
	r.b = r.b[n:]
	return chunk
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	n := r.u32()
	return string(r.take(int(n)))
}
