// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ostarget interprets raw kernel snapshots captured by the
// emulator hooks. Each supported RTOS registers a Decoder that turns
// the opaque hook payload into a canonical SystemState; the rest of
// the fuzzer only ever sees the canonical form and its fingerprint.
package ostarget

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
)

// TaskStatus is the scheduling state of one task inside a snapshot.
type TaskStatus uint8

const (
	TaskRunning TaskStatus = iota
	TaskReady
	TaskBlocked
	TaskSuspended
	TaskDelayed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskReady:
		return "ready"
	case TaskBlocked:
		return "blocked"
	case TaskSuspended:
		return "suspended"
	case TaskDelayed:
		return "delayed"
	}
	return fmt.Sprintf("status%d", uint8(s))
}

// TaskView is the scheduling-relevant projection of one task control
// block. Tasks are identified by name because TCB addresses vary
// between runs; entry points are stable and kept for job attribution.
type TaskView struct {
	Name     string
	Entry    uint64
	Priority uint8
	Status   TaskStatus
	Notified uint32
}

// SystemState is the canonicalized, hashable projection of a raw
// snapshot. Execution-context fields (return addresses, scratch
// registers) never make it into this struct, so two executions that
// reach the same scheduling situation hash identically no matter how
// they got there.
type SystemState struct {
	CurrentTask string
	Tasks       []TaskView // sorted by name
	ReadyOrder  []string   // ready queue, highest priority first
	HeldMutexes []string
	PendingBits uint32
}

// Normalize sorts the task list so that the hash does not depend on
// the order the decoder walked kernel lists in.
func (s *SystemState) Normalize() {
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].Name < s.Tasks[j].Name })
}

// Hash fingerprints the state. It is a pure function of the canonical
// fields; callers treat equal hashes as equal states.
func (s *SystemState) Hash() hash.Sig {
	w := newWriter()
	w.str(s.CurrentTask)
	w.u32(uint32(len(s.Tasks)))
	for _, t := range s.Tasks {
		w.str(t.Name)
		w.u64(t.Entry)
		w.u8(t.Priority)
		w.u8(uint8(t.Status))
		w.u32(t.Notified)
	}
	w.u32(uint32(len(s.ReadyOrder)))
	for _, name := range s.ReadyOrder {
		w.str(name)
	}
	w.u32(uint32(len(s.HeldMutexes)))
	for _, name := range s.HeldMutexes {
		w.str(name)
	}
	w.u32(s.PendingBits)
	return hash.Hash(w.b)
}

func (s *SystemState) Task(name string) *TaskView {
	for i := range s.Tasks {
		if s.Tasks[i].Name == name {
			return &s.Tasks[i]
		}
	}
	return nil
}

type writer struct {
	b []byte
}

func newWriter() *writer {
	return &writer{b: make([]byte, 0, 128)}
}

func (w *writer) u8(v uint8)   { w.b = append(w.b, v) }
func (w *writer) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64) { w.b = binary.LittleEndian.AppendUint64(w.b, v) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *writer) shortStr(s string) {
	w.u8(uint8(len(s)))
	w.b = append(w.b, s...)
}

// Decoder is the per-OS snapshot interpretation strategy. Decode
// returns an error for malformed or partial captures; the caller
// discards the execution's remaining contribution and carries on.
type Decoder interface {
	Name() string
	Decode(payload []byte) (*SystemState, error)
}

var decoders = make(map[string]Decoder)

func Register(dec Decoder) {
	if _, ok := decoders[dec.Name()]; ok {
		panic(fmt.Sprintf("ostarget: duplicate decoder %q", dec.Name()))
	}
	decoders[dec.Name()] = dec
}

func Get(name string) (Decoder, error) {
	dec, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("ostarget: unknown target OS %q", name)
	}
	return dec, nil
}
