// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package trace holds the capture-side data model of one target
// execution: the timestamped hook event stream, the code regions the
// events refer to, and the execution intervals derived from
// consecutive kernel snapshots. Intervals are transient; they are
// folded into the state transition graph and discarded.
package trace

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
)

// Kind tags one capture event from the emulator hooks.
type Kind uint8

const (
	KindNone Kind = iota
	KindSyscall
	KindSyscallRet
	KindInterrupt
	KindInterruptRet
	KindTick
	KindJobStart
	KindJobEnd
	KindEnd
	KindCrash
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSyscall:
		return "syscall"
	case KindSyscallRet:
		return "sysret"
	case KindInterrupt:
		return "irq"
	case KindInterruptRet:
		return "iret"
	case KindTick:
		return "tick"
	case KindJobStart:
		return "jobstart"
	case KindJobEnd:
		return "jobend"
	case KindEnd:
		return "end"
	case KindCrash:
		return "crash"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind%d", uint8(k))
}

// snapshot reports whether events of this kind carry a state snapshot
// and therefore bound execution intervals.
func (k Kind) snapshot() bool {
	switch k {
	case KindSyscall, KindSyscallRet, KindInterrupt, KindInterruptRet, KindTick:
		return true
	}
	return false
}

// terminal reports whether events of this kind stop the execution.
func (k Kind) terminal() bool {
	return k == KindEnd || k == KindCrash || k == KindTimeout
}

// Cause identifies what drove a state transition: which syscall,
// which interrupt line, or the scheduler tick. Two transitions
// between the same node pair with different causes are distinct
// edges in the graph.
type Cause struct {
	Kind Kind
	ID   uint32
}

func (c Cause) String() string {
	return fmt.Sprintf("%v/%d", c.Kind, c.ID)
}

// Block is an atomic basic block: a single-entry, multiple-exit span
// of target code, identified by its entry point. Blocks are supplied
// by the kernel image analysis and referenced by many intervals.
type Block struct {
	Start uint64
	Ends  []uint64
	Level uint8 // 0 task code, 1 kernel API, 2 ISR
	Name  string
}

// Hash is stable across runs: entry point, level, name and the sorted
// exit set, nothing address-space dependent beyond the fixed image.
func (b *Block) Hash() uint64 {
	ends := append([]uint64{}, b.Ends...)
	sort.Slice(ends, func(i, j int) bool { return ends[i] < ends[j] })
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], b.Start)
	h.Write(buf[:])
	h.Write([]byte{b.Level})
	h.Write([]byte(b.Name))
	for _, end := range ends {
		binary.LittleEndian.PutUint64(buf[:], end)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Event is one timestamped capture from the emulator. Region names
// the block about to execute after the event; Payload is the raw
// kernel snapshot, interpreted by an ostarget.Decoder.
type Event struct {
	Tick    uint64
	Kind    Kind
	ID      uint32
	Region  Block
	Payload []byte
}

// ExecInterval is the span between two consecutive snapshots. Cause
// is the event that began the interval, Region the code that ran
// during it.
type ExecInterval struct {
	StartState hash.Sig
	EndState   hash.Sig
	Region     Block
	StartTick  uint64
	EndTick    uint64
	Cause      Cause
}

func (iv *ExecInterval) Duration() uint64 {
	return iv.EndTick - iv.StartTick
}

// Outcome is the tagged stopping condition of one execution. Crashes
// and timeouts are expected operational events, not errors; their
// partial traces still feed the graph.
type Outcome uint8

const (
	OutcomeCompleted Outcome = iota
	OutcomeTimedOut
	OutcomeCrashed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeCrashed:
		return "crashed"
	}
	return fmt.Sprintf("outcome%d", uint8(o))
}

// Marker records a job activation or completion boundary.
type Marker struct {
	Tick  uint64
	Start bool
	Task  string
}

// Trace is the decoded result of one execution.
type Trace struct {
	Intervals []ExecInterval
	Markers   []Marker
	Outcome   Outcome
	EndTick   uint64
	// DecodeFailed is set when a malformed snapshot cut the trace
	// short; everything before the bad capture is still valid.
	DecodeFailed bool

	// States maps fingerprints back to the canonical states observed
	// in this execution. Scoped to the trace, not persisted.
	States map[hash.Sig]stateEntry
}

func (tr *Trace) Truncated() bool {
	return tr.Outcome != OutcomeCompleted || tr.DecodeFailed
}

// CurrentTask resolves the task that was running at the start of the
// given interval.
func (tr *Trace) CurrentTask(iv *ExecInterval) string {
	return tr.States[iv.StartState].currentTask
}

type stateEntry struct {
	currentTask string
}
