// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"fmt"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
)

// Traces round-trip losslessly so that stored cases can be compared
// bit-for-bit during reproducibility checks. The state map is
// execution-scoped and not part of the persisted form.

const (
	traceMagic   = "FTRC"
	traceVersion = 1
)

func (tr *Trace) Serialize() []byte {
	w := serialWriter{}
	w.bytes([]byte(traceMagic))
	w.u8(traceVersion)
	w.u8(uint8(tr.Outcome))
	w.u64(tr.EndTick)
	w.bool(tr.DecodeFailed)
	w.u32(uint32(len(tr.Intervals)))
	for i := range tr.Intervals {
		iv := &tr.Intervals[i]
		w.bytes(iv.StartState[:])
		w.bytes(iv.EndState[:])
		w.block(&iv.Region)
		w.u64(iv.StartTick)
		w.u64(iv.EndTick)
		w.u8(uint8(iv.Cause.Kind))
		w.u32(iv.Cause.ID)
	}
	w.u32(uint32(len(tr.Markers)))
	for _, m := range tr.Markers {
		w.u64(m.Tick)
		w.bool(m.Start)
		w.str(m.Task)
	}
	return w.b
}

func Deserialize(data []byte) (*Trace, error) {
	r := serialReader{b: data}
	if string(r.take(4)) != traceMagic {
		return nil, fmt.Errorf("trace: bad magic")
	}
	if v := r.u8(); r.err == nil && v != traceVersion {
		return nil, fmt.Errorf("trace: unsupported version %d", v)
	}
	tr := &Trace{States: make(map[hash.Sig]stateEntry)}
	tr.Outcome = Outcome(r.u8())
	tr.EndTick = r.u64()
	tr.DecodeFailed = r.bool()
	n := int(r.u32())
	for i := 0; i < n && r.err == nil; i++ {
		var iv ExecInterval
		copy(iv.StartState[:], r.take(len(iv.StartState)))
		copy(iv.EndState[:], r.take(len(iv.EndState)))
		iv.Region = r.block()
		iv.StartTick = r.u64()
		iv.EndTick = r.u64()
		iv.Cause.Kind = Kind(r.u8())
		iv.Cause.ID = r.u32()
		tr.Intervals = append(tr.Intervals, iv)
	}
	n = int(r.u32())
	for i := 0; i < n && r.err == nil; i++ {
		var m Marker
		m.Tick = r.u64()
		m.Start = r.bool()
		m.Task = r.str()
		tr.Markers = append(tr.Markers, m)
	}
	if r.err != nil {
		return nil, fmt.Errorf("trace: %w", r.err)
	}
	return tr, nil
}

type serialWriter struct {
	b []byte
}

func (w *serialWriter) bytes(b []byte) { w.b = append(w.b, b...) }
func (w *serialWriter) u8(v uint8)     { w.b = append(w.b, v) }
func (w *serialWriter) u32(v uint32)   { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *serialWriter) u64(v uint64)   { w.b = binary.LittleEndian.AppendUint64(w.b, v) }

func (w *serialWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *serialWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.bytes([]byte(s))
}

func (w *serialWriter) block(b *Block) {
	w.u64(b.Start)
	w.u8(b.Level)
	w.str(b.Name)
	w.u32(uint32(len(b.Ends)))
	for _, end := range b.Ends {
		w.u64(end)
	}
}

type serialReader struct {
	b   []byte
	err error
}

func (r *serialReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("truncated: want %d bytes, have %d", n, len(r.b))
		return nil
	}
	chunk := r.b[:n]
	r.b = r.b[n:]
	return chunk
}

func (r *serialReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *serialReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *serialReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *serialReader) bool() bool {
	return r.u8() != 0
}

func (r *serialReader) str() string {
	n := r.u32()
	return string(r.take(int(n)))
}

func (r *serialReader) block() Block {
	var b Block
	b.Start = r.u64()
	b.Level = r.u8()
	b.Name = r.str()
	n := int(r.u32())
	for i := 0; i < n && r.err == nil; i++ {
		b.Ends = append(b.Ends, r.u64())
	}
	return b
}
