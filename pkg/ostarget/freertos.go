// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ostarget

import (
	"encoding/binary"
	"fmt"
)

// FreeRTOS snapshot payload layout, produced by the QEMU hook module:
//
//	u8   version (currently 1)
//	str  current task name
//	u8   task count
//	per task: str name, u64 entry, u8 priority, u8 status, u32 notified
//	u8   ready count, str names (highest priority first)
//	u8   mutex count, str names
//	u32  pending event bits
//	...  trailing execution context (registers), ignored
//
// Strings are u8 length-prefixed. Everything after the pending bits is
// execution context and deliberately not decoded.
const freertosPayloadVersion = 1

type freertosDecoder struct{}

func init() {
	Register(freertosDecoder{})
}

func (freertosDecoder) Name() string {
	return "freertos"
}

func (freertosDecoder) Decode(payload []byte) (*SystemState, error) {
	r := reader{b: payload}
	ver := r.u8()
	if r.err == nil && ver != freertosPayloadVersion {
		return nil, fmt.Errorf("freertos: snapshot version %d not supported", ver)
	}
	state := &SystemState{
		CurrentTask: r.str(),
	}
	ntasks := int(r.u8())
	for i := 0; i < ntasks; i++ {
		task := TaskView{
			Name:     r.str(),
			Entry:    r.u64(),
			Priority: r.u8(),
		}
		status := r.u8()
		if r.err == nil && status > uint8(TaskDelayed) {
			return nil, fmt.Errorf("freertos: task %q has bad status %d", task.Name, status)
		}
		task.Status = TaskStatus(status)
		task.Notified = r.u32()
		state.Tasks = append(state.Tasks, task)
	}
	nready := int(r.u8())
	for i := 0; i < nready; i++ {
		state.ReadyOrder = append(state.ReadyOrder, r.str())
	}
	nmutex := int(r.u8())
	for i := 0; i < nmutex; i++ {
		state.HeldMutexes = append(state.HeldMutexes, r.str())
	}
	state.PendingBits = r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("freertos: malformed snapshot: %w", r.err)
	}
	state.Normalize()
	return state, nil
}

// EncodeFreeRTOS produces a payload that Decode parses back into
// state. The scripted emulator and replay tooling use it to
// synthesize hook captures.
func EncodeFreeRTOS(state *SystemState) []byte {
	w := newWriter()
	w.u8(freertosPayloadVersion)
	w.shortStr(state.CurrentTask)
	w.u8(uint8(len(state.Tasks)))
	for _, t := range state.Tasks {
		w.shortStr(t.Name)
		w.u64(t.Entry)
		w.u8(t.Priority)
		w.u8(uint8(t.Status))
		w.u32(t.Notified)
	}
	w.u8(uint8(len(state.ReadyOrder)))
	for _, name := range state.ReadyOrder {
		w.shortStr(name)
	}
	w.u8(uint8(len(state.HeldMutexes)))
	for _, name := range state.HeldMutexes {
		w.shortStr(name)
	}
	w.u32(state.PendingBits)
	return w.b
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
		r.err = fmt.Errorf("payload truncated: want %d bytes, have %d", n, len(r.b))
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
	n := r.u8()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
