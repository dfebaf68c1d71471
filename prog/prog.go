// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package prog defines the fuzzed input: the byte payload the target
// tasks read, plus the interrupt schedule the emulator fires while
// the target runs. The schedule is an ordered list of absolute tick
// offsets; it is the main mutation surface for timing exploration.
package prog

import (
	"encoding/binary"
	"fmt"
	"sort"
)

type Input struct {
	Data []byte
	// Interrupts holds absolute firing offsets in emulator ticks,
	// non-decreasing. The emulator injects interrupt line IRQLine at
	// each offset.
	Interrupts []uint64
}

// IRQLine is the interrupt line the schedule drives. Multi-line
// schedules are a per-campaign extension; one line suffices for the
// supported targets.
const IRQLine = 2

func (in *Input) Clone() *Input {
	c := &Input{
		Data:       append([]byte{}, in.Data...),
		Interrupts: append([]uint64{}, in.Interrupts...),
	}
	return c
}

// Validate checks the schedule invariant: offsets sorted and within
// the horizon. Data is unconstrained.
func (in *Input) Validate(maxTick uint64) error {
	for i, off := range in.Interrupts {
		if i > 0 && off < in.Interrupts[i-1] {
			return fmt.Errorf("prog: interrupt schedule not sorted at %d", i)
		}
		if maxTick != 0 && off > maxTick {
			return fmt.Errorf("prog: interrupt offset %d beyond horizon %d", off, maxTick)
		}
	}
	return nil
}

// Normalize restores the schedule invariant after external edits.
func (in *Input) Normalize() {
	in.sortSchedule()
}

func (in *Input) sortSchedule() {
	sort.Slice(in.Interrupts, func(i, j int) bool { return in.Interrupts[i] < in.Interrupts[j] })
}

const (
	inputMagic   = "FINP"
	inputVersion = 1
)

func (in *Input) Serialize() []byte {
	b := make([]byte, 0, 16+len(in.Data)+8*len(in.Interrupts))
	b = append(b, inputMagic...)
	b = append(b, inputVersion)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(in.Data)))
	b = append(b, in.Data...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(in.Interrupts)))
	for _, off := range in.Interrupts {
		b = binary.LittleEndian.AppendUint64(b, off)
	}
	return b
}

func Deserialize(data []byte) (*Input, error) {
	if len(data) < 5 || string(data[:4]) != inputMagic {
		return nil, fmt.Errorf("prog: bad input magic")
	}
	if data[4] != inputVersion {
		return nil, fmt.Errorf("prog: unsupported input version %d", data[4])
	}
	data = data[5:]
	if len(data) < 4 {
		return nil, fmt.Errorf("prog: truncated input")
	}
	n := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < n+4 {
		return nil, fmt.Errorf("prog: truncated input data")
	}
	in := &Input{Data: append([]byte{}, data[:n]...)}
	data = data[n:]
	m := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < m*8 {
		return nil, fmt.Errorf("prog: truncated interrupt schedule")
	}
	for i := 0; i < m; i++ {
		in.Interrupts = append(in.Interrupts, binary.LittleEndian.Uint64(data[i*8:]))
	}
	if err := in.Validate(0); err != nil {
		return nil, err
	}
	return in, nil
}
