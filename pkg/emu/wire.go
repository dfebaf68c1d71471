// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package emu

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"

	"github.com/SunilChowdary1909/FRET/pkg/log"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
	"github.com/SunilChowdary1909/FRET/prog"
)

// Event stream wire format spoken by external emulator harnesses. The
// harness receives the serialized input on stdin and writes the
// framed event stream to stdout.

const (
	wireMagic   = "FEVS"
	wireVersion = 1
)

func MarshalEvents(events []trace.Event) []byte {
	b := make([]byte, 0, 16+64*len(events))
	b = append(b, wireMagic...)
	b = append(b, wireVersion)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(events)))
	for i := range events {
		ev := &events[i]
		b = binary.LittleEndian.AppendUint64(b, ev.Tick)
		b = append(b, uint8(ev.Kind))
		b = binary.LittleEndian.AppendUint32(b, ev.ID)
		b = binary.LittleEndian.AppendUint64(b, ev.Region.Start)
		b = append(b, ev.Region.Level)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ev.Region.Name)))
		b = append(b, ev.Region.Name...)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ev.Region.Ends)))
		for _, end := range ev.Region.Ends {
			b = binary.LittleEndian.AppendUint64(b, end)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ev.Payload)))
		b = append(b, ev.Payload...)
	}
	return b
}

func UnmarshalEvents(data []byte) ([]trace.Event, error) {
	if len(data) < 9 || string(data[:4]) != wireMagic {
		return nil, fmt.Errorf("emu: bad event stream magic")
	}
	if data[4] != wireVersion {
		return nil, fmt.Errorf("emu: unsupported event stream version %d", data[4])
	}
	n := int(binary.LittleEndian.Uint32(data[5:]))
	data = data[9:]
	take := func(k int) ([]byte, error) {
		if len(data) < k {
			return nil, fmt.Errorf("emu: truncated event stream")
		}
		chunk := data[:k]
		data = data[k:]
		return chunk, nil
	}
	events := make([]trace.Event, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := take(8 + 1 + 4 + 8 + 1 + 4)
		if err != nil {
			return nil, err
		}
		var ev trace.Event
		ev.Tick = binary.LittleEndian.Uint64(hdr)
		ev.Kind = trace.Kind(hdr[8])
		ev.ID = binary.LittleEndian.Uint32(hdr[9:])
		ev.Region.Start = binary.LittleEndian.Uint64(hdr[13:])
		ev.Region.Level = hdr[21]
		name, err := take(int(binary.LittleEndian.Uint32(hdr[22:])))
		if err != nil {
			return nil, err
		}
		ev.Region.Name = string(name)
		cnt, err := take(4)
		if err != nil {
			return nil, err
		}
		nends := int(binary.LittleEndian.Uint32(cnt))
		for j := 0; j < nends; j++ {
			end, err := take(8)
			if err != nil {
				return nil, err
			}
			ev.Region.Ends = append(ev.Region.Ends, binary.LittleEndian.Uint64(end))
		}
		plen, err := take(4)
		if err != nil {
			return nil, err
		}
		payload, err := take(int(binary.LittleEndian.Uint32(plen)))
		if err != nil {
			return nil, err
		}
		if len(payload) != 0 {
			ev.Payload = append([]byte{}, payload...)
		}
		events = append(events, ev)
	}
	return events, nil
}

// External runs each input through an emulator harness process. The
// harness owns the target binary and the instrumentation hooks; this
// side only speaks the wire protocol.
type External struct {
	Bin  string
	Args []string

	pending []uint64
}

func (e *External) InjectInterrupt(tick uint64) {
	e.pending = append(e.pending, tick)
}

func (e *External) Run(ctx context.Context, in *prog.Input) (*Result, error) {
	if len(e.pending) > 0 {
		merged := in.Clone()
		merged.Interrupts = append(merged.Interrupts, e.pending...)
		merged.Normalize()
		e.pending = nil
		in = merged
	}
	cmd := exec.CommandContext(ctx, e.Bin, e.Args...)
	cmd.Stdin = bytes.NewReader(in.Serialize())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		// A dying harness is an infrastructure failure, not a target
		// crash; target crashes arrive as crash events in the stream.
		return nil, fmt.Errorf("emu: harness %v: %w (stderr: %s)", e.Bin, err, stderr.Bytes())
	}
	events, err := UnmarshalEvents(stdout.Bytes())
	if err != nil {
		if ctx.Err() != nil {
			// Killed mid-write. Hand back what we have; the missing
			// terminal event marks the trace as timed out downstream.
			log.Logf(2, "harness killed at deadline, partial stream dropped: %v", err)
			return &Result{}, nil
		}
		return nil, err
	}
	res := &Result{Events: events}
	if len(events) > 0 {
		res.LastTick = events[len(events)-1].Tick
	}
	return res, nil
}
