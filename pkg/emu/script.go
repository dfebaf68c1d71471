// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package emu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/SunilChowdary1909/FRET/pkg/ostarget"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
	"github.com/SunilChowdary1909/FRET/prog"
)

// Scripted replays a fixed event timeline and splices the input's
// interrupt schedule into it. Each scheduled offset becomes an
// interrupt snapshot taken from the script's irq template, so a
// different schedule produces different interval boundaries while the
// run stays fully deterministic.
type Scripted struct {
	events  []trace.Event
	irq     *trace.Event
	pending []uint64
}

// ParseScript reads a scripted timeline. Grammar, one event per line:
//
//	<tick> <kind> [id=N] [block=<name>@<start>-<end>/<level>] \
//	    [cur=<task>] [tasks=<name>:<prio>:<status>:<notified>,...] \
//	    [ready=a,b] [held=m1,m2] [bits=0xN] [task=<name>]
//
// A line starting with "irq" instead of a tick defines the template
// used for injected interrupts. Blank lines and # comments are
// skipped. Snapshot kinds build a FreeRTOS state payload from the
// state keys; jobstart/jobend carry task= as payload.
func ParseScript(r io.Reader) (*Scripted, error) {
	s := &Scripted{}
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "irq" {
			ev, err := parseEvent("0", "interrupt", fields[1:])
			if err != nil {
				return nil, fmt.Errorf("emu: line %d: %w", lineno, err)
			}
			s.irq = ev
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("emu: line %d: want <tick> <kind> ...", lineno)
		}
		ev, err := parseEvent(fields[0], fields[1], fields[2:])
		if err != nil {
			return nil, fmt.Errorf("emu: line %d: %w", lineno, err)
		}
		s.events = append(s.events, *ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("emu: %w", err)
	}
	if len(s.events) == 0 {
		return nil, fmt.Errorf("emu: empty script")
	}
	return s, nil
}

func LoadScript(path string) (*Scripted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("emu: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

func (s *Scripted) Run(ctx context.Context, in *prog.Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{Events: append([]trace.Event{}, s.events...)}
	offsets := append(append([]uint64{}, in.Interrupts...), s.pending...)
	s.pending = nil
	if s.irq != nil {
		end := res.Events[len(res.Events)-1].Tick
		for _, off := range offsets {
			if off >= end {
				continue
			}
			ev := *s.irq
			ev.Tick = off
			if ev.ID == 0 {
				ev.ID = prog.IRQLine
			}
			res.Events = append(res.Events, ev)
		}
	}
	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Tick < res.Events[j].Tick
	})
	res.LastTick = res.Events[len(res.Events)-1].Tick
	return res, nil
}

func (s *Scripted) InjectInterrupt(tick uint64) {
	s.pending = append(s.pending, tick)
}

var kindNames = map[string]trace.Kind{
	"syscall":      trace.KindSyscall,
	"syscallret":   trace.KindSyscallRet,
	"interrupt":    trace.KindInterrupt,
	"interruptret": trace.KindInterruptRet,
	"tick":         trace.KindTick,
	"jobstart":     trace.KindJobStart,
	"jobend":       trace.KindJobEnd,
	"end":          trace.KindEnd,
	"crash":        trace.KindCrash,
	"timeout":      trace.KindTimeout,
}

var statusNames = map[string]ostarget.TaskStatus{
	"running":   ostarget.TaskRunning,
	"ready":     ostarget.TaskReady,
	"blocked":   ostarget.TaskBlocked,
	"suspended": ostarget.TaskSuspended,
	"delayed":   ostarget.TaskDelayed,
}

func parseEvent(tickStr, kindStr string, kvs []string) (*trace.Event, error) {
	tick, err := strconv.ParseUint(tickStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad tick %q", tickStr)
	}
	kind, ok := kindNames[kindStr]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", kindStr)
	}
	ev := &trace.Event{Tick: tick, Kind: kind}
	state := &ostarget.SystemState{}
	haveState := false
	for _, kv := range kvs {
		key, val, found := strings.Cut(kv, "=")
		if !found {
			return nil, fmt.Errorf("bad field %q", kv)
		}
		switch key {
		case "id":
			id, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad id %q", val)
			}
			ev.ID = uint32(id)
		case "block":
			blk, err := parseBlock(val)
			if err != nil {
				return nil, err
			}
			ev.Region = blk
		case "cur":
			state.CurrentTask = val
			haveState = true
		case "tasks":
			for _, spec := range strings.Split(val, ",") {
				tv, err := parseTask(spec)
				if err != nil {
					return nil, err
				}
				state.Tasks = append(state.Tasks, tv)
			}
			haveState = true
		case "ready":
			if val != "-" {
				state.ReadyOrder = strings.Split(val, ",")
			}
			haveState = true
		case "held":
			if val != "-" {
				state.HeldMutexes = strings.Split(val, ",")
			}
			haveState = true
		case "bits":
			bits, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("bad bits %q", val)
			}
			state.PendingBits = uint32(bits)
			haveState = true
		case "task":
			ev.Payload = []byte(val)
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	if haveState {
		state.Normalize()
		ev.Payload = ostarget.EncodeFreeRTOS(state)
	}
	return ev, nil
}

// parseBlock decodes <name>@<start>-<end>/<level>, addresses in hex.
func parseBlock(s string) (trace.Block, error) {
	name, rest, found := strings.Cut(s, "@")
	if !found {
		return trace.Block{}, fmt.Errorf("bad block %q", s)
	}
	addrs, levelStr, found := strings.Cut(rest, "/")
	if !found {
		return trace.Block{}, fmt.Errorf("bad block %q", s)
	}
	startStr, endStr, found := strings.Cut(addrs, "-")
	if !found {
		return trace.Block{}, fmt.Errorf("bad block %q", s)
	}
	start, err := strconv.ParseUint(strings.TrimPrefix(startStr, "0x"), 16, 64)
	if err != nil {
		return trace.Block{}, fmt.Errorf("bad block start %q", startStr)
	}
	end, err := strconv.ParseUint(strings.TrimPrefix(endStr, "0x"), 16, 64)
	if err != nil {
		return trace.Block{}, fmt.Errorf("bad block end %q", endStr)
	}
	level, err := strconv.ParseUint(levelStr, 10, 8)
	if err != nil {
		return trace.Block{}, fmt.Errorf("bad block level %q", levelStr)
	}
	return trace.Block{Start: start, Ends: []uint64{end}, Level: uint8(level), Name: name}, nil
}

// parseTask decodes <name>:<prio>:<status>:<notified>.
func parseTask(s string) (ostarget.TaskView, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return ostarget.TaskView{}, fmt.Errorf("bad task %q", s)
	}
	prio, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return ostarget.TaskView{}, fmt.Errorf("bad task priority %q", parts[1])
	}
	status, ok := statusNames[parts[2]]
	if !ok {
		return ostarget.TaskView{}, fmt.Errorf("bad task status %q", parts[2])
	}
	notified, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return ostarget.TaskView{}, fmt.Errorf("bad task notified %q", parts[3])
	}
	return ostarget.TaskView{
		Name:     parts[0],
		Priority: uint8(prio),
		Status:   status,
		Notified: uint32(notified),
	}, nil
}
