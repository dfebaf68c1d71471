// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package trace

import (
	"fmt"

	"github.com/SunilChowdary1909/FRET/pkg/hash"
	"github.com/SunilChowdary1909/FRET/pkg/ostarget"
)

// Build turns the ordered event stream of one execution into the
// ordered interval sequence. The first interval starts at the
// post-reset snapshot; the last one ends at the stopping condition.
// A malformed snapshot truncates the trace at the last good capture
// and is reported as an error; the partial trace is still usable.
func Build(events []Event, dec ostarget.Decoder) (*Trace, error) {
	tr := &Trace{States: make(map[hash.Sig]stateEntry)}
	var havePrev bool
	var prev boundary
	for i := range events {
		ev := &events[i]
		switch {
		case ev.Kind.snapshot():
			cur, err := decodeBoundary(tr, ev, dec)
			if err != nil {
				tr.DecodeFailed = true
				tr.EndTick = prev.tick
				return tr, fmt.Errorf("event %d at tick %d: %w", i, ev.Tick, err)
			}
			if havePrev {
				tr.Intervals = append(tr.Intervals, interval(prev, cur))
			}
			prev, havePrev = cur, true
			tr.EndTick = ev.Tick
		case ev.Kind == KindJobStart || ev.Kind == KindJobEnd:
			// Job markers name the task directly; the hook resolves
			// it from the TCB. Older hook builds leave the payload
			// empty, then the running task is assumed.
			task := string(ev.Payload)
			if task == "" && havePrev {
				task = tr.States[prev.state].currentTask
			}
			tr.Markers = append(tr.Markers, Marker{
				Tick:  ev.Tick,
				Start: ev.Kind == KindJobStart,
				Task:  task,
			})
		case ev.Kind.terminal():
			tr.EndTick = ev.Tick
			switch ev.Kind {
			case KindCrash:
				tr.Outcome = OutcomeCrashed
			case KindTimeout:
				tr.Outcome = OutcomeTimedOut
			default:
				tr.Outcome = OutcomeCompleted
			}
			// A terminal event may carry a final snapshot; without
			// one the trace just ends at the last good capture.
			if len(ev.Payload) != 0 && havePrev {
				cur, err := decodeBoundary(tr, ev, dec)
				if err != nil {
					tr.DecodeFailed = true
					return tr, fmt.Errorf("terminal event at tick %d: %w", ev.Tick, err)
				}
				tr.Intervals = append(tr.Intervals, interval(prev, cur))
			}
			return tr, nil
		default:
			tr.DecodeFailed = true
			return tr, fmt.Errorf("event %d: unexpected kind %v", i, ev.Kind)
		}
	}
	// Stream ended without a terminal event: the harvest was cut
	// short, treat it like a timeout so the partial data is kept.
	tr.Outcome = OutcomeTimedOut
	return tr, nil
}

type boundary struct {
	state  hash.Sig
	tick   uint64
	region Block
	cause  Cause
}

func decodeBoundary(tr *Trace, ev *Event, dec ostarget.Decoder) (boundary, error) {
	state, err := dec.Decode(ev.Payload)
	if err != nil {
		return boundary{}, err
	}
	sig := state.Hash()
	if _, ok := tr.States[sig]; !ok {
		tr.States[sig] = stateEntry{currentTask: state.CurrentTask}
	}
	return boundary{
		state:  sig,
		tick:   ev.Tick,
		region: ev.Region,
		cause:  Cause{Kind: ev.Kind, ID: ev.ID},
	}, nil
}

func interval(from, to boundary) ExecInterval {
	return ExecInterval{
		StartState: from.state,
		EndState:   to.state,
		Region:     from.region,
		StartTick:  from.tick,
		EndTick:    to.tick,
		Cause:      from.cause,
	}
}
