// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package emu abstracts the target execution environment. The fuzzer
// only needs one capability: run an input under a deterministic clock
// and hand back the instrumentation event stream. Production targets
// run under an external emulator process; tests and replay use the
// scripted emulator.
package emu

import (
	"context"

	"github.com/SunilChowdary1909/FRET/pkg/trace"
	"github.com/SunilChowdary1909/FRET/prog"
)

// Result is one execution's raw event stream. Interpretation
// (interval building, outcome, jobs) happens in the trace package.
type Result struct {
	Events   []trace.Event
	LastTick uint64
}

type Emulator interface {
	// Run executes the input to completion, crash, or the context
	// deadline. Determinism contract: the same input plus the same
	// injected interrupts must produce the same event stream.
	Run(ctx context.Context, in *prog.Input) (*Result, error)
	// InjectInterrupt queues one extra interrupt firing at the given
	// tick for the next Run, on top of the input's schedule.
	InjectInterrupt(tick uint64)
}
