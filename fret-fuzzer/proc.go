// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/SunilChowdary1909/FRET/pkg/corpus"
	"github.com/SunilChowdary1909/FRET/pkg/emu"
	"github.com/SunilChowdary1909/FRET/pkg/hash"
	"github.com/SunilChowdary1909/FRET/pkg/log"
	"github.com/SunilChowdary1909/FRET/pkg/stg"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
	"github.com/SunilChowdary1909/FRET/prog"
)

// Proc is a single fuzzing loop. Procs share the corpus and the graph
// through the fuzzer; each holds its own rng so runs are reproducible
// from the campaign seed, and its own emulator so executions never
// touch mutable state of another proc.
type Proc struct {
	fuzzer   *Fuzzer
	pid      int
	emulator emu.Emulator
	rnd      *rand.Rand
}

func newProc(fuzzer *Fuzzer, pid int) (*Proc, error) {
	emulator, err := fuzzer.newEmulator()
	if err != nil {
		return nil, err
	}
	return &Proc{
		fuzzer:   fuzzer,
		pid:      pid,
		emulator: emulator,
		rnd:      rand.New(rand.NewSource(fuzzer.config.Seed + int64(pid)*1e12)),
	}, nil
}

func (proc *Proc) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := proc.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proc %d: %w", proc.pid, err)
		}
	}
}

func (proc *Proc) iterate(ctx context.Context) error {
	fuzzer := proc.fuzzer
	fuzzer.mu.Lock()
	parent := fuzzer.corpus.Next()
	fuzzer.mu.Unlock()

	input := proc.mutate(parent)
	outcome, err := proc.executeAndTriage(ctx, input, parent.ID())
	if err != nil {
		return err
	}
	log.Logf(3, "proc %d: parent %d outcome %v", proc.pid, parent.ID(), outcome)
	return nil
}

// mutate derives the next input. Splice crossover at a shared graph
// node is tried first; without an anchor the schedule mutator runs,
// and an empty parent schedule falls back to a fresh random one.
func (proc *Proc) mutate(parent *corpus.Entry) *prog.Input {
	fuzzer := proc.fuzzer
	if proc.rnd.Intn(3) == 0 {
		if input := proc.splice(parent); input != nil {
			fuzzer.stats.spliceMutations.inc()
			return input
		}
	}
	if len(parent.Input.Interrupts) == 0 {
		fuzzer.stats.fallbackMutations.inc()
		input := parent.Input.Clone()
		input.Interrupts = prog.RandomSchedule(proc.rnd, fuzzer.config.Mutate)
		return input
	}
	fuzzer.stats.scheduleMutations.inc()
	return parent.Input.MutateInterrupts(proc.rnd, fuzzer.config.Mutate)
}

// splice crosses the parent with a donor that passed through the same
// graph node. Half the time the anchor is the source of the worst
// edge seen so far; otherwise a random node on the parent's path.
func (proc *Proc) splice(parent *corpus.Entry) *prog.Input {
	path := parent.Summary.Path
	if len(path) < 2 {
		return nil
	}
	fuzzer := proc.fuzzer
	fuzzer.mu.Lock()
	defer fuzzer.mu.Unlock()

	var anchor uint64
	if proc.rnd.Intn(2) == 0 {
		store := fuzzer.eval.Store()
		if idx, dur := store.MaxDurationEdge(); dur > 0 {
			anchor = store.Node(store.Edge(idx).From).Key.KeyHash()
		}
	}
	basePt, ok := pathPointFor(path, anchor)
	if !ok {
		// The parent never reached the hot node, anchor on its own
		// path instead.
		basePt = path[1+proc.rnd.Intn(len(path)-1)]
		anchor = basePt.Node
	}
	var candidates []prog.SpliceCandidate
	var gens []uint64
	for _, d := range fuzzer.corpus.ByNode(anchor) {
		if d.ID() == parent.ID() {
			continue
		}
		donorPt, ok := pathPointFor(d.Summary.Path, anchor)
		if !ok {
			continue
		}
		candidates = append(candidates, prog.SpliceCandidate{
			Donor:     d.Input,
			BaseTick:  basePt.Tick,
			DonorTick: donorPt.Tick,
		})
		gens = append(gens, d.Generation)
	}
	if len(candidates) > 1 && proc.rnd.Intn(3) == 0 {
		// Bias toward the most recently discovered donor: fresh graph
		// extensions get recombined first.
		newest := 0
		for i, gen := range gens {
			if gen > gens[newest] {
				newest = i
			}
		}
		candidates = candidates[newest : newest+1]
	}
	input, ok := prog.MutateSTGPath(proc.rnd, parent.Input, candidates)
	if !ok {
		return nil
	}
	return input
}

func pathPointFor(path []corpus.PathPoint, node uint64) (corpus.PathPoint, bool) {
	if node == 0 {
		return corpus.PathPoint{}, false
	}
	for _, pt := range path {
		if pt.Node == node {
			return pt, true
		}
	}
	return corpus.PathPoint{}, false
}

// executeAndTriage runs one input, folds it, and retains it when the
// feedback says so. Interesting inputs are replay-verified first;
// a diverging replay means the run was not deterministic and the
// entry is dropped as unreproducible.
func (proc *Proc) executeAndTriage(ctx context.Context, input *prog.Input, parentID int) (trace.Outcome, error) {
	fuzzer := proc.fuzzer
	tr, jobs, err := fuzzer.execOne(ctx, proc.emulator, input)
	if err != nil || tr == nil {
		return 0, err
	}
	v, entry := fuzzer.fold(input, tr, jobs, parentID)
	if tr.Outcome == trace.OutcomeCrashed {
		fuzzer.stats.crashes.inc()
		proc.saveCrash(input, tr)
	}
	if !v.Interesting {
		return tr.Outcome, nil
	}
	ok, err := proc.verify(ctx, input, tr)
	if err != nil {
		return 0, err
	}
	if !ok {
		fuzzer.stats.nondeterministic.inc()
		log.Logf(1, "proc %d: execution not reproducible, dropping (path %#x)", proc.pid, v.PathHash)
		return tr.Outcome, nil
	}
	fuzzer.mu.Lock()
	fuzzer.corpus.Insert(entry)
	fuzzer.mu.Unlock()
	fuzzer.stats.newInputs.inc()
	log.Logf(2, "proc %d: retained entry gen %d: +%d nodes +%d edges wort %d",
		proc.pid, entry.Generation, v.NewNodes, v.NewEdges, v.WorstResponse)
	return tr.Outcome, nil
}

// execOne runs the input under the execution timeout and builds the
// trace. Malformed state snapshots yield a partial trace that still
// counts; only infrastructure failures surface as errors.
func (fuzzer *Fuzzer) execOne(ctx context.Context, emulator emu.Emulator, input *prog.Input) (*trace.Trace, []trace.Job, error) {
	execCtx, cancel := context.WithTimeout(ctx, fuzzer.config.ExecTimeout)
	defer cancel()
	res, err := emulator.Run(execCtx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	fuzzer.stats.execTotal.inc()
	tr, err := trace.Build(res.Events, fuzzer.decoder)
	if tr == nil {
		return nil, nil, err
	}
	if tr.DecodeFailed {
		fuzzer.stats.decodeFailures.inc()
	}
	switch tr.Outcome {
	case trace.OutcomeCompleted:
		fuzzer.stats.execCompleted.inc()
	case trace.OutcomeTimedOut:
		fuzzer.stats.execTimedOut.inc()
	}
	return tr, trace.SplitJobs(tr), nil
}

// fold updates the graph under the lock and builds the would-be
// corpus entry for the execution.
func (fuzzer *Fuzzer) fold(input *prog.Input, tr *trace.Trace, jobs []trace.Job, parentID int) (*stg.Verdict, *corpus.Entry) {
	fuzzer.mu.Lock()
	defer fuzzer.mu.Unlock()
	v := fuzzer.eval.Fold(tr, jobs)
	fuzzer.corpusSignal.Merge(v.NewSignal)
	fuzzer.stats.worstResponse.max(v.WorstResponse)

	store := fuzzer.eval.Store()
	path := make([]corpus.PathPoint, 0, len(v.NodePath))
	for i, idx := range v.NodePath {
		tick := tr.EndTick
		if i < len(tr.Intervals) {
			tick = tr.Intervals[i].StartTick
		}
		path = append(path, corpus.PathPoint{Node: store.Node(idx).Key.KeyHash(), Tick: tick})
	}
	entry := &corpus.Entry{
		Input: input,
		Summary: corpus.Summary{
			Intervals:     len(tr.Intervals),
			PathHash:      v.PathHash,
			WorstResponse: v.WorstResponse,
			ExecTicks:     tr.EndTick,
			Path:          path,
		},
		Generation: fuzzer.eval.Generation(),
		Parent:     parentID,
	}
	return v, entry
}

// verify replays the input once and compares the serialized traces
// byte for byte.
func (proc *Proc) verify(ctx context.Context, input *prog.Input, tr *trace.Trace) (bool, error) {
	replay, _, err := proc.fuzzer.execOne(ctx, proc.emulator, input)
	if err != nil || replay == nil {
		return false, err
	}
	return bytes.Equal(tr.Serialize(), replay.Serialize()), nil
}

func (proc *Proc) saveCrash(input *prog.Input, tr *trace.Trace) {
	data := input.Serialize()
	sig := hash.Hash(data)
	dir := filepath.Join(proc.fuzzer.config.Workdir, "crashes")
	if err := os.WriteFile(filepath.Join(dir, "crash-"+sig.String()[:16]), data, 0644); err != nil {
		log.Errorf("failed to save crash input: %v", err)
		return
	}
	log.Logf(0, "proc %d: crash at tick %d, input crash-%s", proc.pid, tr.EndTick, sig.String()[:16])
}

// replayEntry reruns a saved corpus entry and writes its time dump.
// A non-zero inject tick queues one extra interrupt on top of the
// stored schedule, for what-if runs against a saved case.
func (fuzzer *Fuzzer) replayEntry(path string, inject uint64, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	entry, err := corpus.DeserializeEntry(data)
	if err != nil {
		return err
	}
	if inject != 0 {
		fuzzer.emulator.InjectInterrupt(inject)
	}
	tr, jobs, err := fuzzer.execOne(context.Background(), fuzzer.emulator, entry.Input)
	if err != nil {
		return err
	}
	if tr == nil {
		return fmt.Errorf("replay produced no trace")
	}
	return trace.WriteTimeDump(w, tr, jobs)
}
