// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stg

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

// Mode selects which feedback signals gate corpus retention. The
// graph is updated unconditionally in every mode; the mode only
// decides what counts as interesting.
type Mode int

const (
	// ModeCoverage retains inputs that discover new nodes or edges.
	ModeCoverage Mode = iota
	// ModeTiming retains inputs that beat a timing record.
	ModeTiming
	// ModeCombined retains inputs that do either.
	ModeCombined
)

// Config is campaign configuration, resolved before the loop starts.
// Epsilon is the relative margin a timing record must be beaten by to
// count as improved; 0 means any improvement.
type Config struct {
	Mode    Mode
	Epsilon float64
	// TrackJobs enables per-task worst-job bookkeeping and the job
	// response-time feedback signal.
	TrackJobs bool
}

// Verdict is the composite feedback result of folding one execution.
type Verdict struct {
	NewNodes     int
	NewEdges     int
	MaxImproved  bool // an edge's max duration record was beaten
	WortImproved bool // the path's worst response record was beaten
	JobImproved  bool // a per-task worst job record was beaten
	Interesting  bool

	NodePath      []NodeIndex
	EdgePath      []EdgeIndex
	PathHash      uint64
	WorstResponse uint64
	NewSignal     Signal
}

// Evaluator folds executions into a store and scores them.
type Evaluator struct {
	store *Store
	cfg   Config
	gen   uint64
}

func NewEvaluator(store *Store, cfg Config) *Evaluator {
	return &Evaluator{store: store, cfg: cfg}
}

func (ev *Evaluator) Store() *Store { return ev.store }

// Generation returns the current discovery generation, bumped every
// time an execution extends the graph.
func (ev *Evaluator) Generation() uint64 { return ev.gen }

// Fold runs one execution's intervals and jobs through the store and
// produces the verdict. k intervals yield k+1 node visits and k edge
// folds; repeats of known nodes only bump visit counts. Truncated
// traces fold like any other: the partial path up to the crash or
// timeout point is informative.
func (ev *Evaluator) Fold(tr *trace.Trace, jobs []trace.Job) *Verdict {
	v := &Verdict{NewSignal: make(Signal)}
	if len(tr.Intervals) == 0 {
		return v
	}
	for i := range tr.Intervals {
		iv := &tr.Intervals[i]
		key := NodeKey{State: iv.StartState, Region: iv.Region.Hash()}
		idx, isNew := ev.store.GetOrCreateNode(key, iv.Region.Level, tr.CurrentTask(iv), ev.gen)
		if isNew {
			v.NewNodes++
			v.NewSignal[key.KeyHash()] = struct{}{}
		}
		v.NodePath = append(v.NodePath, idx)
	}
	last := &tr.Intervals[len(tr.Intervals)-1]
	finalKey := NodeKey{State: last.EndState}
	finalIdx, isNew := ev.store.GetOrCreateNode(finalKey, 0, "", ev.gen)
	if isNew {
		v.NewNodes++
		v.NewSignal[finalKey.KeyHash()] = struct{}{}
	}
	v.NodePath = append(v.NodePath, finalIdx)

	for i := range tr.Intervals {
		iv := &tr.Intervals[i]
		cause := terminalCause(tr)
		if i+1 < len(tr.Intervals) {
			cause = tr.Intervals[i+1].Cause
		}
		from, to := v.NodePath[i], v.NodePath[i+1]
		var oldMax uint64
		var hadMax bool
		if prev, ok := ev.store.edgeIndex[edgeKey{From: from, To: to, Cause: cause}]; ok {
			oldMax, hadMax = ev.store.edges[prev].Stats.Max, true
		}
		idx, isNew := ev.store.RecordEdge(from, to, cause, iv.Duration())
		if isNew {
			v.NewEdges++
			v.NewSignal[ev.store.edgeKeyHash(&ev.store.edges[idx])] = struct{}{}
		} else if hadMax && beats(iv.Duration(), oldMax, ev.cfg.Epsilon) {
			v.MaxImproved = true
		}
		v.EdgePath = append(v.EdgePath, idx)
	}

	v.PathHash = ev.pathHash(v.EdgePath)
	v.WorstResponse = worstResponse(tr, jobs)
	improved, _ := ev.store.updatePathWorst(v.PathHash, v.WorstResponse, ev.cfg.Epsilon)
	v.WortImproved = improved

	if ev.cfg.TrackJobs {
		for i := range jobs {
			if !jobs[i].Complete {
				continue
			}
			if ev.store.FoldJob(&jobs[i]) {
				v.JobImproved = true
			}
		}
	}

	switch ev.cfg.Mode {
	case ModeCoverage:
		v.Interesting = v.NewNodes > 0 || v.NewEdges > 0
	case ModeTiming:
		v.Interesting = v.MaxImproved || v.WortImproved || v.JobImproved
	case ModeCombined:
		v.Interesting = v.NewNodes > 0 || v.NewEdges > 0 ||
			v.MaxImproved || v.WortImproved || v.JobImproved
	}
	if v.NewNodes > 0 || v.NewEdges > 0 {
		ev.gen++
	}
	return v
}

// pathHash identifies the exact edge sequence of one execution using
// store-independent edge identities.
func (ev *Evaluator) pathHash(edges []EdgeIndex) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, idx := range edges {
		binary.LittleEndian.PutUint64(buf[:], ev.store.edgeKeyHash(&ev.store.edges[idx]))
		h.Write(buf[:])
	}
	return h.Sum64()
}

func beats(val, record uint64, eps float64) bool {
	return float64(val) > float64(record)*(1+eps)
}

// worstResponse is the timing score of one execution: the worst
// complete job response time, or the total execution length when no
// job completed (timeouts often carry the longest responses).
func worstResponse(tr *trace.Trace, jobs []trace.Job) uint64 {
	var worst uint64
	for i := range jobs {
		if jobs[i].Complete && jobs[i].Response() > worst {
			worst = jobs[i].Response()
		}
	}
	if worst == 0 {
		worst = tr.EndTick
	}
	return worst
}

func terminalCause(tr *trace.Trace) trace.Cause {
	switch tr.Outcome {
	case trace.OutcomeCrashed:
		return trace.Cause{Kind: trace.KindCrash}
	case trace.OutcomeTimedOut:
		return trace.Cause{Kind: trace.KindTimeout}
	}
	return trace.Cause{Kind: trace.KindEnd}
}
