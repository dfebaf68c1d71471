// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"hash/fnv"
)

// Job is one activation-to-completion span of a task. Incomplete
// jobs (cut off by the stop condition) keep their partial data but
// are excluded from worst-response-time comparisons.
type Job struct {
	Task     string
	Release  uint64
	Finish   uint64
	Exec     uint64 // ticks the task actually ran
	Complete bool
	Blocks   []Block // ABBs executed by the task, in order
}

func (j *Job) Response() uint64 {
	return j.Finish - j.Release
}

// PathHash identifies the job's ABB sequence; jobs of the same task
// taking the same code path share it across runs.
func (j *Job) PathHash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := range j.Blocks {
		binary.LittleEndian.PutUint64(buf[:], j.Blocks[i].Hash())
		h.Write(buf[:])
	}
	h.Write([]byte(j.Task))
	return h.Sum64()
}

// SplitJobs segments the trace into per-task jobs using the job
// boundary markers. Preempted jobs accumulate only the intervals
// during which their task was actually current.
func SplitJobs(tr *Trace) []Job {
	open := make(map[string]*Job)
	var order []string
	var jobs []Job
	mi := 0
	flushIntervals := func(upto uint64) {
		for ; mi < len(tr.Intervals); mi++ {
			iv := &tr.Intervals[mi]
			if iv.EndTick > upto {
				break
			}
			task := tr.CurrentTask(iv)
			if job, ok := open[task]; ok {
				job.Exec += iv.Duration()
				job.Blocks = append(job.Blocks, iv.Region)
			}
		}
	}
	for _, m := range tr.Markers {
		flushIntervals(m.Tick)
		if m.Start {
			if _, ok := open[m.Task]; ok {
				// Re-activation before completion: close the stale
				// job as incomplete rather than merging spans.
				job := *open[m.Task]
				job.Finish = m.Tick
				jobs = append(jobs, job)
				delete(open, m.Task)
				order = remove(order, m.Task)
			}
			open[m.Task] = &Job{Task: m.Task, Release: m.Tick}
			order = append(order, m.Task)
		} else if job, ok := open[m.Task]; ok {
			job.Finish = m.Tick
			job.Complete = true
			jobs = append(jobs, *job)
			delete(open, m.Task)
			order = remove(order, m.Task)
		}
	}
	flushIntervals(tr.EndTick)
	// Jobs still open at the stop condition are incomplete.
	for _, task := range order {
		job := open[task]
		job.Finish = tr.EndTick
		jobs = append(jobs, *job)
	}
	return jobs
}

// WorstResponse returns the worst complete job per task.
func WorstResponse(jobs []Job) map[string]Job {
	worst := make(map[string]Job)
	for _, job := range jobs {
		if !job.Complete {
			continue
		}
		if old, ok := worst[job.Task]; !ok || job.Response() > old.Response() {
			worst[job.Task] = job
		}
	}
	return worst
}

func remove(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
