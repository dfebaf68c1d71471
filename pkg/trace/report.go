// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package trace

import (
	"fmt"
	"io"
	"sort"
)

// WriteTimeDump writes the response-time summary of one execution in
// the line format consumed by the offline analysis scripts:
//
//	<worst response> <task> <end tick> <#intervals> <outcome>
//
// followed by one line per complete job. Replaying a stored case must
// reproduce the first field exactly; a mismatch is a reproducibility
// defect, not noise.
func WriteTimeDump(w io.Writer, tr *Trace, jobs []Job) error {
	worst := Job{}
	for _, job := range jobs {
		if job.Complete && job.Response() > worst.Response() {
			worst = job
		}
	}
	task := worst.Task
	if task == "" {
		task = "-"
	}
	if _, err := fmt.Fprintf(w, "%d %s %d %d %v\n",
		worst.Response(), task, tr.EndTick, len(tr.Intervals), tr.Outcome); err != nil {
		return err
	}
	sorted := append([]Job{}, jobs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Release < sorted[j].Release })
	for _, job := range sorted {
		if !job.Complete {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %d %d %d\n",
			job.Task, job.Release, job.Response(), job.Exec); err != nil {
			return err
		}
	}
	return nil
}
