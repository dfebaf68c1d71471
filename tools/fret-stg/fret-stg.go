// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// fret-stg inspects a state transition graph snapshot written by
// fret-fuzzer. It prints graph totals, the hottest transitions and
// the per-task worst-job records so a campaign can be examined
// without rerunning anything.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/SunilChowdary1909/FRET/pkg/log"
	"github.com/SunilChowdary1909/FRET/pkg/stg"
)

func main() {
	var (
		flagTop   = flag.Int("top", 10, "number of hottest edges to print")
		flagNodes = flag.Bool("nodes", false, "also dump the full node table")
	)
	flag.Parse()

	if len(flag.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "usage: fret-stg [flags] stg.snapshot\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Args()[0])
	if err != nil {
		log.Fatalf("%v", err)
	}
	store, err := stg.Restore(data)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("nodes: %d\n", store.NodeCount())
	fmt.Printf("edges: %d\n", store.EdgeCount())
	fmt.Printf("paths: %d\n", len(store.WorstPaths()))
	if idx, dur := store.MaxDurationEdge(); store.EdgeCount() > 0 {
		e := store.Edge(idx)
		fmt.Printf("max transition: %d ticks, %v -> %v on %v\n",
			dur, nodeName(store, e.From), nodeName(store, e.To), e.Cause.Kind)
	}

	fmt.Printf("\nhottest transitions:\n")
	for _, idx := range hottest(store, *flagTop) {
		e := store.Edge(idx)
		fmt.Printf("%8d max %8.1f mean %6d n  %v -> %v on %v\n",
			e.Stats.Max, e.Stats.Mean, e.Stats.Count,
			nodeName(store, e.From), nodeName(store, e.To), e.Cause.Kind)
	}

	fmt.Printf("\nworst jobs:\n")
	for _, rec := range store.Records() {
		fmt.Printf("%-16s response %8d exec %8d path %#016x\n",
			rec.Task, rec.WorstResponse, rec.WorstExec, rec.PathHash)
	}

	if *flagNodes {
		fmt.Printf("\nnodes:\n")
		for i := 0; i < store.NodeCount(); i++ {
			n := store.Node(stg.NodeIndex(i))
			fmt.Printf("#%-6d gen %-4d visits %-8d level %d %v\n",
				i, n.FirstGen, n.Visits, n.Level, nodeName(store, stg.NodeIndex(i)))
		}
	}
}

func hottest(store *stg.Store, top int) []stg.EdgeIndex {
	idxs := make([]stg.EdgeIndex, store.EdgeCount())
	for i := range idxs {
		idxs[i] = stg.EdgeIndex(i)
	}
	sort.Slice(idxs, func(i, j int) bool {
		return store.Edge(idxs[i]).Stats.Max > store.Edge(idxs[j]).Stats.Max
	})
	if len(idxs) > top {
		idxs = idxs[:top]
	}
	return idxs
}

func nodeName(store *stg.Store, idx stg.NodeIndex) string {
	n := store.Node(idx)
	task := n.Task
	if task == "" {
		task = "?"
	}
	return fmt.Sprintf("%v/%016x", task, n.Key.KeyHash())
}
