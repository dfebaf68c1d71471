// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SunilChowdary1909/FRET/pkg/log"
)

type Stat uint64

type Stats struct {
	execTotal         Stat
	execCompleted     Stat
	execTimedOut      Stat
	crashes           Stat
	newInputs         Stat
	scheduleMutations Stat
	fallbackMutations Stat
	spliceMutations   Stat
	nondeterministic  Stat
	decodeFailures    Stat
	worstResponse     Stat
}

func (fuzzer *Fuzzer) initStats() {
	// Prometheus Instrumentation https://prometheus.io/docs/guides/go-application .
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_exec_total",
		Help: "Total executions during current campaign",
	},
		func() float64 { return float64(fuzzer.stats.execTotal.get()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_crash_total",
		Help: "Count of crashing executions during current campaign",
	},
		func() float64 { return float64(fuzzer.stats.crashes.get()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_timeout_total",
		Help: "Count of timed out executions during current campaign",
	},
		func() float64 { return float64(fuzzer.stats.execTimedOut.get()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_corpus_size",
		Help: "Retained corpus entries",
	},
		func() float64 { return float64(fuzzer.stats.newInputs.get()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_stg_nodes",
		Help: "State transition graph node count",
	},
		func() float64 {
			fuzzer.mu.Lock()
			defer fuzzer.mu.Unlock()
			return float64(fuzzer.eval.Store().NodeCount())
		},
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_stg_edges",
		Help: "State transition graph edge count",
	},
		func() float64 {
			fuzzer.mu.Lock()
			defer fuzzer.mu.Unlock()
			return float64(fuzzer.eval.Store().EdgeCount())
		},
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_corpus_signal",
		Help: "Distinct node/edge keys covered by the corpus",
	},
		func() float64 { return float64(fuzzer.signalLen()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_worst_response_ticks",
		Help: "Worst observed job response time in emulator ticks",
	},
		func() float64 { return float64(fuzzer.stats.worstResponse.get()) },
	))
	prometheus.Register(promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fret_nondeterministic_total",
		Help: "Interesting executions that failed replay verification",
	},
		func() float64 { return float64(fuzzer.stats.nondeterministic.get()) },
	))
}

func (fuzzer *Fuzzer) serveMetrics(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Logf(0, "serving metrics on http://%v/metrics", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Errorf("metrics server: %v", err)
	}
}

func (fuzzer *Fuzzer) all() map[string]uint64 {
	return map[string]uint64{
		"exec total":         fuzzer.stats.execTotal.get(),
		"exec completed":     fuzzer.stats.execCompleted.get(),
		"exec timed out":     fuzzer.stats.execTimedOut.get(),
		"crashes":            fuzzer.stats.crashes.get(),
		"new inputs":         fuzzer.stats.newInputs.get(),
		"schedule mutations": fuzzer.stats.scheduleMutations.get(),
		"splice mutations":   fuzzer.stats.spliceMutations.get(),
		"fallback mutations": fuzzer.stats.fallbackMutations.get(),
		"nondeterministic":   fuzzer.stats.nondeterministic.get(),
		"decode failures":    fuzzer.stats.decodeFailures.get(),
		"worst response":     fuzzer.stats.worstResponse.get(),
		"corpus signal":      uint64(fuzzer.signalLen()),
	}
}

func (fuzzer *Fuzzer) signalLen() int {
	fuzzer.mu.Lock()
	defer fuzzer.mu.Unlock()
	return fuzzer.corpusSignal.Len()
}

func (s *Stat) get() uint64 {
	return atomic.LoadUint64((*uint64)(s))
}

func (s *Stat) inc() {
	s.add(1)
}

func (s *Stat) add(v int) {
	atomic.AddUint64((*uint64)(s), uint64(v))
}

func (s *Stat) max(v uint64) {
	for {
		old := s.get()
		if v <= old {
			return
		}
		if atomic.CompareAndSwapUint64((*uint64)(s), old, v) {
			return
		}
	}
}
