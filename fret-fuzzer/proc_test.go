// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SunilChowdary1909/FRET/pkg/corpus"
	"github.com/SunilChowdary1909/FRET/pkg/stg"
	"github.com/SunilChowdary1909/FRET/prog"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Workdir:     t.TempDir(),
		Target:      "freertos",
		Script:      filepath.Join("testdata", "waters.script"),
		Procs:       1,
		Seed:        1,
		Policy:      corpus.PolicyTimeMax,
		Mode:        stg.ModeCombined,
		GenSize:     16,
		ExecTimeout: 5 * time.Second,
	}
}

func testFuzzer(t *testing.T) *Fuzzer {
	t.Helper()
	cfg := testConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	fuzzer, err := newFuzzer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return fuzzer
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"no workdir", func(cfg *Config) { cfg.Workdir = "" }},
		{"no target", func(cfg *Config) { cfg.Target = "" }},
		{"no emulator", func(cfg *Config) { cfg.Script = "" }},
		{"two emulators", func(cfg *Config) { cfg.Harness = "/bin/true" }},
		{"no procs", func(cfg *Config) { cfg.Procs = 0 }},
		{"negative epsilon", func(cfg *Config) { cfg.Epsilon = -0.1 }},
		{"no exec timeout", func(cfg *Config) { cfg.ExecTimeout = 0 }},
	}
	for i, test := range tests {
		cfg := testConfig(t)
		test.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("#%d %v: bad config validated", i, test.name)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"coverage", "timing", "combined"} {
		if _, err := parseMode(s); err != nil {
			t.Errorf("%v: %v", s, err)
		}
	}
	if _, err := parseMode("vibes"); err == nil {
		t.Errorf("unknown mode parsed")
	}
}

func TestSeedCorpus(t *testing.T) {
	fuzzer := testFuzzer(t)
	if err := fuzzer.seedCorpus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fuzzer.corpus.Len() == 0 {
		t.Fatalf("corpus empty after seeding")
	}
	store := fuzzer.eval.Store()
	if store.NodeCount() == 0 || store.EdgeCount() == 0 {
		t.Errorf("graph empty after seeding: %d nodes, %d edges",
			store.NodeCount(), store.EdgeCount())
	}
	if fuzzer.corpusSignal.Empty() {
		t.Errorf("corpus signal empty after seeding")
	}
	entry := fuzzer.corpus.Next()
	if entry == nil || len(entry.Summary.Path) == 0 {
		t.Errorf("seed entry has no path summary: %+v", entry)
	}
}

func TestFuzzingIterations(t *testing.T) {
	fuzzer := testFuzzer(t)
	ctx := context.Background()
	if err := fuzzer.seedCorpus(ctx); err != nil {
		t.Fatal(err)
	}
	proc, err := newProc(fuzzer, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 200; i++ {
		if err := proc.iterate(ctx); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
	if got := fuzzer.stats.execTotal.get(); got < 200 {
		t.Errorf("exec total %d after 200 iterations", got)
	}
	muts := fuzzer.stats.scheduleMutations.get() +
		fuzzer.stats.spliceMutations.get() +
		fuzzer.stats.fallbackMutations.get()
	if muts != 200 {
		t.Errorf("mutation count %d, want one per iteration", muts)
	}
	// The scripted target is deterministic, so nothing interesting may
	// be dropped as unreproducible.
	if got := fuzzer.stats.nondeterministic.get(); got != 0 {
		t.Errorf("%d executions flagged nondeterministic under a deterministic target", got)
	}
	if fuzzer.stats.worstResponse.get() == 0 {
		t.Errorf("no worst response recorded")
	}
	if fuzzer.signalLen() == 0 {
		t.Errorf("corpus signal empty after fuzzing")
	}
}

func TestConcurrentProcs(t *testing.T) {
	fuzzer := testFuzzer(t)
	ctx := context.Background()
	if err := fuzzer.seedCorpus(ctx); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for pid := 0; pid < 4; pid++ {
		proc, err := newProc(fuzzer, pid)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := proc.iterate(ctx); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if got := fuzzer.stats.execTotal.get(); got < 200 {
		t.Errorf("exec total %d after 4x50 concurrent iterations", got)
	}
}

func TestWriteArtifacts(t *testing.T) {
	fuzzer := testFuzzer(t)
	ctx := context.Background()
	if err := fuzzer.seedCorpus(ctx); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{fuzzer.config.Workdir, filepath.Join(fuzzer.config.Workdir, "corpus")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := fuzzer.writeArtifacts(); err != nil {
		t.Fatal(err)
	}
	snap, err := os.ReadFile(filepath.Join(fuzzer.config.Workdir, "stg.snapshot"))
	if err != nil {
		t.Fatal(err)
	}
	restored, err := stg.Restore(snap)
	if err != nil {
		t.Fatal(err)
	}
	if restored.NodeCount() != fuzzer.eval.Store().NodeCount() {
		t.Errorf("snapshot node count %d, want %d",
			restored.NodeCount(), fuzzer.eval.Store().NodeCount())
	}
	data, err := os.ReadFile(filepath.Join(fuzzer.config.Workdir, "corpus", "entry-000000"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := corpus.DeserializeEntry(data); err != nil {
		t.Errorf("stored corpus entry does not deserialize: %v", err)
	}
}

func TestReplayTimeDump(t *testing.T) {
	fuzzer := testFuzzer(t)
	// The stored case fires one interrupt at tick 700; its dump was
	// computed by hand from the script timeline.
	var buf bytes.Buffer
	if err := fuzzer.replayEntry(filepath.Join("testdata", "waters.case.test"), 0, &buf); err != nil {
		t.Fatal(err)
	}
	want, err := os.ReadFile(filepath.Join("testdata", "waters.time.test"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("time dump diverged:\ngot:\n%swant:\n%s", buf.Bytes(), want)
	}
}

func TestReplayWithInjection(t *testing.T) {
	fuzzer := testFuzzer(t)
	path := filepath.Join("testdata", "waters.case.test")
	var base, injected bytes.Buffer
	if err := fuzzer.replayEntry(path, 0, &base); err != nil {
		t.Fatal(err)
	}
	// One extra interrupt splits an interval, so the dump's interval
	// count moves.
	if err := fuzzer.replayEntry(path, 300, &injected); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(base.Bytes(), injected.Bytes()) {
		t.Errorf("injected interrupt did not change the time dump")
	}
	// The injection is one-shot; the next replay matches the baseline.
	var again bytes.Buffer
	if err := fuzzer.replayEntry(path, 0, &again); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(base.Bytes(), again.Bytes()) {
		t.Errorf("injection leaked into a later replay")
	}
}

func TestReplayDeterministic(t *testing.T) {
	fuzzer := testFuzzer(t)
	input := &prog.Input{Interrupts: []uint64{150, 650}}
	run := func() []byte {
		tr, _, err := fuzzer.execOne(context.Background(), fuzzer.emulator, input)
		if err != nil {
			t.Fatal(err)
		}
		return tr.Serialize()
	}
	if !bytes.Equal(run(), run()) {
		t.Errorf("scripted target produced diverging traces")
	}
}
