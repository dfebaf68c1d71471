// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SunilChowdary1909/FRET/pkg/corpus"
	"github.com/SunilChowdary1909/FRET/pkg/emu"
	"github.com/SunilChowdary1909/FRET/pkg/kernimage"
	"github.com/SunilChowdary1909/FRET/pkg/log"
	"github.com/SunilChowdary1909/FRET/pkg/ostarget"
	"github.com/SunilChowdary1909/FRET/pkg/stg"
	"github.com/SunilChowdary1909/FRET/prog"
)

type Fuzzer struct {
	config *Config
	// emulator serves the single-threaded phases: seeding and replay.
	// Each proc builds its own instance through newEmulator, emulator
	// state is mutable and never shared across goroutines.
	emulator    emu.Emulator
	newEmulator func() (emu.Emulator, error)
	decoder     ostarget.Decoder
	image       *kernimage.KernelImage

	stats Stats

	// mu guards the corpus, the evaluator and the signal. All graph
	// folds and corpus updates are serialized; the emulators run
	// outside the lock.
	mu           sync.Mutex
	corpus       *corpus.Corpus
	eval         *stg.Evaluator
	corpusSignal stg.Signal
}

func main() {
	var (
		flagWorkdir  = flag.String("workdir", "./workdir", "artifact directory")
		flagTarget   = flag.String("target", "freertos", "kernel state decoder")
		flagScript   = flag.String("script", "", "scripted emulator timeline")
		flagHarness  = flag.String("harness", "", "external emulator harness binary")
		flagImage    = flag.String("image", "", "kernel ELF image")
		flagProcs    = flag.Int("procs", 1, "parallel fuzzing procs")
		flagSeed     = flag.Int64("seed", 0, "rng seed, 0 picks from the clock")
		flagPolicy   = flag.String("policy", "timemax", "corpus policy: timemax/longesttrace/generations")
		flagMode     = flag.String("mode", "combined", "feedback mode: coverage/timing/combined")
		flagEpsilon  = flag.Float64("epsilon", 0, "relative margin for timing records")
		flagGenSize  = flag.Int("gensize", 16, "picks per generation under the generations policy")
		flagDuration = flag.Duration("duration", 0, "campaign duration, 0 runs until interrupted")
		flagTimeout  = flag.Duration("timeout", 10*time.Second, "single execution timeout")
		flagHTTP     = flag.String("http", "", "serve prometheus metrics on this address")
		flagReplay   = flag.String("replay", "", "replay a corpus entry and print its time dump")
		flagInject   = flag.Uint64("inject", 0, "inject one extra interrupt at this tick during replay")
		flagV        = flag.Int("v", 0, "verbosity")
	)
	flag.Parse()
	log.EnableLogging(*flagV)

	policy, err := corpus.ParsePolicy(*flagPolicy)
	if err != nil {
		log.Fatalf("%v", err)
	}
	mode, err := parseMode(*flagMode)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg := &Config{
		Workdir:     *flagWorkdir,
		Target:      *flagTarget,
		Script:      *flagScript,
		Harness:     *flagHarness,
		Image:       *flagImage,
		Procs:       *flagProcs,
		Seed:        *flagSeed,
		Policy:      policy,
		Mode:        mode,
		Epsilon:     *flagEpsilon,
		GenSize:     *flagGenSize,
		Duration:    *flagDuration,
		ExecTimeout: *flagTimeout,
	}
	cfg.HTTP = *flagHTTP
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	fuzzer, err := newFuzzer(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *flagReplay != "" {
		if err := fuzzer.replayEntry(*flagReplay, *flagInject, os.Stdout); err != nil {
			log.Fatalf("replay: %v", err)
		}
		return
	}
	if err := fuzzer.run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func parseMode(s string) (stg.Mode, error) {
	switch s {
	case "coverage":
		return stg.ModeCoverage, nil
	case "timing":
		return stg.ModeTiming, nil
	case "combined":
		return stg.ModeCombined, nil
	}
	return 0, fmt.Errorf("unknown feedback mode %q", s)
}

func newFuzzer(cfg *Config) (*Fuzzer, error) {
	decoder, err := ostarget.Get(cfg.Target)
	if err != nil {
		return nil, err
	}
	newEmulator := func() (emu.Emulator, error) {
		if cfg.Script != "" {
			return emu.LoadScript(cfg.Script)
		}
		return &emu.External{Bin: cfg.Harness}, nil
	}
	emulator, err := newEmulator()
	if err != nil {
		return nil, err
	}
	fuzzer := &Fuzzer{
		config:       cfg,
		emulator:     emulator,
		newEmulator:  newEmulator,
		decoder:      decoder,
		eval:         stg.NewEvaluator(stg.NewStore(), stg.Config{Mode: cfg.Mode, Epsilon: cfg.Epsilon, TrackJobs: true}),
		corpusSignal: make(stg.Signal),
	}
	if cfg.Image != "" {
		fuzzer.image, err = kernimage.Build(cfg.Workdir, cfg.Image)
		if err != nil {
			return nil, err
		}
		blocks, path, err := fuzzer.image.BuildOrReadBlocks()
		if err != nil {
			return nil, err
		}
		log.Logf(0, "loaded %d blocks (%v)", len(blocks), path)
	}
	return fuzzer, nil
}

func (fuzzer *Fuzzer) run() error {
	cfg := fuzzer.config
	for _, dir := range []string{cfg.Workdir, filepath.Join(cfg.Workdir, "crashes"), filepath.Join(cfg.Workdir, "corpus")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	fuzzer.initStats()
	if cfg.HTTP != "" {
		go fuzzer.serveMetrics(cfg.HTTP)
	}

	ctx := context.Background()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	if err := fuzzer.seedCorpus(ctx); err != nil {
		return err
	}
	log.Logf(0, "seeded corpus with %d entries, starting %d procs", fuzzer.corpus.Len(), cfg.Procs)

	g, ctx := errgroup.WithContext(ctx)
	for pid := 0; pid < cfg.Procs; pid++ {
		proc, err := newProc(fuzzer, pid)
		if err != nil {
			return err
		}
		g.Go(func() error { return proc.loop(ctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				log.Logf(0, "stats: %v", fuzzer.all())
			}
		}
	})
	err := g.Wait()
	if werr := fuzzer.writeArtifacts(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// seedCorpus runs a handful of random schedules so the corpus and the
// graph are never empty when the procs start.
func (fuzzer *Fuzzer) seedCorpus(ctx context.Context) error {
	rnd := rand.New(rand.NewSource(fuzzer.config.Seed))
	var seeds []*corpus.Entry
	const nseeds = 8
	for i := 0; i < nseeds; i++ {
		input := &prog.Input{Interrupts: prog.RandomSchedule(rnd, fuzzer.config.Mutate)}
		if i == 0 {
			// One seed with an empty schedule captures the baseline.
			input.Interrupts = nil
		}
		entry, err := fuzzer.execToEntry(ctx, input)
		if err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
		if entry != nil {
			seeds = append(seeds, entry)
		}
	}
	if len(seeds) == 0 {
		return fmt.Errorf("seeding: no seed execution produced a trace")
	}
	var err error
	fuzzer.corpus, err = corpus.New(corpus.Config{
		Policy:  fuzzer.config.Policy,
		GenSize: fuzzer.config.GenSize,
		Rand:    rand.New(rand.NewSource(fuzzer.config.Seed + 1)),
	}, seeds)
	return err
}

// execToEntry runs one input and folds it unconditionally; seeds are
// retained whether or not they look interesting.
func (fuzzer *Fuzzer) execToEntry(ctx context.Context, input *prog.Input) (*corpus.Entry, error) {
	tr, jobs, err := fuzzer.execOne(ctx, fuzzer.emulator, input)
	if err != nil || tr == nil {
		return nil, err
	}
	if len(tr.Intervals) == 0 {
		log.Logf(1, "seed produced an empty trace, dropping")
		return nil, nil
	}
	_, entry := fuzzer.fold(input, tr, jobs, -1)
	return entry, nil
}

func (fuzzer *Fuzzer) writeArtifacts() error {
	cfg := fuzzer.config
	fuzzer.mu.Lock()
	defer fuzzer.mu.Unlock()
	snap := fuzzer.eval.Store().Snapshot()
	if err := os.WriteFile(filepath.Join(cfg.Workdir, "stg.snapshot"), snap, 0644); err != nil {
		return err
	}
	for i := 0; i < fuzzer.corpus.Len(); i++ {
		entry := fuzzer.corpus.Entry(i)
		name := fmt.Sprintf("entry-%06d", i)
		if err := os.WriteFile(filepath.Join(cfg.Workdir, "corpus", name), entry.Serialize(), 0644); err != nil {
			return err
		}
	}
	log.Logf(0, "wrote %d corpus entries and graph snapshot (%d nodes, %d edges)",
		fuzzer.corpus.Len(), fuzzer.eval.Store().NodeCount(), fuzzer.eval.Store().EdgeCount())
	return nil
}
