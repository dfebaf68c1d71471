// Copyright 2026 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"github.com/SunilChowdary1909/FRET/pkg/corpus"
	"github.com/SunilChowdary1909/FRET/pkg/stg"
	"github.com/SunilChowdary1909/FRET/prog"
)

type Config struct {
	// Workdir receives the graph snapshot, corpus, crash artifacts
	// and time dumps.
	Workdir string
	// Target names the registered kernel state decoder.
	Target string
	// Script is a scripted emulator timeline; Harness an external
	// emulator harness binary. Exactly one must be set.
	Script  string
	Harness string
	// Image is the kernel ELF; optional, enables the block table.
	Image string

	Procs    int
	Seed     int64
	Policy   corpus.Policy
	Mode     stg.Mode
	Epsilon  float64
	GenSize  int
	Duration time.Duration
	// ExecTimeout bounds a single run; expired runs fold as timeouts.
	ExecTimeout time.Duration
	// HTTP serves /metrics when set.
	HTTP string

	Mutate prog.MutateConfig
}

func (cfg *Config) Validate() error {
	if cfg.Workdir == "" {
		return fmt.Errorf("config: workdir is required")
	}
	if cfg.Target == "" {
		return fmt.Errorf("config: target is required")
	}
	if (cfg.Script == "") == (cfg.Harness == "") {
		return fmt.Errorf("config: exactly one of script and harness is required")
	}
	if cfg.Procs <= 0 {
		return fmt.Errorf("config: procs must be positive, got %d", cfg.Procs)
	}
	if cfg.Epsilon < 0 {
		return fmt.Errorf("config: epsilon must not be negative, got %v", cfg.Epsilon)
	}
	if cfg.ExecTimeout <= 0 {
		return fmt.Errorf("config: exec timeout must be positive, got %v", cfg.ExecTimeout)
	}
	return nil
}
