// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"math/rand"
	"sort"
)

// MutateConfig bounds the schedule mutators. Zero values fall back to
// the defaults below.
type MutateConfig struct {
	// MaxInterrupts caps the schedule length.
	MaxInterrupts int
	// MaxShift bounds how far a single offset may move per mutation.
	MaxShift uint64
	// MinGap is the shortest inter-arrival distance the hardware
	// would honor; mutated schedules never go below it.
	MinGap uint64
	// MaxTick is the campaign horizon; fresh offsets are drawn below it.
	MaxTick uint64
}

const (
	defaultMaxInterrupts = 32
	defaultMaxShift      = 1000
	defaultMaxTick       = 1 << 20
)

func (cfg *MutateConfig) fixup() {
	if cfg.MaxInterrupts == 0 {
		cfg.MaxInterrupts = defaultMaxInterrupts
	}
	if cfg.MaxShift == 0 {
		cfg.MaxShift = defaultMaxShift
	}
	if cfg.MaxTick == 0 {
		cfg.MaxTick = defaultMaxTick
	}
}

// MutateInterrupts derives a new input by perturbing the interrupt
// schedule. The payload bytes are carried over unchanged; only firing
// offsets move. The result always satisfies the schedule invariant.
func (in *Input) MutateInterrupts(rnd *rand.Rand, cfg MutateConfig) *Input {
	cfg.fixup()
	out := in.Clone()
	nops := 1 + rnd.Intn(3)
	for i := 0; i < nops; i++ {
		switch {
		case len(out.Interrupts) == 0:
			out.insertOffset(rnd, cfg)
		case rnd.Intn(10) == 0 && len(out.Interrupts) < cfg.MaxInterrupts:
			out.insertOffset(rnd, cfg)
		case rnd.Intn(10) == 0 && len(out.Interrupts) > 1:
			k := rnd.Intn(len(out.Interrupts))
			out.Interrupts = append(out.Interrupts[:k], out.Interrupts[k+1:]...)
		default:
			out.shiftOffset(rnd, cfg)
		}
	}
	out.sortSchedule()
	out.enforceGap(cfg.MinGap)
	return out
}

// shiftOffset moves one offset by a bounded signed delta, saturating
// at zero and at the horizon.
func (in *Input) shiftOffset(rnd *rand.Rand, cfg MutateConfig) {
	k := rnd.Intn(len(in.Interrupts))
	delta := uint64(1 + rnd.Int63n(int64(cfg.MaxShift)))
	off := in.Interrupts[k]
	if rnd.Intn(2) == 0 {
		if off > delta {
			off -= delta
		} else {
			off = 0
		}
	} else {
		off += delta
		if off > cfg.MaxTick {
			off = cfg.MaxTick
		}
	}
	in.Interrupts[k] = off
}

func (in *Input) insertOffset(rnd *rand.Rand, cfg MutateConfig) {
	in.Interrupts = append(in.Interrupts, uint64(rnd.Int63n(int64(cfg.MaxTick))))
}

// enforceGap pushes offsets apart until consecutive firings are at
// least gap ticks apart. Assumes a sorted schedule.
func (in *Input) enforceGap(gap uint64) {
	if gap == 0 {
		return
	}
	for i := 1; i < len(in.Interrupts); i++ {
		if in.Interrupts[i] < in.Interrupts[i-1]+gap {
			in.Interrupts[i] = in.Interrupts[i-1] + gap
		}
	}
}

// RandomSchedule draws a fresh schedule for seeding and for the
// cold-start fallback when no graph guidance is available yet.
func RandomSchedule(rnd *rand.Rand, cfg MutateConfig) []uint64 {
	cfg.fixup()
	n := 1 + rnd.Intn(cfg.MaxInterrupts)
	offs := make([]uint64, n)
	for i := range offs {
		offs[i] = uint64(rnd.Int63n(int64(cfg.MaxTick)))
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	in := &Input{Interrupts: offs}
	in.enforceGap(cfg.MinGap)
	return in.Interrupts
}

// SpliceCandidate pairs a donor input with the ticks at which the
// base and the donor reached the same graph node.
type SpliceCandidate struct {
	Donor     *Input
	BaseTick  uint64
	DonorTick uint64
}

// MutateSTGPath derives a new input by splicing the base with one of
// the path-sharing donors. Half the time the donor's payload suffix is
// carried over too, so worst-job payloads propagate along shared
// paths. Returns false when no candidate exists; the caller falls back
// to an unguided mutation.
func MutateSTGPath(rnd *rand.Rand, base *Input, candidates []SpliceCandidate) (*Input, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	c := candidates[rnd.Intn(len(candidates))]
	out := SpliceInterrupts(base, c.Donor, c.BaseTick, c.DonorTick)
	if rnd.Intn(2) == 0 && len(base.Data) > 0 && len(c.Donor.Data) > 0 {
		cut := rnd.Intn(len(base.Data))
		if cut < len(c.Donor.Data) {
			out.Data = append(out.Data[:cut], c.Donor.Data[cut:]...)
		}
	}
	return out, true
}

// SpliceInterrupts crosses two inputs at a shared graph node: the base
// keeps its schedule up to baseTick, then continues with the donor's
// schedule from donorTick onward, shifted so the donor tail lines up
// with the splice point. The base payload is kept.
func SpliceInterrupts(base, donor *Input, baseTick, donorTick uint64) *Input {
	out := &Input{Data: append([]byte{}, base.Data...)}
	for _, off := range base.Interrupts {
		if off < baseTick {
			out.Interrupts = append(out.Interrupts, off)
		}
	}
	for _, off := range donor.Interrupts {
		if off < donorTick {
			continue
		}
		shifted := off - donorTick + baseTick
		out.Interrupts = append(out.Interrupts, shifted)
	}
	out.sortSchedule()
	return out
}
