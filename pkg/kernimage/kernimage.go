// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package kernimage extracts the atomic block layout of a kernel
// image. Blocks are the code regions between scheduling-relevant
// boundaries; the tracer reports executions in terms of them, so the
// graph needs the same block table the instrumentation was built from.
package kernimage

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knightsc/gapstone"

	"github.com/SunilChowdary1909/FRET/pkg/log"
	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

type KernelImage struct {
	workdir string
	image   string

	_elf    *elf.File
	engine  gapstone.Engine
	symbols []elf.Symbol

	blocks  []trace.Block
	byStart map[uint64]int
}

// Build loads an ARM kernel image and prepares the disassembler.
// Cortex-M targets are Thumb; plain ARM images are accepted too.
func Build(workdir, image string) (*KernelImage, error) {
	f, err := os.Open(image)
	if err != nil {
		return nil, err
	}
	_elf, err := elf.NewFile(f)
	if err != nil {
		return nil, err
	}
	return build(workdir, image, _elf)
}

func build(workdir, image string, _elf *elf.File) (*KernelImage, error) {
	if _elf.Machine.String() != "EM_ARM" {
		return nil, fmt.Errorf("kernimage: only ARM images are supported, got %v", _elf.Machine)
	}

	symbols, err := _elf.Symbols()
	if err != nil {
		return nil, fmt.Errorf("kernimage: %w", err)
	}
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].Value < symbols[j].Value
	})

	mode := gapstone.CS_MODE_THUMB
	if _elf.Entry&1 == 0 {
		mode = gapstone.CS_MODE_ARM
	}
	engine, err := gapstone.New(gapstone.CS_ARCH_ARM, mode)
	if err != nil {
		return nil, err
	}
	engine.SetOption(gapstone.CS_OPT_DETAIL, gapstone.CS_OPT_ON)

	return &KernelImage{
		workdir: workdir,
		image:   image,
		_elf:    _elf,
		engine:  engine,
		symbols: symbols,
		byStart: make(map[uint64]int),
	}, nil
}

// Function returns the symbol covering addr.
func (k *KernelImage) Function(addr uint64) elf.Symbol {
	idx := sort.Search(len(k.symbols), func(i int) bool {
		return k.symbols[i].Value >= addr
	})
	if idx >= len(k.symbols) {
		return elf.Symbol{}
	}
	if k.symbols[idx].Value != addr {
		idx--
	}
	if idx < 0 {
		return elf.Symbol{}
	}
	return k.symbols[idx]
}

// TaskEntry resolves a task entry point by symbol name.
func (k *KernelImage) TaskEntry(name string) (uint64, bool) {
	for _, sym := range k.symbols {
		if sym.Name == name {
			// Thumb entry addresses carry the mode bit.
			return sym.Value &^ 1, true
		}
	}
	return 0, false
}

func (k *KernelImage) Blocks() []trace.Block { return k.blocks }

// BlockAt returns the block starting at addr.
func (k *KernelImage) BlockAt(addr uint64) (trace.Block, bool) {
	idx, ok := k.byStart[addr]
	if !ok {
		return trace.Block{}, false
	}
	return k.blocks[idx], true
}

// extractBlocks disassembles every function symbol and splits it into
// blocks at branch boundaries.
func (k *KernelImage) extractBlocks() error {
	text := k._elf.Section(".text")
	if text == nil {
		return fmt.Errorf("kernimage: image has no .text section")
	}
	data, err := text.Data()
	if err != nil {
		return fmt.Errorf("kernimage: %w", err)
	}

	var failed []string
	for _, sym := range k.symbols {
		const symbolTypeFunc = 2
		if sym.Info&0xf != symbolTypeFunc || sym.Size == 0 {
			continue
		}
		addr := sym.Value &^ 1
		offset, ok, past := sectionOffset(addr, sym.Size, text.Addr, len(data))
		if past {
			// Symbols are sorted, everything past the section end
			// stays past it.
			break
		}
		if !ok {
			continue
		}
		insns, err := k.engine.Disasm(data[offset:offset+sym.Size], addr, 0)
		if err != nil {
			failed = append(failed, sym.Name)
			continue
		}
		conv := make([]insn, len(insns))
		for i := range insns {
			conv[i] = insn{
				addr:     uint64(insns[i].Address),
				size:     uint64(insns[i].Size),
				mnemonic: insns[i].Mnemonic,
			}
		}
		for _, blk := range splitBlocks(sym.Name, conv) {
			k.byStart[blk.Start] = len(k.blocks)
			k.blocks = append(k.blocks, blk)
		}
	}
	if len(failed) != 0 {
		log.Logf(1, "failed to disassemble %d functions: %v", len(failed), failed)
	}
	return nil
}

// sectionOffset places a symbol inside the section's data. Symbols
// below the section start (boot stubs ahead of .text) are skipped
// without stopping the scan; the first symbol past the section end
// stops it.
func sectionOffset(addr, size, secAddr uint64, secLen int) (offset uint64, ok, past bool) {
	if addr < secAddr {
		return 0, false, false
	}
	offset = addr - secAddr
	if offset+size > uint64(secLen) {
		return 0, false, true
	}
	return offset, true, false
}

type insn struct {
	addr     uint64
	size     uint64
	mnemonic string
}

// splitBlocks cuts a function's instruction stream at branch
// boundaries. Each block's end set holds the last instruction address
// of the block; conditional branches end the block but the fallthrough
// starts the next one.
func splitBlocks(fn string, insns []insn) []trace.Block {
	if len(insns) == 0 {
		return nil
	}
	level := ClassifyLevel(fn)
	var blocks []trace.Block
	start := insns[0].addr
	var last uint64
	for i, in := range insns {
		last = in.addr
		if !branchInsn(in.mnemonic) && i != len(insns)-1 {
			continue
		}
		blocks = append(blocks, trace.Block{
			Start: start,
			Ends:  []uint64{last},
			Level: level,
			Name:  fmt.Sprintf("%v+%#x", fn, start-insns[0].addr),
		})
		if i != len(insns)-1 {
			start = insns[i+1].addr
		}
	}
	return blocks
}

// branchInsn reports whether the mnemonic transfers control. ARM and
// Thumb spellings, condition suffixes included.
func branchInsn(mnemonic string) bool {
	switch {
	case mnemonic == "":
		return false
	case strings.HasPrefix(mnemonic, "b"):
		// b, bl, bx, blx, beq, bne, ... but not bic/bfi/bkpt.
		switch {
		case strings.HasPrefix(mnemonic, "bic"),
			strings.HasPrefix(mnemonic, "bfi"),
			strings.HasPrefix(mnemonic, "bfc"),
			strings.HasPrefix(mnemonic, "bkpt"):
			return false
		}
		return true
	case strings.HasPrefix(mnemonic, "cbz"), strings.HasPrefix(mnemonic, "cbnz"):
		return true
	case strings.HasPrefix(mnemonic, "tbb"), strings.HasPrefix(mnemonic, "tbh"):
		return true
	case strings.HasPrefix(mnemonic, "pop"):
		// pop {..., pc} is the common Thumb return; treating every pop
		// as a boundary over-splits slightly and never merges blocks
		// the tracer keeps apart.
		return true
	case strings.HasPrefix(mnemonic, "svc"):
		return true
	}
	return false
}

// ClassifyLevel maps a function name to its execution level: 2 for
// interrupt handlers, 1 for kernel API, 0 for task code. The FreeRTOS
// convention encodes the level in the name.
func ClassifyLevel(fn string) uint8 {
	switch {
	case strings.HasSuffix(fn, "_Handler"),
		strings.HasSuffix(fn, "_IRQHandler"),
		strings.HasPrefix(fn, "ISR"):
		return 2
	case strings.HasPrefix(fn, "x"),
		strings.HasPrefix(fn, "v"),
		strings.HasPrefix(fn, "ux"),
		strings.HasPrefix(fn, "ul"),
		strings.HasPrefix(fn, "pv"),
		strings.HasPrefix(fn, "prv"):
		return 1
	}
	return 0
}
