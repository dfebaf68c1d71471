// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kernimage

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

func TestClassifyLevel(t *testing.T) {
	tests := []struct {
		fn   string
		want uint8
	}{
		{"EXTI0_Handler", 2},
		{"TIM2_IRQHandler", 2},
		{"ISR_uart", 2},
		{"xQueueSend", 1},
		{"vTaskDelay", 1},
		{"uxListRemove", 1},
		{"ulTaskNotifyTake", 1},
		{"pvPortMalloc", 1},
		{"prvIdleTask", 1},
		{"sensor_loop", 0},
		{"main", 0},
	}
	for i, test := range tests {
		if got := ClassifyLevel(test.fn); got != test.want {
			t.Errorf("#%d %v wrong, expected=%v, got=%v", i, test.fn, test.want, got)
		}
	}
}

func TestBranchInsn(t *testing.T) {
	branches := []string{"b", "b.w", "bl", "blx", "bx", "beq", "bne.w", "cbz", "cbnz", "tbb", "pop", "svc"}
	for _, m := range branches {
		if !branchInsn(m) {
			t.Errorf("%v not treated as branch", m)
		}
	}
	straight := []string{"mov", "ldr", "str", "add", "bic", "bfi", "bfc", "bkpt", "push", "cmp", ""}
	for _, m := range straight {
		if branchInsn(m) {
			t.Errorf("%v treated as branch", m)
		}
	}
}

func TestSplitBlocks(t *testing.T) {
	insns := []insn{
		{addr: 0x100, size: 2, mnemonic: "push"},
		{addr: 0x102, size: 2, mnemonic: "mov"},
		{addr: 0x104, size: 2, mnemonic: "beq"},
		{addr: 0x106, size: 4, mnemonic: "ldr"},
		{addr: 0x10a, size: 2, mnemonic: "bl"},
		{addr: 0x10c, size: 2, mnemonic: "pop"},
	}
	blocks := splitBlocks("vTaskDelay", insns)
	want := []trace.Block{
		{Start: 0x100, Ends: []uint64{0x104}, Level: 1, Name: "vTaskDelay+0x0"},
		{Start: 0x106, Ends: []uint64{0x10a}, Level: 1, Name: "vTaskDelay+0x6"},
		{Start: 0x10c, Ends: []uint64{0x10c}, Level: 1, Name: "vTaskDelay+0xc"},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Errorf("blocks wrong:\n%s", diff)
	}
	if blocks := splitBlocks("f", nil); blocks != nil {
		t.Errorf("empty function produced blocks: %v", blocks)
	}
	// A function with no branches is one block ending at its last insn.
	one := splitBlocks("sensor_loop", insns[:2])
	if len(one) != 1 || one[0].Ends[0] != 0x102 || one[0].Level != 0 {
		t.Errorf("straight-line function wrong: %+v", one)
	}
}

func TestSectionOffset(t *testing.T) {
	const secAddr, secLen = 0x8000000, 0x1000
	tests := []struct {
		addr, size uint64
		offset     uint64
		ok, past   bool
	}{
		// Boot stub below .text: skipped, scan keeps going.
		{0x100, 0x20, 0, false, false},
		{secAddr, 0x40, 0, true, false},
		{secAddr + 0x200, 0x40, 0x200, true, false},
		// Last byte exactly at the section end still fits.
		{secAddr + secLen - 0x10, 0x10, secLen - 0x10, true, false},
		{secAddr + secLen - 0x10, 0x11, 0, false, true},
		{secAddr + secLen, 0x4, 0, false, true},
	}
	for i, test := range tests {
		offset, ok, past := sectionOffset(test.addr, test.size, secAddr, secLen)
		if offset != test.offset || ok != test.ok || past != test.past {
			t.Errorf("#%d %#x+%#x wrong, expected=(%#x,%v,%v), got=(%#x,%v,%v)",
				i, test.addr, test.size, test.offset, test.ok, test.past, offset, ok, past)
		}
	}
}

func TestBlocksCacheRoundTrip(t *testing.T) {
	blocks := []trace.Block{
		{Start: 0x8000100, Ends: []uint64{0x8000140, 0x8000150}, Level: 0, Name: "sensor_loop+0x0"},
		{Start: 0x8001000, Ends: []uint64{0x8001050}, Level: 2, Name: "EXTI0_Handler+0x0"},
	}
	path := filepath.Join(t.TempDir(), "blocks-test")
	if err := WriteBlocks(path, blocks); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBlocks(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(blocks, got); diff != "" {
		t.Errorf("cache does not round-trip:\n%s", diff)
	}
	if _, err := ReadBlocks(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("missing cache read without error")
	}
}
