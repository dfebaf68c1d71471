// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSerializeRoundTrip(t *testing.T) {
	tests := []*Input{
		{Data: []byte("sensor payload"), Interrupts: []uint64{100, 250, 4000}},
		{Data: nil, Interrupts: []uint64{0}},
		{Data: []byte{0xff, 0x00}, Interrupts: nil},
	}
	for i, in := range tests {
		got, err := Deserialize(in.Serialize())
		if err != nil {
			t.Fatalf("#%d deserialize failed: %v", i, err)
		}
		if diff := cmp.Diff(in, got); diff != "" {
			t.Errorf("#%d wrong, diff:\n%s", i, diff)
		}
	}
}

func TestDeserializeMalformed(t *testing.T) {
	good := (&Input{Data: []byte("x"), Interrupts: []uint64{10, 20}}).Serialize()
	tests := [][]byte{
		nil,
		[]byte("BAD!"),
		good[:6],
		good[:len(good)-3],
	}
	for i, data := range tests {
		if _, err := Deserialize(data); err == nil {
			t.Errorf("#%d malformed input deserialized without error", i)
		}
	}
	// An unsorted schedule on the wire is rejected too.
	bad := (&Input{Interrupts: []uint64{20, 10}}).Serialize()
	if _, err := Deserialize(bad); err == nil {
		t.Errorf("unsorted schedule deserialized without error")
	}
}

func TestMutateInterruptsInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	cfg := MutateConfig{MaxInterrupts: 8, MaxShift: 500, MinGap: 10, MaxTick: 100000}
	in := &Input{Data: []byte("fixed payload"), Interrupts: []uint64{100, 2000, 30000}}
	for iter := 0; iter < 1000; iter++ {
		out := in.MutateInterrupts(rnd, cfg)
		if !bytes.Equal(out.Data, in.Data) {
			t.Fatalf("iter %d: mutation touched payload bytes", iter)
		}
		if err := out.Validate(0); err != nil {
			t.Fatalf("iter %d: %v", iter, err)
		}
		if len(out.Interrupts) > cfg.MaxInterrupts {
			t.Fatalf("iter %d: schedule grew to %d, cap %d", iter, len(out.Interrupts), cfg.MaxInterrupts)
		}
		for i := 1; i < len(out.Interrupts); i++ {
			if out.Interrupts[i]-out.Interrupts[i-1] < cfg.MinGap {
				t.Fatalf("iter %d: gap %d below minimum %d at %d",
					iter, out.Interrupts[i]-out.Interrupts[i-1], cfg.MinGap, i)
			}
		}
		in = out
	}
}

func TestMutateDoesNotAliasParent(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	in := &Input{Data: []byte("seed"), Interrupts: []uint64{50, 60, 70}}
	before := append([]uint64{}, in.Interrupts...)
	for i := 0; i < 100; i++ {
		in.MutateInterrupts(rnd, MutateConfig{})
	}
	if diff := cmp.Diff(before, in.Interrupts); diff != "" {
		t.Errorf("parent schedule changed under mutation:\n%s", diff)
	}
}

func TestRandomSchedule(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	cfg := MutateConfig{MaxInterrupts: 16, MinGap: 5, MaxTick: 5000}
	for iter := 0; iter < 200; iter++ {
		offs := RandomSchedule(rnd, cfg)
		if len(offs) == 0 || len(offs) > cfg.MaxInterrupts {
			t.Fatalf("iter %d: schedule length %d", iter, len(offs))
		}
		for i := 1; i < len(offs); i++ {
			if offs[i] < offs[i-1]+cfg.MinGap {
				t.Fatalf("iter %d: unsorted or too dense at %d: %v", iter, i, offs)
			}
		}
	}
}

func TestMutateSTGPath(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	base := &Input{Data: []byte("base"), Interrupts: []uint64{10, 90}}
	if _, ok := MutateSTGPath(rnd, base, nil); ok {
		t.Fatalf("splice succeeded without candidates")
	}
	donor := &Input{Data: []byte("dnr!"), Interrupts: []uint64{30, 70}}
	cands := []SpliceCandidate{{Donor: donor, BaseTick: 50, DonorTick: 30}}
	for i := 0; i < 100; i++ {
		out, ok := MutateSTGPath(rnd, base, cands)
		if !ok {
			t.Fatalf("iter %d: splice failed with a candidate", i)
		}
		want := []uint64{10, 50, 90}
		if diff := cmp.Diff(want, out.Interrupts); diff != "" {
			t.Fatalf("iter %d: spliced schedule wrong:\n%s", i, diff)
		}
		if len(out.Data) != len(base.Data) {
			t.Fatalf("iter %d: payload length changed: %q", i, out.Data)
		}
	}
	if !bytes.Equal(base.Data, []byte("base")) || !bytes.Equal(donor.Data, []byte("dnr!")) {
		t.Errorf("splice modified its inputs")
	}
}

func TestSpliceInterrupts(t *testing.T) {
	base := &Input{Data: []byte("base"), Interrupts: []uint64{10, 20, 90, 100}}
	donor := &Input{Data: []byte("donor"), Interrupts: []uint64{5, 40, 55, 80}}
	out := SpliceInterrupts(base, donor, 50, 40)
	want := []uint64{10, 20, 50, 65, 90}
	if diff := cmp.Diff(want, out.Interrupts); diff != "" {
		t.Errorf("splice wrong:\n%s", diff)
	}
	if !bytes.Equal(out.Data, base.Data) {
		t.Errorf("splice replaced base payload")
	}
	if err := out.Validate(0); err != nil {
		t.Errorf("spliced schedule invalid: %v", err)
	}
}
