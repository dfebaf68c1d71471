// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/SunilChowdary1909/FRET/prog"
)

func mkEntry(response uint64, intervals int, gen uint64, nodes ...uint64) *Entry {
	var path []PathPoint
	for i, n := range nodes {
		path = append(path, PathPoint{Node: n, Tick: uint64(i) * 100})
	}
	return &Entry{
		Input: &prog.Input{Data: []byte("payload"), Interrupts: []uint64{10, 20}},
		Summary: Summary{
			Intervals:     intervals,
			PathHash:      response ^ uint64(intervals),
			WorstResponse: response,
			ExecTicks:     response + 50,
			Path:          path,
		},
		Generation: gen,
		Parent:     -1,
	}
}

func TestNewRequiresSeeds(t *testing.T) {
	if _, err := New(Config{Policy: PolicyTimeMax}, nil); err == nil {
		t.Errorf("empty corpus constructed without error")
	}
}

func TestTimeMaxPrefersWorst(t *testing.T) {
	seeds := []*Entry{
		mkEntry(100, 3, 0, 1),
		mkEntry(900, 2, 0, 2),
		mkEntry(400, 5, 0, 3),
	}
	c, err := New(Config{Policy: PolicyTimeMax, Rand: rand.New(rand.NewSource(1))}, seeds)
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[uint64]int)
	for i := 0; i < 1000; i++ {
		counts[c.Next().Summary.WorstResponse]++
	}
	if counts[900] <= counts[100] || counts[900] <= counts[400] {
		t.Errorf("worst response not preferred: %v", counts)
	}
	for _, e := range seeds {
		if counts[e.Summary.WorstResponse] == 0 {
			t.Errorf("entry with response %d starved", e.Summary.WorstResponse)
		}
	}
}

func TestTimeMaxTieBreak(t *testing.T) {
	small := mkEntry(500, 3, 0, 1)
	big := mkEntry(500, 3, 0, 2)
	big.Input.Data = append(big.Input.Data, make([]byte, 100)...)
	if !timeMaxLess(small, big) || timeMaxLess(big, small) {
		t.Errorf("equal responses must prefer the smaller input")
	}
	// Same size: the earlier find wins.
	a, b := mkEntry(500, 3, 0), mkEntry(500, 3, 0)
	a.id, b.id = 0, 1
	if !timeMaxLess(a, b) {
		t.Errorf("equal responses and sizes must prefer the earlier entry")
	}
}

func TestLongestTracePrefersLong(t *testing.T) {
	seeds := []*Entry{
		mkEntry(900, 2, 0, 1),
		mkEntry(100, 30, 0, 2),
	}
	c, err := New(Config{Policy: PolicyLongestTrace, Rand: rand.New(rand.NewSource(2))}, seeds)
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[int]int)
	for i := 0; i < 1000; i++ {
		counts[c.Next().Summary.Intervals]++
	}
	if counts[30] <= counts[2] {
		t.Errorf("long trace not preferred: %v", counts)
	}
}

func TestGenerationsRotate(t *testing.T) {
	seeds := []*Entry{
		mkEntry(100, 2, 0, 1),
		mkEntry(200, 2, 1, 2),
		mkEntry(300, 2, 2, 3),
	}
	c, err := New(Config{Policy: PolicyGenerations, GenSize: 4, Rand: rand.New(rand.NewSource(3))}, seeds)
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[uint64]int)
	for i := 0; i < 3*4*10; i++ {
		counts[c.Next().Generation]++
	}
	// Each generation gets exactly its share of the rotation.
	for gen := uint64(0); gen < 3; gen++ {
		if counts[gen] != 4*10 {
			t.Errorf("generation %d served %d picks, want %d", gen, counts[gen], 4*10)
		}
	}
}

func TestByNode(t *testing.T) {
	e1 := mkEntry(100, 2, 0, 7, 8)
	e2 := mkEntry(200, 2, 0, 8, 9)
	c, err := New(Config{Policy: PolicyTimeMax}, []*Entry{e1, e2})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.ByNode(8); len(got) != 2 {
		t.Errorf("node 8 has %d entries, want 2", len(got))
	}
	if got := c.ByNode(7); len(got) != 1 || got[0] != e1 {
		t.Errorf("node 7 lookup wrong")
	}
	if got := c.ByNode(1234); got != nil {
		t.Errorf("unknown node returned entries")
	}
}

func TestEntryRoundTrip(t *testing.T) {
	e := mkEntry(12345, 17, 3, 5, 6, 7)
	got, err := DeserializeEntry(e.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(e, got, cmp.AllowUnexported(Entry{})); diff != "" {
		t.Errorf("entry does not round-trip:\n%s", diff)
	}
	data := e.Serialize()
	if _, err := DeserializeEntry(data[:10]); err == nil {
		t.Errorf("truncated entry deserialized without error")
	}
	if _, err := DeserializeEntry([]byte("BOGUS")); err == nil {
		t.Errorf("bad magic deserialized without error")
	}
}
