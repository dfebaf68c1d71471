// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus keeps the retained inputs and decides which one the
// worker fuzzes next. Selection is policy-driven: maximize observed
// response times, prefer long traces, or rotate through discovery
// generations so late finds still get air time.
package corpus

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"

	"github.com/SunilChowdary1909/FRET/prog"
)

// PathPoint records that an execution of this entry reached the graph
// node identified by Node at tick Tick. The mutator uses matching
// points in two entries as splice anchors.
type PathPoint struct {
	Node uint64
	Tick uint64
}

// Summary is the execution profile an entry was retained with.
type Summary struct {
	Intervals     int
	PathHash      uint64
	WorstResponse uint64
	ExecTicks     uint64
	Path          []PathPoint
}

type Entry struct {
	Input   *prog.Input
	Summary Summary
	// Generation is the discovery generation the entry was found in.
	Generation uint64
	// Parent is the id of the entry this one was mutated from, or -1
	// for seeds.
	Parent int

	id int
}

func (e *Entry) ID() int { return e.id }

func (e *Entry) byteSize() int {
	return len(e.Input.Data) + 8*len(e.Input.Interrupts)
}

// Policy selects the scheduling strategy.
type Policy int

const (
	// PolicyTimeMax prefers entries with the worst observed response
	// times; ties go to the smaller input, then the earlier find.
	PolicyTimeMax Policy = iota
	// PolicyLongestTrace prefers entries with the most intervals.
	PolicyLongestTrace
	// PolicyGenerations rotates across discovery generations, serving
	// a bounded number of picks per generation before moving on.
	PolicyGenerations
)

func (p Policy) String() string {
	switch p {
	case PolicyTimeMax:
		return "timemax"
	case PolicyLongestTrace:
		return "longesttrace"
	case PolicyGenerations:
		return "generations"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps the flag spelling to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "timemax":
		return PolicyTimeMax, nil
	case "longesttrace":
		return PolicyLongestTrace, nil
	case "generations":
		return PolicyGenerations, nil
	}
	return 0, fmt.Errorf("corpus: unknown policy %q", s)
}

type Config struct {
	Policy Policy
	// GenSize is how many picks PolicyGenerations serves from one
	// generation before rotating; ignored by the other policies.
	GenSize int
	Rand    *rand.Rand
}

const defaultGenSize = 16

// Corpus holds retained entries. Not safe for concurrent use; the
// fuzzing procs serialize access through the fuzzer's lock.
type Corpus struct {
	cfg     Config
	entries []*Entry
	byNode  map[uint64][]*Entry
	sched   scheduler
}

// New builds a corpus from seed entries. An empty corpus cannot
// schedule anything, so at least one seed is required.
func New(cfg Config, seeds []*Entry) (*Corpus, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("corpus: no seed entries")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(0))
	}
	if cfg.GenSize <= 0 {
		cfg.GenSize = defaultGenSize
	}
	c := &Corpus{
		cfg:    cfg,
		byNode: make(map[uint64][]*Entry),
	}
	switch cfg.Policy {
	case PolicyTimeMax:
		c.sched = &heapScheduler{less: timeMaxLess}
	case PolicyLongestTrace:
		c.sched = &heapScheduler{less: longestTraceLess}
	case PolicyGenerations:
		c.sched = &genScheduler{genSize: cfg.GenSize, buckets: make(map[uint64]*entryHeap)}
	default:
		return nil, fmt.Errorf("corpus: unknown policy %v", cfg.Policy)
	}
	for _, e := range seeds {
		c.Insert(e)
	}
	return c, nil
}

// Insert retains an entry and indexes its path nodes.
func (c *Corpus) Insert(e *Entry) {
	e.id = len(c.entries)
	c.entries = append(c.entries, e)
	seen := make(map[uint64]bool)
	for _, pt := range e.Summary.Path {
		if seen[pt.Node] {
			continue
		}
		seen[pt.Node] = true
		c.byNode[pt.Node] = append(c.byNode[pt.Node], e)
	}
	c.sched.add(e)
}

// Next picks the entry to fuzz. It never blocks and never returns nil
// once the corpus is constructed.
func (c *Corpus) Next() *Entry {
	return c.sched.next(c.cfg.Rand)
}

// ByNode returns the entries whose retained execution passed through
// the given node, in discovery order.
func (c *Corpus) ByNode(node uint64) []*Entry {
	return c.byNode[node]
}

func (c *Corpus) Len() int { return len(c.entries) }

func (c *Corpus) Entry(id int) *Entry { return c.entries[id] }

type scheduler interface {
	add(e *Entry)
	next(rnd *rand.Rand) *Entry
}

// timeMaxLess orders entries best-first for PolicyTimeMax.
func timeMaxLess(a, b *Entry) bool {
	if a.Summary.WorstResponse != b.Summary.WorstResponse {
		return a.Summary.WorstResponse > b.Summary.WorstResponse
	}
	if a.byteSize() != b.byteSize() {
		return a.byteSize() < b.byteSize()
	}
	return a.id < b.id
}

func longestTraceLess(a, b *Entry) bool {
	if a.Summary.Intervals != b.Summary.Intervals {
		return a.Summary.Intervals > b.Summary.Intervals
	}
	if a.byteSize() != b.byteSize() {
		return a.byteSize() < b.byteSize()
	}
	return a.id < b.id
}

type entryHeap struct {
	less    func(a, b *Entry) bool
	entries []*Entry
}

func (h *entryHeap) Len() int           { return len(h.entries) }
func (h *entryHeap) Less(i, j int) bool { return h.less(h.entries[i], h.entries[j]) }
func (h *entryHeap) Swap(i, j int)      { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *entryHeap) Push(x interface{}) { h.entries = append(h.entries, x.(*Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// heapScheduler keeps entries in a best-first heap. Picks favor the
// best entry but fall through to a random one half the time so the
// rest of the corpus keeps getting fuzzed.
type heapScheduler struct {
	less func(a, b *Entry) bool
	h    *entryHeap
}

func (s *heapScheduler) add(e *Entry) {
	if s.h == nil {
		s.h = &entryHeap{less: s.less}
	}
	heap.Push(s.h, e)
}

func (s *heapScheduler) next(rnd *rand.Rand) *Entry {
	if rnd.Intn(2) == 0 {
		return s.h.entries[0]
	}
	return s.h.entries[rnd.Intn(len(s.h.entries))]
}

// genScheduler buckets entries by discovery generation and rotates:
// up to genSize picks from one generation, then on to the next, so an
// input found late is not starved by a mature corpus.
type genScheduler struct {
	genSize int
	buckets map[uint64]*entryHeap
	gens    []uint64
	cursor  int
	served  int
}

func (s *genScheduler) add(e *Entry) {
	b := s.buckets[e.Generation]
	if b == nil {
		b = &entryHeap{less: timeMaxLess}
		s.buckets[e.Generation] = b
		s.gens = append(s.gens, e.Generation)
		sort.Slice(s.gens, func(i, j int) bool { return s.gens[i] < s.gens[j] })
	}
	heap.Push(b, e)
}

func (s *genScheduler) next(rnd *rand.Rand) *Entry {
	if s.served >= s.genSize {
		s.served = 0
		s.cursor++
	}
	if s.cursor >= len(s.gens) {
		s.cursor = 0
	}
	s.served++
	b := s.buckets[s.gens[s.cursor]]
	if rnd.Intn(2) == 0 {
		return b.entries[0]
	}
	return b.entries[rnd.Intn(len(b.entries))]
}
