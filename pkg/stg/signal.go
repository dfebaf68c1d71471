// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stg

// Signal is the set of node/edge key hashes known to the fuzzer. The
// worker keeps one signal for the whole corpus and diffs each
// execution against it; the per-execution delta is what makes a case
// interesting under coverage feedback.
type Signal map[uint64]struct{}

func (s Signal) Copy() Signal {
	c := make(Signal, len(s))
	for e := range s {
		c[e] = struct{}{}
	}
	return c
}

func (s Signal) Empty() bool {
	return len(s) == 0
}

func (s Signal) Len() int {
	return len(s)
}

// Diff returns the elements of s0 not present in s.
func (s Signal) Diff(s0 Signal) Signal {
	var diff Signal
	for hsh := range s0 {
		if _, ok := s[hsh]; ok {
			continue
		}
		if diff == nil {
			diff = make(Signal)
		}
		diff[hsh] = struct{}{}
	}
	return diff
}

func (s *Signal) Merge(s1 Signal) {
	s0 := *s
	if s0 == nil {
		s0 = make(Signal, len(s1))
		*s = s0
	}
	for hsh := range s1 {
		s0[hsh] = struct{}{}
	}
}

type SerialSignal []uint64

func (s Signal) Serialize() SerialSignal {
	ret := make(SerialSignal, 0, len(s))
	for e := range s {
		ret = append(ret, e)
	}
	return ret
}

func (serial SerialSignal) Deserialize() Signal {
	ret := make(Signal, len(serial))
	for _, e := range serial {
		ret[e] = struct{}{}
	}
	return ret
}
