// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stg

// TimeStats is the online timing aggregate of one edge: count, min,
// max and Welford running mean/variance. The stream is never stored;
// statistics must stay stable over arbitrarily long campaigns.
type TimeStats struct {
	Count uint64
	Min   uint64
	Max   uint64
	Mean  float64
	m2    float64
}

// Fold adds one observed duration. Count, Min and Max are exact
// integers and reproduce byte-identically on replay; Mean and
// variance carry float rounding.
func (st *TimeStats) Fold(d uint64) {
	if st.Count == 0 {
		st.Min, st.Max = d, d
	} else {
		if d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
	}
	st.Count++
	delta := float64(d) - st.Mean
	st.Mean += delta / float64(st.Count)
	st.m2 += delta * (float64(d) - st.Mean)
}

// Variance is the sample variance of the folded durations.
func (st *TimeStats) Variance() float64 {
	if st.Count < 2 {
		return 0
	}
	return st.m2 / float64(st.Count-1)
}
