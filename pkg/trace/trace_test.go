// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/SunilChowdary1909/FRET/pkg/ostarget"
)

var (
	blkMain = Block{Start: 0x8000100, Ends: []uint64{0x8000140}, Level: 0, Name: "sensor_loop"}
	blkAPI  = Block{Start: 0x8000800, Ends: []uint64{0x8000820, 0x8000830}, Level: 1, Name: "xQueueSend"}
	blkISR  = Block{Start: 0x8001000, Ends: []uint64{0x8001050}, Level: 2, Name: "EXTI0_Handler"}
)

func payload(current string, ready ...string) []byte {
	state := &ostarget.SystemState{
		CurrentTask: current,
		Tasks: []ostarget.TaskView{
			{Name: "sensor", Entry: 0x8000100, Priority: 3, Status: ostarget.TaskRunning},
			{Name: "actuator", Entry: 0x8000200, Priority: 2, Status: ostarget.TaskReady},
		},
		ReadyOrder: ready,
	}
	state.Normalize()
	return ostarget.EncodeFreeRTOS(state)
}

func decoder(t *testing.T) ostarget.Decoder {
	t.Helper()
	dec, err := ostarget.Get("freertos")
	if err != nil {
		t.Fatal(err)
	}
	return dec
}

// Three snapshots plus a clean end with a final capture: the event
// stream below produces exactly three intervals.
func sampleEvents() []Event {
	return []Event{
		{Tick: 0, Kind: KindTick, Region: blkMain, Payload: payload("sensor", "actuator")},
		{Tick: 100, Kind: KindJobStart, Payload: []byte("sensor")},
		{Tick: 150, Kind: KindSyscall, ID: 7, Region: blkAPI, Payload: payload("sensor", "actuator")},
		{Tick: 300, Kind: KindInterrupt, ID: 2, Region: blkISR, Payload: payload("actuator", "sensor")},
		{Tick: 450, Kind: KindJobEnd, Payload: []byte("sensor")},
		{Tick: 500, Kind: KindEnd, Payload: payload("actuator", "sensor")},
	}
}

func TestBuildIntervals(t *testing.T) {
	tr, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(tr.Intervals))
	}
	wantCauses := []Cause{
		{Kind: KindTick},
		{Kind: KindSyscall, ID: 7},
		{Kind: KindInterrupt, ID: 2},
	}
	wantDur := []uint64{150, 150, 200}
	for i := range tr.Intervals {
		iv := &tr.Intervals[i]
		if iv.Cause != wantCauses[i] {
			t.Errorf("#%d wrong cause, expected=%v, got=%v", i, wantCauses[i], iv.Cause)
		}
		if iv.Duration() != wantDur[i] {
			t.Errorf("#%d wrong duration, expected=%v, got=%v", i, wantDur[i], iv.Duration())
		}
		if i > 0 && tr.Intervals[i-1].EndState != iv.StartState {
			t.Errorf("#%d interval chain broken", i)
		}
	}
	if tr.Truncated() {
		t.Errorf("clean completion flagged truncated")
	}
	if tr.Outcome != OutcomeCompleted {
		t.Errorf("wrong outcome: %v", tr.Outcome)
	}
}

func TestBuildDeterministic(t *testing.T) {
	a, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Serialize(), b.Serialize()) {
		t.Errorf("two builds of the same event stream differ")
	}
}

func TestBuildCrashTruncates(t *testing.T) {
	events := sampleEvents()
	// Crash instead of the clean end, no final capture.
	events[len(events)-1] = Event{Tick: 480, Kind: KindCrash}
	tr, err := Build(events, decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Outcome != OutcomeCrashed {
		t.Errorf("wrong outcome: %v", tr.Outcome)
	}
	if !tr.Truncated() {
		t.Errorf("crash not flagged truncated")
	}
	if len(tr.Intervals) != 2 {
		t.Errorf("partial trace has %d intervals, want 2", len(tr.Intervals))
	}
	if tr.EndTick != 480 {
		t.Errorf("end tick %d, want 480", tr.EndTick)
	}
}

func TestBuildMalformedSnapshot(t *testing.T) {
	events := sampleEvents()
	events[3].Payload = events[3].Payload[:5]
	tr, err := Build(events, decoder(t))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !tr.DecodeFailed {
		t.Errorf("decode failure not flagged")
	}
	// Everything before the bad capture survives.
	if len(tr.Intervals) != 1 {
		t.Errorf("partial trace has %d intervals, want 1", len(tr.Intervals))
	}
}

func TestSplitJobs(t *testing.T) {
	tr, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	jobs := SplitJobs(tr)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Task != "sensor" {
		t.Errorf("job task %q, want sensor", job.Task)
	}
	if !job.Complete {
		t.Errorf("job not complete")
	}
	if got := job.Response(); got != 350 {
		t.Errorf("response time %d, want 350", got)
	}
	// Only the sensor-current intervals count as execution: the
	// interval entered by the interrupt runs the actuator.
	if job.Exec != 300 {
		t.Errorf("exec ticks %d, want 300", job.Exec)
	}
}

func TestSplitJobsIncomplete(t *testing.T) {
	events := sampleEvents()
	// Drop the completion marker; the stop condition cuts the job.
	events = append(events[:4], events[5])
	tr, err := Build(events, decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	jobs := SplitJobs(tr)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Complete {
		t.Errorf("cut-off job reported complete")
	}
	if len(WorstResponse(jobs)) != 0 {
		t.Errorf("incomplete job entered worst-response comparison")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	tr, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	data := tr.Serialize()
	got, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, got.Serialize()) {
		t.Errorf("trace does not round-trip")
	}
	if _, err := Deserialize(data[:10]); err == nil {
		t.Errorf("truncated trace deserialized without error")
	}
	if _, err := Deserialize([]byte("XXXX")); err == nil {
		t.Errorf("bad magic deserialized without error")
	}
}

func TestBlockHashIgnoresEndOrder(t *testing.T) {
	a := Block{Start: 1, Ends: []uint64{2, 3}, Level: 1, Name: "f"}
	b := Block{Start: 1, Ends: []uint64{3, 2}, Level: 1, Name: "f"}
	if a.Hash() != b.Hash() {
		t.Errorf("block hash depends on exit order")
	}
	c := Block{Start: 1, Ends: []uint64{2, 3}, Level: 2, Name: "f"}
	if a.Hash() == c.Hash() {
		t.Errorf("block hash ignores level")
	}
}

func TestWriteTimeDump(t *testing.T) {
	tr, err := Build(sampleEvents(), decoder(t))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteTimeDump(&buf, tr, SplitJobs(tr)); err != nil {
		t.Fatal(err)
	}
	first := strings.Fields(strings.SplitN(buf.String(), "\n", 2)[0])
	if first[0] != "350" {
		t.Errorf("first dump field %q, want 350", first[0])
	}
}
