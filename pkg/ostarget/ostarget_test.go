// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ostarget

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleState() *SystemState {
	state := &SystemState{
		CurrentTask: "sensor",
		Tasks: []TaskView{
			{Name: "sensor", Entry: 0x8000100, Priority: 3, Status: TaskRunning},
			{Name: "actuator", Entry: 0x8000200, Priority: 2, Status: TaskReady, Notified: 1},
			{Name: "idle", Entry: 0x8000300, Priority: 0, Status: TaskReady},
		},
		ReadyOrder:  []string{"actuator", "idle"},
		HeldMutexes: []string{"i2c"},
		PendingBits: 0x5,
	}
	state.Normalize()
	return state
}

func TestFreeRTOSRoundTrip(t *testing.T) {
	dec, err := Get("freertos")
	if err != nil {
		t.Fatal(err)
	}
	want := sampleState()
	got, err := dec.Decode(EncodeFreeRTOS(want))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded state differs (-want +got):\n%s", diff)
	}
}

func TestHashStableUnderTaskOrder(t *testing.T) {
	a := sampleState()
	b := sampleState()
	// Same scheduling situation, task list walked in a different order.
	b.Tasks[0], b.Tasks[2] = b.Tasks[2], b.Tasks[0]
	b.Normalize()
	if a.Hash() != b.Hash() {
		t.Errorf("hash depends on task list order")
	}
}

func TestHashSensitivity(t *testing.T) {
	base := sampleState()
	tests := []struct {
		name   string
		mutate func(*SystemState)
	}{
		{"current task", func(s *SystemState) { s.CurrentTask = "actuator" }},
		{"task status", func(s *SystemState) { s.Task("actuator").Status = TaskBlocked }},
		{"ready order", func(s *SystemState) { s.ReadyOrder[0], s.ReadyOrder[1] = s.ReadyOrder[1], s.ReadyOrder[0] }},
		{"held mutex", func(s *SystemState) { s.HeldMutexes = nil }},
		{"pending bits", func(s *SystemState) { s.PendingBits = 0 }},
		{"priority", func(s *SystemState) { s.Task("idle").Priority = 1 }},
	}
	for _, test := range tests {
		changed := sampleState()
		test.mutate(changed)
		if base.Hash() == changed.Hash() {
			t.Errorf("%v: change not reflected in fingerprint", test.name)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	dec, _ := Get("freertos")
	good := EncodeFreeRTOS(sampleState())
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"bad version", append([]byte{99}, good[1:]...)},
		{"truncated", good[:len(good)-3]},
		{"truncated name", good[:2]},
	}
	for i, test := range tests {
		if _, err := dec.Decode(test.payload); err == nil {
			t.Errorf("#%d %v: expected decode error, got none", i, test.name)
		}
	}
}

func TestDecodeIgnoresTrailingContext(t *testing.T) {
	dec, _ := Get("freertos")
	payload := EncodeFreeRTOS(sampleState())
	// Registers captured after the scheduling fields must not affect
	// the fingerprint.
	withCtx := append(append([]byte{}, payload...), 0xde, 0xad, 0xbe, 0xef)
	a, err := dec.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	b, err := dec.Decode(withCtx)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() != b.Hash() {
		t.Errorf("execution context leaked into the fingerprint")
	}
}
