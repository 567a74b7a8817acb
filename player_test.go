package fmvoice

import "testing"

func TestNewPlayerValidation(t *testing.T) {
	if _, err := NewPlayer(0, testMachine()); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
	if _, err := NewPlayer(-1, testMachine()); err == nil {
		t.Fatalf("expected error for negative sample rate")
	}
	if _, err := NewPlayer(48000, nil); err == nil {
		t.Fatalf("expected error for nil machine")
	}
	if _, err := NewPlayer(48000, testMachine()); err != nil {
		t.Fatalf("valid player rejected: %v", err)
	}
}

func TestPlayerStopWithoutStart(t *testing.T) {
	pl, err := NewPlayer(48000, testMachine())
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestTapSourceForwardsBuffers(t *testing.T) {
	machine := testMachine()
	machine.NoteOn(60, 100)

	var tapped int
	src := &tapSource{
		machine: machine,
		tap:     func(buf []float32) { tapped += len(buf) },
	}
	buf := make([]float32, 512)
	src.ProcessBuffer(buf)
	if tapped != 512 {
		t.Fatalf("tap saw %d samples, want 512", tapped)
	}
	var nonZero bool
	for _, v := range buf {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("tap source produced silence for a sounding machine")
	}
}

func TestMachineInterfaceRoundTrip(t *testing.T) {
	// Both constructors must satisfy the shared machine surface with
	// identical pool semantics.
	machines := []struct {
		name string
		m    VoiceMachine
	}{
		{"fm", NewFM(48000, DefaultFMParams())},
		{"wavetable", NewWavetable(48000, DefaultWavetableParams())},
	}
	for _, tc := range machines {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.m
			if m.IsActive() {
				t.Fatalf("fresh machine active")
			}
			if !m.NoteOn(60, 100) {
				t.Fatalf("NoteOn failed")
			}
			if m.ActiveVoiceCount() != 1 {
				t.Fatalf("count %d", m.ActiveVoiceCount())
			}
			buf := make([]float32, 1024)
			m.ProcessBuffer(buf)
			m.NoteOff(60)
			m.QuickReleaseAll()
			if !m.IsActive() {
				t.Fatalf("fade should keep the voice in the pool")
			}
			m.StopAllVoices()
			if m.IsActive() {
				t.Fatalf("machine active after StopAllVoices")
			}
		})
	}
}
