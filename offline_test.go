package fmvoice

import (
	"encoding/binary"
	"math"
	"testing"
)

func testMachine() VoiceMachine {
	params := DefaultFMParams()
	params.Envelope.Attack = EnvelopeStage{Curve: CurveLinear, Rate: 0.001, Target: 1}
	params.Envelope.Release = EnvelopeStage{Curve: CurveLinear, Rate: 0.005, Target: 0}
	return NewFM(48000, params)
}

func TestRenderNotesSchedulesEvents(t *testing.T) {
	const sr = 48000
	out := RenderNotes(testMachine(), sr, 1.0, []NoteEvent{
		{Note: 69, Velocity: 127, Start: 0.5, Duration: 0.2},
	})
	if len(out) != sr {
		t.Fatalf("buffer length %d, want %d", len(out), sr)
	}

	// Silence before the scheduled start.
	for i := 0; i < sr/2; i++ {
		if out[i] != 0 {
			t.Fatalf("non-zero sample %f at %d, before note start", out[i], i)
		}
	}
	// Audio while the note is held.
	var energy float64
	for _, v := range out[sr/2 : sr*7/10] {
		energy += math.Abs(float64(v))
	}
	if energy == 0 {
		t.Fatalf("no output while note held")
	}
	// Silence again once the release tail has died (0.7s + 5ms release,
	// generous margin).
	for i := sr * 8 / 10; i < sr; i++ {
		if out[i] != 0 {
			t.Fatalf("non-zero sample %f at %d, after note end", out[i], i)
		}
	}
}

func TestRenderNotesOverlap(t *testing.T) {
	machine := testMachine()
	out := RenderNotes(machine, 48000, 0.5, []NoteEvent{
		{Note: 60, Velocity: 100, Start: 0, Duration: 0.4},
		{Note: 64, Velocity: 100, Start: 0.1, Duration: 0.3},
		{Note: 67, Velocity: 100, Start: 0.2, Duration: 0.2},
	})
	var nonZero int
	for _, v := range out {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero < len(out)/2 {
		t.Fatalf("overlapping notes produced only %d non-zero of %d samples", nonZero, len(out))
	}
	if machine.ActiveVoiceCount() != 0 {
		t.Fatalf("%d voices still active after render", machine.ActiveVoiceCount())
	}
}

func TestRenderNotesClampsNegativeStart(t *testing.T) {
	out := RenderNotes(testMachine(), 48000, 0.2, []NoteEvent{
		{Note: 60, Velocity: 100, Start: -1, Duration: 1.1},
	})
	var nonZero bool
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("note with negative start produced no output")
	}
}

func TestEncodeWAVFloat32LE(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	wav := EncodeWAVFloat32LE(samples, 48000, 1)

	if len(wav) != 44+len(samples)*4 {
		t.Fatalf("container length %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header")
	}
	if format := binary.LittleEndian.Uint16(wav[20:]); format != 3 {
		t.Fatalf("audio format %d, want 3 (IEEE float)", format)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:]); bits != 32 {
		t.Fatalf("bits per sample %d", bits)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:]); rate != 48000 {
		t.Fatalf("sample rate %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:]); size != uint32(len(samples)*4) {
		t.Fatalf("data size %d", size)
	}
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(wav[44+i*4:]))
		if got != want {
			t.Fatalf("sample %d: %f, want %f", i, got, want)
		}
	}
}
