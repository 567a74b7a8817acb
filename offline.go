package fmvoice

import (
	"encoding/binary"
	"math"
	"sort"
)

// NoteEvent is one scheduled note for offline rendering. Times are in
// seconds from the start of the render.
type NoteEvent struct {
	Note     int
	Velocity int
	Start    float64
	Duration float64
}

// RenderNotes renders a schedule of notes through the machine into a mono
// float32 buffer of the given length. Events are dispatched at sample
// accuracy; notes still sounding at the end are cut by the buffer edge.
func RenderNotes(machine VoiceMachine, sampleRate int, seconds float64, events []NoteEvent) []float32 {
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames)

	type edge struct {
		frame int
		on    bool
		ev    NoteEvent
	}
	edges := make([]edge, 0, len(events)*2)
	for _, ev := range events {
		on := int(ev.Start * float64(sampleRate))
		off := int((ev.Start + ev.Duration) * float64(sampleRate))
		if on < 0 {
			on = 0
		}
		edges = append(edges, edge{frame: on, on: true, ev: ev})
		edges = append(edges, edge{frame: off, on: false, ev: ev})
	}
	// Stable so simultaneous edges keep schedule order, offs before ons.
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].frame != edges[j].frame {
			return edges[i].frame < edges[j].frame
		}
		return !edges[i].on && edges[j].on
	})

	pos := 0
	for _, ed := range edges {
		if ed.frame > frames {
			break
		}
		if ed.frame > pos {
			machine.ProcessBuffer(out[pos:ed.frame])
			pos = ed.frame
		}
		if ed.on {
			machine.NoteOn(ed.ev.Note, ed.ev.Velocity)
		} else {
			machine.NoteOff(ed.ev.Note)
		}
	}
	if pos < frames {
		machine.ProcessBuffer(out[pos:])
	}
	return out
}

// EncodeWAVFloat32LE wraps samples in a RIFF/WAVE container with IEEE float
// (format 3) encoding.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
