package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	fmvoice "github.com/cbegin/fmvoice-go"
)

const defaultNotes = "60,64,67,72" // C major arpeggio

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		engineName = flag.String("engine", "fm", "voice engine: fm|wavetable")
		patchPath  = flag.String("patch", "", "path to a YAML patch file")
		notesArg   = flag.String("notes", defaultNotes, "comma-separated MIDI notes to arpeggiate")
		velocity   = flag.Int("velocity", 100, "note velocity (1-127)")
		noteLen    = flag.Duration("note-len", 200*time.Millisecond, "gate time per note")
		gap        = flag.Duration("gap", 50*time.Millisecond, "silence between notes")
		repeats    = flag.Int("repeats", 2, "arpeggio repetitions")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	notes, err := parseNotes(*notesArg)
	if err != nil {
		log.Fatal(err)
	}

	machine, err := buildMachine(*engineName, *sampleRate, *patchPath)
	if err != nil {
		log.Fatal(err)
	}
	machine.SetMasterVolume(*volume)

	pl, err := fmvoice.NewPlayer(*sampleRate, machine)
	if err != nil {
		log.Fatal(err)
	}
	if err := pl.Start(); err != nil {
		log.Fatal(err)
	}

	for r := 0; r < *repeats; r++ {
		for _, n := range notes {
			machine.NoteOn(n, *velocity)
			time.Sleep(*noteLen)
			machine.NoteOff(n)
			time.Sleep(*gap)
		}
	}
	machine.AllNotesOff()

	// Let release tails ring out before closing the device.
	for machine.IsActive() {
		time.Sleep(20 * time.Millisecond)
	}
	if err := pl.Stop(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("done")
}

func buildMachine(engineName string, sampleRate int, patchPath string) (fmvoice.VoiceMachine, error) {
	var patch *patchFile
	if patchPath != "" {
		p, err := loadPatch(patchPath)
		if err != nil {
			return nil, err
		}
		patch = p
		if patch.Engine != "" {
			engineName = patch.Engine
		}
	}
	switch strings.ToLower(engineName) {
	case "fm":
		params := fmvoice.DefaultFMParams()
		if patch != nil {
			if err := patch.applyFM(&params); err != nil {
				return nil, err
			}
		}
		return fmvoice.NewFM(sampleRate, params), nil
	case "wavetable", "wt":
		params := fmvoice.DefaultWavetableParams()
		if patch != nil {
			if err := patch.applyWavetable(&params); err != nil {
				return nil, err
			}
		}
		return fmvoice.NewWavetable(sampleRate, params), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want fm or wavetable)", engineName)
	}
}

func parseNotes(arg string) ([]int, error) {
	var notes []int
	for _, part := range strings.Split(arg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad note %q: %w", part, err)
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return notes, nil
}
