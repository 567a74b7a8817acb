package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"

	fmvoice "github.com/cbegin/fmvoice-go"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		engineName = flag.String("engine", "fm", "voice engine: fm|wavetable")
		outPath    = flag.String("o", "out.wav", "output WAV path")
		tail       = flag.Float64("tail", 1.0, "seconds of release tail after the last note")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: fmrender [flags] song.mid")
	}
	midPath := flag.Arg(0)

	events, end, err := readNotes(midPath)
	if err != nil {
		log.Fatal(err)
	}
	if len(events) == 0 {
		log.Fatalf("%s contains no notes", midPath)
	}

	machine, err := buildMachine(*engineName, *sampleRate)
	if err != nil {
		log.Fatal(err)
	}
	machine.SetMasterVolume(*volume)

	samples := fmvoice.RenderNotes(machine, *sampleRate, end+*tail, events)
	wav := fmvoice.EncodeWAVFloat32LE(samples, *sampleRate, 1)
	if err := os.WriteFile(*outPath, wav, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s: %d notes, %.2fs at %d Hz\n", *outPath, len(events), end+*tail, *sampleRate)
}

// readNotes flattens all tracks of an SMF file into a note-event schedule.
// Returns the schedule and the time of the last note end in seconds.
func readNotes(path string) ([]fmvoice.NoteEvent, float64, error) {
	type pending struct {
		start    float64
		velocity int
	}
	open := map[uint8]pending{}
	var events []fmvoice.NoteEvent
	var end float64

	rd := smf.ReadTracks(path).Do(func(te smf.TrackEvent) {
		t := float64(te.AbsMicroSeconds) / 1e6
		var channel, key, velocity uint8
		switch {
		case te.Message.GetNoteStart(&channel, &key, &velocity):
			open[key] = pending{start: t, velocity: int(velocity)}
		case te.Message.GetNoteEnd(&channel, &key):
			p, ok := open[key]
			if !ok {
				return
			}
			delete(open, key)
			events = append(events, fmvoice.NoteEvent{
				Note:     int(key),
				Velocity: p.velocity,
				Start:    p.start,
				Duration: t - p.start,
			})
			if t > end {
				end = t
			}
		}
	})
	if err := rd.Error(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return events, end, nil
}

func buildMachine(engineName string, sampleRate int) (fmvoice.VoiceMachine, error) {
	switch strings.ToLower(engineName) {
	case "fm":
		return fmvoice.NewFM(sampleRate, fmvoice.DefaultFMParams()), nil
	case "wavetable", "wt":
		return fmvoice.NewWavetable(sampleRate, fmvoice.DefaultWavetableParams()), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want fm or wavetable)", engineName)
	}
}
