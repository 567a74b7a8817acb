package fmvoice

import (
	"errors"
	"sync"
	"time"

	intaudio "github.com/cbegin/fmvoice-go/internal/audio"
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleTap func([]float32)
}

// WithSampleTap installs a callback invoked with each rendered mono buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// Player streams a VoiceMachine to the system audio device. The machine
// stays fully controllable while playing: NoteOn, setters and panic calls go
// straight to the machine.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	machine    VoiceMachine
	audio      *intaudio.Player
	tap        func([]float32)
}

// tapSource forwards rendering to the machine and fans the buffer out to the
// optional tap.
type tapSource struct {
	machine VoiceMachine
	tap     func([]float32)
}

func (s *tapSource) ProcessBuffer(dst []float32) {
	s.machine.ProcessBuffer(dst)
	if s.tap != nil {
		s.tap(dst)
	}
}

func NewPlayer(sampleRate int, machine VoiceMachine, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if machine == nil {
		return nil, errors.New("machine must not be nil")
	}
	cfg := playerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{
		sampleRate: sampleRate,
		machine:    machine,
		tap:        cfg.sampleTap,
	}, nil
}

// Start opens the audio device and begins streaming. Calling Start on a
// playing player is a no-op.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
		return nil
	}
	backend, err := intaudio.NewPlayer(p.sampleRate, &tapSource{machine: p.machine, tap: p.tap})
	if err != nil {
		return err
	}
	p.audio = backend
	p.audio.Play()
	return nil
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

// Stop silences the machine and closes the audio stream. While the stream is
// open the machine is faded out first, giving the driver a few buffers to
// render a click-free tail before the hard stop.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		p.machine.StopAllVoices()
		return nil
	}
	p.machine.QuickReleaseAll()
	for i := 0; i < 5 && p.machine.IsActive(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
	p.machine.StopAllVoices()
	err := p.audio.Stop()
	p.audio = nil
	return err
}

// Machine returns the wrapped voice machine for live control.
func (p *Player) Machine() VoiceMachine { return p.machine }

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() time.Duration {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Position()
}
