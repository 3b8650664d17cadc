package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"

	"github.com/pcranner/soundshelf/internal/media"
)

// Backend is the opaque decode/output subsystem the engine controls. The
// engine owns all state bookkeeping; a backend only has to produce sound and
// report whether it still is.
//
// Implementations need not support arbitrary seeking: Start takes a
// best-effort offset and may begin at zero.
type Backend interface {
	// Load validates that the resource can be decoded. It does not start
	// output.
	Load(path string) error
	// Start (re)starts output from approximately offset seconds.
	Start(offset float64) error
	// Pause suspends output, Resume continues it in place.
	Pause() error
	Resume() error
	// Stop halts output. Always safe.
	Stop()
	// SetVolume applies a level in [0, 1].
	SetVolume(level float64)
	// Busy reports whether the backend is still producing output.
	Busy() bool
	// Close releases backend resources.
	Close() error
}

// BeepBackend plays audio through the beep speaker. Each Start decodes the
// loaded file afresh, which is what makes stop/restart (and therefore
// seek-to-zero) exact.
type BeepBackend struct {
	mu       sync.Mutex
	path     string
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	playing  atomic.Bool
	rate     beep.SampleRate
}

// NewBeepBackend creates an idle beep backend.
func NewBeepBackend() *BeepBackend {
	return &BeepBackend{level: 0.7}
}

// Load decodes the file once to prove the backend can handle it, then
// remembers the path for Start.
func (b *BeepBackend) Load(path string) error {
	streamer, _, err := media.Decode(path)
	if err != nil {
		return err
	}
	streamer.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.path = path
	return nil
}

// Start decodes the loaded file and begins output. The offset is best-effort:
// when the streamer refuses to seek, playback starts at zero.
func (b *BeepBackend) Start(offset float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path == "" {
		return fmt.Errorf("no track loaded")
	}
	b.stopLocked()

	streamer, format, err := media.Decode(b.path)
	if err != nil {
		return err
	}

	if offset > 0 {
		if err := streamer.Seek(format.SampleRate.N(time.Duration(offset * float64(time.Second)))); err != nil {
			// Non-seekable stream; start from the top.
			streamer.Seek(0)
		}
	}

	if b.rate != format.SampleRate {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return err
		}
		b.rate = format.SampleRate
	}

	b.streamer = streamer
	b.ctrl = &beep.Ctrl{Streamer: streamer}
	b.volume = &effects.Volume{
		Streamer: b.ctrl,
		Base:     2,
		Volume:   b.level*2 - 1,
		Silent:   b.level <= 0,
	}
	b.playing.Store(true)

	// The callback runs on the speaker goroutine while it holds the speaker
	// lock; it must not take b.mu, or it would invert lock order with
	// stopLocked's speaker.Clear.
	speaker.Play(beep.Seq(b.volume, beep.Callback(func() {
		b.playing.Store(false)
	})))
	return nil
}

// Pause suspends output.
func (b *BeepBackend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil {
		return fmt.Errorf("nothing playing")
	}

	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Resume continues paused output in place.
func (b *BeepBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil {
		return fmt.Errorf("nothing playing")
	}

	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Stop halts output and releases the current stream.
func (b *BeepBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *BeepBackend) stopLocked() {
	if b.streamer == nil {
		return
	}
	speaker.Clear()
	b.streamer.Close()
	b.streamer = nil
	b.ctrl = nil
	b.volume = nil
	b.playing.Store(false)
}

// SetVolume maps a 0..1 level onto the effect's exponential scale.
func (b *BeepBackend) SetVolume(level float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.level = level
	if b.volume == nil {
		return
	}

	speaker.Lock()
	b.volume.Volume = level*2 - 1
	b.volume.Silent = level <= 0
	speaker.Unlock()
}

// Busy reports whether the stream has finished draining. A paused stream is
// still busy.
func (b *BeepBackend) Busy() bool {
	return b.playing.Load()
}

// Close stops output and forgets the loaded track.
func (b *BeepBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.path = ""
	return nil
}
