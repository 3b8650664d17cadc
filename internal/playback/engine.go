package playback

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
	"github.com/pcranner/soundshelf/internal/media"
	playerrors "github.com/pcranner/soundshelf/pkg/errors"
	"github.com/pcranner/soundshelf/pkg/events"
)

const (
	tickInterval    = time.Second
	shutdownTimeout = 2 * time.Second

	defaultVolume = 0.7
	minSpeed      = 0.5
	maxSpeed      = 2.0
)

// Engine owns the playback state machine for a single active track:
// Idle → Loaded → Playing ⇄ Paused, with stop returning to Idle from
// anywhere. Decode and output are delegated to a Backend; the engine models
// the control and bookkeeping layer around it.
//
// All session access is serialized through one mutex, shared by controller
// calls and the background position tracker, so neither can observe a torn
// state.
type Engine struct {
	backend    Backend
	dispatcher *events.Dispatcher
	log        zerolog.Logger

	mu      sync.Mutex
	session api.Session

	cancel      context.CancelFunc
	trackerDone chan struct{}
	closeOnce   sync.Once
}

// New creates an engine and starts its position tracker.
func New(backend Backend, dispatcher *events.Dispatcher, log zerolog.Logger) *Engine {
	return newEngine(backend, dispatcher, log, tickInterval)
}

func newEngine(backend Backend, dispatcher *events.Dispatcher, log zerolog.Logger, interval time.Duration) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend:    backend,
		dispatcher: dispatcher,
		log:        log,
		session: api.Session{
			Status: api.StatusIdle,
			Volume: defaultVolume,
			Speed:  1.0,
		},
		cancel:      cancel,
		trackerDone: make(chan struct{}),
	}
	go e.trackPosition(ctx, interval)
	return e
}

// Load prepares a track for playback, stopping any prior playback first. On
// success the session is Loaded at position zero with a best-effort duration.
func (e *Engine) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return e.fail("load", path, playerrors.ErrNotFound)
	}
	if !media.IsSupported(path) {
		return e.fail("load", path, playerrors.ErrUnsupportedFormat)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	if err := e.backend.Load(path); err != nil {
		return e.fail("load", path, fmt.Errorf("%w: %v", playerrors.ErrBackend, err))
	}

	e.session.Track = path
	e.session.Status = api.StatusLoaded
	e.session.Position = 0
	e.session.Duration = media.ProbeDuration(path)

	e.log.Info().Str("track", path).Float64("duration", e.session.Duration).Msg("track loaded")
	return nil
}

// Play starts or resumes playback. From Paused it resumes in place; from
// Loaded or Playing it (re)starts from the current tracked position. With
// nothing loaded it fails with ErrInvalidState.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.session.Status {
	case api.StatusIdle:
		return e.fail("play", "", playerrors.ErrInvalidState)

	case api.StatusPaused:
		if err := e.backend.Resume(); err != nil {
			return e.fail("play", e.session.Track, fmt.Errorf("%w: %v", playerrors.ErrBackend, err))
		}

	default: // Loaded, Playing
		if err := e.backend.Start(e.session.Position); err != nil {
			e.stopLocked()
			return e.fail("play", e.session.Track, fmt.Errorf("%w: %v", playerrors.ErrBackend, err))
		}
	}

	e.session.Status = api.StatusPlaying
	e.backend.SetVolume(e.session.Volume)
	return nil
}

// Pause suspends playback. Valid only while Playing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != api.StatusPlaying {
		return e.fail("pause", e.session.Track, playerrors.ErrInvalidState)
	}
	if err := e.backend.Pause(); err != nil {
		return e.fail("pause", e.session.Track, fmt.Errorf("%w: %v", playerrors.ErrBackend, err))
	}

	e.session.Status = api.StatusPaused
	return nil
}

// Stop halts playback and returns the session to Idle. Always safe,
// idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.backend.Stop()
	e.session.Track = ""
	e.session.Status = api.StatusIdle
	e.session.Position = 0
	e.session.Duration = 0
}

// SetVolume clamps the level into [0, 1] and applies it immediately.
func (e *Engine) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Volume = level
	e.backend.SetVolume(level)
}

// SetSpeed clamps the rate into [0.5, 2.0] and records it. This is a soft
// control: the backend contract does not guarantee an audible rate change.
func (e *Engine) SetSpeed(speed float64) {
	if speed < minSpeed {
		speed = minSpeed
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Speed = speed
}

// Seek updates the playback position. Seeking to zero performs a real
// stop/restart and is exact; a paused session comes back playing from the
// top. Any other target is a soft seek that only moves the bookkeeping
// position, so the displayed position may desynchronize from the audible one
// until the next track boundary.
func (e *Engine) Seek(position float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == api.StatusIdle {
		return e.fail("seek", "", playerrors.ErrInvalidState)
	}

	if position == 0 {
		restart := e.session.Status == api.StatusPlaying || e.session.Status == api.StatusPaused
		e.backend.Stop()
		e.session.Position = 0

		if restart {
			if err := e.backend.Start(0); err != nil {
				e.stopLocked()
				return e.fail("seek", e.session.Track, fmt.Errorf("%w: %v", playerrors.ErrBackend, err))
			}
			e.backend.SetVolume(e.session.Volume)
			e.session.Status = api.StatusPlaying
		} else {
			e.session.Status = api.StatusLoaded
		}
		return nil
	}

	if position < 0 {
		position = 0
	}
	if position > e.session.Duration {
		position = e.session.Duration
	}
	e.session.Position = position
	return nil
}

// Session returns a snapshot of the playback state.
func (e *Engine) Session() api.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Close stops playback, cancels the position tracker and waits for it with a
// bounded timeout, then releases the backend. Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		select {
		case <-e.trackerDone:
		case <-time.After(shutdownTimeout):
			e.log.Warn().Msg("position tracker did not exit before timeout")
		}

		e.Stop()
		if err := e.backend.Close(); err != nil {
			e.log.Warn().Err(err).Msg("backend close failed")
		}
	})
}

// trackPosition is the background loop driving position updates and track-end
// detection. Errors inside a tick are non-fatal: they are logged, surfaced
// through onError at most once per tick, and the loop continues.
func (e *Engine) trackPosition(ctx context.Context, interval time.Duration) {
	defer close(e.trackerDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("position tracker tick failed")
			e.dispatcher.Error(fmt.Sprintf("position tracking error: %v", r))
		}
	}()

	// step holds the engine mutex behind a deferred unlock, so a panic in
	// there unwinds past the unlock before it reaches the recover above.
	ev, track, ok := e.step()
	if !ok {
		return
	}

	switch ev.Type {
	case api.EventTrackEnd:
		e.log.Info().Str("track", track).Msg("track ended")
		e.dispatcher.TrackEnd()
	case api.EventPositionUpdate:
		e.dispatcher.PositionUpdate(ev.Position, ev.Duration)
	}
}

// step performs one locked tracker advance and reports the event to publish.
func (e *Engine) step() (ev api.Event, track string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != api.StatusPlaying {
		return api.Event{}, "", false
	}

	if !e.backend.Busy() {
		// Backend stopped producing output on its own: the track ended.
		// The controller decides what plays next; the tracker holds no
		// playlist knowledge.
		track = e.session.Track
		e.session.Status = api.StatusIdle
		e.session.Position = 0
		e.session.Track = ""
		return api.Event{Type: api.EventTrackEnd}, track, true
	}

	e.session.Position++
	if e.session.Position > e.session.Duration {
		e.session.Position = e.session.Duration
	}
	return api.Event{
		Type:     api.EventPositionUpdate,
		Position: e.session.Position,
		Duration: e.session.Duration,
	}, "", true
}

// fail reports an operation failure: the typed error is returned to the
// caller and, independently, an onError event is raised. The dispatcher
// publish is non-blocking, so calling this under the engine mutex is safe.
func (e *Engine) fail(op, track string, err error) error {
	perr := playerrors.NewPlayerError(op, track, err)
	e.log.Warn().Err(perr).Msg("playback operation failed")
	e.dispatcher.Error(perr.Error())
	return perr
}
