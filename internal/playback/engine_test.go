package playback

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
	playerrors "github.com/pcranner/soundshelf/pkg/errors"
	"github.com/pcranner/soundshelf/pkg/events"
)

// fakeBackend stands in for the sound card so the state machine can be
// exercised deterministically.
type fakeBackend struct {
	mu        sync.Mutex
	loaded    string
	busy      bool
	paused    bool
	offset    float64
	volume    float64
	loadErr   error
	startErr  error
	busyPanic bool
	closed    bool
}

func (b *fakeBackend) Load(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return b.loadErr
	}
	b.loaded = path
	return nil
}

func (b *fakeBackend) Start(offset float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.busy = true
	b.paused = false
	b.offset = offset
	return nil
}

func (b *fakeBackend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
	return nil
}

func (b *fakeBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
	return nil
}

func (b *fakeBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = false
	b.paused = false
}

func (b *fakeBackend) SetVolume(level float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = level
}

func (b *fakeBackend) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busyPanic {
		panic("liveness probe failed")
	}
	return b.busy
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// finish simulates the backend draining its stream on its own.
func (b *fakeBackend) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = false
}

// capture records dispatched events for assertions.
type capture struct {
	mu        sync.Mutex
	positions []float64
	trackEnds int
	errors    []string
}

func (c *capture) OnPositionUpdate(position, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = append(c.positions, position)
}

func (c *capture) OnTrackEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackEnds++
}

func (c *capture) OnError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, message)
}

func (c *capture) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

func (c *capture) trackEndCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackEnds
}

func (c *capture) positionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.positions)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// newTestEngine wires a fake backend to an engine. State-machine tests pass
// a huge interval so no tick can interleave with their assertions; tracker
// tests pass a short one.
func newTestEngine(t *testing.T, interval time.Duration) (*Engine, *fakeBackend, *capture) {
	t.Helper()
	backend := &fakeBackend{}
	dispatcher := events.NewDispatcher(zerolog.Nop())
	rec := &capture{}
	dispatcher.SetHandler(rec)

	e := newEngine(backend, dispatcher, zerolog.Nop(), interval)
	t.Cleanup(func() {
		e.Close()
		dispatcher.Close()
	})
	return e, backend, rec
}

const (
	noTick   = time.Hour
	fastTick = 10 * time.Millisecond
)

// writeAudioFixture creates a file with a supported extension. 32 KiB makes
// the size-estimate duration provider yield exactly 2 seconds.
func writeAudioFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, 32*1024), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadTransitions(t *testing.T) {
	e, backend, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	session := e.Session()
	if session.Status != api.StatusLoaded {
		t.Errorf("status = %v, want loaded", session.Status)
	}
	if session.Position != 0 {
		t.Errorf("position = %f, want 0", session.Position)
	}
	if session.Duration != 2.0 {
		t.Errorf("duration = %f, want 2.0 from size estimate", session.Duration)
	}
	if backend.loaded != path {
		t.Errorf("backend loaded %q, want %q", backend.loaded, path)
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		prep    func(b *fakeBackend)
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "ghost.mp3") },
			wantErr: playerrors.ErrNotFound,
		},
		{
			name: "unsupported extension",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "notes.txt")
				os.WriteFile(p, []byte("text"), 0644)
				return p
			},
			wantErr: playerrors.ErrUnsupportedFormat,
		},
		{
			name:    "backend rejects",
			path:    func(t *testing.T) string { return writeAudioFixture(t, "bad.mp3") },
			prep:    func(b *fakeBackend) { b.loadErr = errors.New("decode failed") },
			wantErr: playerrors.ErrBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, backend, rec := newTestEngine(t, noTick)
			if tt.prep != nil {
				tt.prep(backend)
			}

			err := e.Load(tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load error = %v, want %v", err, tt.wantErr)
			}
			if status := e.Session().Status; status != api.StatusIdle {
				t.Errorf("status after failed load = %v, want idle", status)
			}
			waitFor(t, func() bool { return rec.errorCount() == 1 })
		})
	}
}

func TestPlayWithoutLoad(t *testing.T) {
	e, _, rec := newTestEngine(t, noTick)

	err := e.Play()
	if !errors.Is(err, playerrors.ErrInvalidState) {
		t.Errorf("Play error = %v, want ErrInvalidState", err)
	}
	if status := e.Session().Status; status != api.StatusIdle {
		t.Errorf("status = %v, want idle", status)
	}
	waitFor(t, func() bool { return rec.errorCount() == 1 })
}

func TestPlayPauseResume(t *testing.T) {
	e, backend, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if status := e.Session().Status; status != api.StatusPlaying {
		t.Errorf("status = %v, want playing", status)
	}
	if backend.volume != e.Session().Volume {
		t.Errorf("backend volume = %f, want %f", backend.volume, e.Session().Volume)
	}

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if status := e.Session().Status; status != api.StatusPaused {
		t.Errorf("status = %v, want paused", status)
	}
	if !backend.paused {
		t.Error("backend not paused")
	}

	// Resume in place.
	if err := e.Play(); err != nil {
		t.Fatalf("Play from paused: %v", err)
	}
	if backend.paused {
		t.Error("backend still paused after resume")
	}
}

func TestPauseInvalidOutsidePlaying(t *testing.T) {
	e, _, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Pause(); !errors.Is(err, playerrors.ErrInvalidState) {
		t.Errorf("Pause while idle = %v, want ErrInvalidState", err)
	}

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Pause(); !errors.Is(err, playerrors.ErrInvalidState) {
		t.Errorf("Pause while loaded = %v, want ErrInvalidState", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	e.Stop() // stop with nothing loaded is safe

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	e.Stop()
	e.Stop()

	session := e.Session()
	if session.Status != api.StatusIdle || session.Position != 0 {
		t.Errorf("after stop: status=%v position=%f, want idle/0", session.Status, session.Position)
	}
}

func TestVolumeAndSpeedClamping(t *testing.T) {
	e, _, _ := newTestEngine(t, noTick)

	tests := []struct {
		set  float64
		want float64
	}{
		{-0.5, 0}, {0, 0}, {0.3, 0.3}, {1.0, 1.0}, {1.7, 1.0},
	}
	for _, tt := range tests {
		e.SetVolume(tt.set)
		if got := e.Session().Volume; got != tt.want {
			t.Errorf("SetVolume(%f): volume = %f, want %f", tt.set, got, tt.want)
		}
	}

	speeds := []struct {
		set  float64
		want float64
	}{
		{0.1, 0.5}, {0.5, 0.5}, {1.25, 1.25}, {2.0, 2.0}, {3.0, 2.0},
	}
	for _, tt := range speeds {
		e.SetSpeed(tt.set)
		if got := e.Session().Speed; got != tt.want {
			t.Errorf("SetSpeed(%f): speed = %f, want %f", tt.set, got, tt.want)
		}
	}
}

func TestSeek(t *testing.T) {
	e, backend, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Seek(1); !errors.Is(err, playerrors.ErrInvalidState) {
		t.Errorf("Seek while idle = %v, want ErrInvalidState", err)
	}

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Soft seek: bookkeeping only, clamped to duration.
	if err := e.Seek(99); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := e.Session().Position; got != 2.0 {
		t.Errorf("position after over-long seek = %f, want clamped to 2.0", got)
	}

	// Seek to zero restarts the backend for real.
	if err := e.Seek(0); err != nil {
		t.Fatalf("Seek(0): %v", err)
	}
	session := e.Session()
	if session.Position != 0 || session.Status != api.StatusPlaying {
		t.Errorf("after Seek(0): position=%f status=%v", session.Position, session.Status)
	}
	if backend.offset != 0 {
		t.Errorf("backend restarted at offset %f, want 0", backend.offset)
	}
}

func TestSeekZeroWhilePausedResumesPlaying(t *testing.T) {
	e, backend, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Rewinding a paused session restarts from the top and plays.
	if err := e.Seek(0); err != nil {
		t.Fatalf("Seek(0): %v", err)
	}

	session := e.Session()
	if session.Status != api.StatusPlaying {
		t.Errorf("status after pause + seek(0) = %v, want playing", session.Status)
	}
	if session.Position != 0 {
		t.Errorf("position = %f, want 0", session.Position)
	}
	if backend.offset != 0 || !backend.busy {
		t.Errorf("backend offset=%f busy=%v, want restarted at 0", backend.offset, backend.busy)
	}
	if backend.paused {
		t.Error("backend still paused after rewind")
	}
}

func TestTickPanicReleasesEngineMutex(t *testing.T) {
	e, backend, rec := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	backend.mu.Lock()
	backend.busyPanic = true
	backend.mu.Unlock()

	e.tick()
	waitFor(t, func() bool { return rec.errorCount() == 1 })

	// The engine must stay usable after a contained tick panic.
	done := make(chan api.Session, 1)
	go func() { done <- e.Session() }()
	select {
	case session := <-done:
		if session.Status != api.StatusPlaying {
			t.Errorf("status after failed tick = %v, want playing", session.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("Session blocked after a panicking tick")
	}

	backend.mu.Lock()
	backend.busyPanic = false
	backend.mu.Unlock()

	e.tick()
	waitFor(t, func() bool { return rec.positionCount() >= 1 })
}

func TestPositionStaysInRange(t *testing.T) {
	e, _, _ := newTestEngine(t, noTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	steps := []func(){
		func() { e.Play() },
		func() { e.Pause() },
		func() { e.Play() },
		func() { e.Seek(0) },
		func() { e.Stop() },
	}
	for _, step := range steps {
		step()
		s := e.Session()
		if s.Position < 0 || s.Position > 2.0 {
			t.Fatalf("position %f outside [0, 2.0]", s.Position)
		}
	}
}

func TestTrackerEmitsPositionUpdates(t *testing.T) {
	e, _, rec := newTestEngine(t, fastTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	waitFor(t, func() bool { return rec.positionCount() >= 2 })

	// Positions advance one second per tick and never exceed the duration.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, p := range rec.positions {
		if p < 0 || p > 2.0 {
			t.Errorf("position update %f outside [0, 2.0]", p)
		}
	}
}

func TestTrackerDetectsTrackEnd(t *testing.T) {
	e, backend, rec := newTestEngine(t, fastTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	backend.finish()
	waitFor(t, func() bool { return rec.trackEndCount() == 1 })

	if status := e.Session().Status; status != api.StatusIdle {
		t.Errorf("status after track end = %v, want idle", status)
	}

	// The tracker makes no follow-up decision: exactly one end event.
	time.Sleep(50 * time.Millisecond)
	if n := rec.trackEndCount(); n != 1 {
		t.Errorf("track end events = %d, want 1", n)
	}
}

func TestTrackerIdleWhenNotPlaying(t *testing.T) {
	e, _, rec := newTestEngine(t, fastTick)
	path := writeAudioFixture(t, "song.mp3")

	if err := e.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if n := rec.positionCount(); n != 0 {
		t.Errorf("tracker emitted %d updates while loaded but not playing", n)
	}
}

func TestCloseIdempotentAndReleasesBackend(t *testing.T) {
	backend := &fakeBackend{}
	dispatcher := events.NewDispatcher(zerolog.Nop())
	defer dispatcher.Close()

	e := newEngine(backend, dispatcher, zerolog.Nop(), 10*time.Millisecond)
	e.Close()
	e.Close()

	if !backend.closed {
		t.Error("backend not closed")
	}
}
