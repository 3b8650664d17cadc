package playback

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/pcranner/soundshelf/api"
)

// RepeatMode controls what the controller does when a track ends.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// Queue is the controller-side track sequence. The engine and tracker know
// nothing about it: on a track-end event the controller consults the queue to
// decide what to load next.
type Queue struct {
	mu         sync.RWMutex
	tracks     []*api.Track
	original   []*api.Track // order before shuffle
	index      int
	repeatMode RepeatMode
	shuffled   bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Set replaces the queue contents and resets the position.
func (q *Queue) Set(tracks []*api.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = make([]*api.Track, len(tracks))
	copy(q.tracks, tracks)
	q.original = nil
	q.index = 0
	q.shuffled = false
}

// Current returns the track at the queue position, or nil for an empty queue.
func (q *Queue) Current() *api.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.tracks) == 0 || q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	return q.tracks[q.index]
}

// Next advances per the repeat mode and returns the new current track, or nil
// at the end of the queue.
func (q *Queue) Next() *api.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return nil
	}

	switch q.repeatMode {
	case RepeatOne:
		return q.tracks[q.index]
	case RepeatAll:
		q.index = (q.index + 1) % len(q.tracks)
	default:
		if q.index >= len(q.tracks)-1 {
			return nil
		}
		q.index++
	}
	return q.tracks[q.index]
}

// Previous steps back per the repeat mode and returns the new current track.
func (q *Queue) Previous() *api.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return nil
	}

	switch q.repeatMode {
	case RepeatOne:
		return q.tracks[q.index]
	case RepeatAll:
		q.index--
		if q.index < 0 {
			q.index = len(q.tracks) - 1
		}
	default:
		if q.index > 0 {
			q.index--
		}
	}
	return q.tracks[q.index]
}

// JumpTo moves the queue position to a specific index.
func (q *Queue) JumpTo(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.tracks) {
		return errors.New("index out of bounds")
	}
	q.index = index
	return nil
}

// Shuffle randomizes the queue (Fisher-Yates), keeping the current track at
// the front.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) <= 1 {
		q.shuffled = true
		return
	}

	if q.original == nil {
		q.original = make([]*api.Track, len(q.tracks))
		copy(q.original, q.tracks)
	}

	current := q.tracks[q.index]
	for i := len(q.tracks) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	}

	for i, track := range q.tracks {
		if track.Path == current.Path {
			q.tracks[0], q.tracks[i] = q.tracks[i], q.tracks[0]
			break
		}
	}
	q.index = 0
	q.shuffled = true
}

// Unshuffle restores the pre-shuffle order, keeping the current track
// current.
func (q *Queue) Unshuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.original == nil {
		q.shuffled = false
		return
	}

	current := q.tracks[q.index]
	q.tracks = q.original
	q.original = nil
	q.shuffled = false

	for i, track := range q.tracks {
		if track.Path == current.Path {
			q.index = i
			break
		}
	}
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = mode
}

// GetRepeatMode returns the current repeat mode.
func (q *Queue) GetRepeatMode() RepeatMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeatMode
}

// IsShuffled returns whether the queue is shuffled.
func (q *Queue) IsShuffled() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.shuffled
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Index returns the current queue position.
func (q *Queue) Index() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index
}
