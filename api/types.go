package api

import "time"

// Track is one entry in a collection descriptor. Path is relative to the
// collection directory and doubles as the descriptor map key, so it is not
// serialized inside the entry and is rebuilt on load.
type Track struct {
	Path        string     `json:"-"`
	DisplayName string     `json:"display_name"`
	Order       int        `json:"order"`
	Added       time.Time  `json:"added"`
	Modified    *time.Time `json:"modified,omitempty"`
}

// Descriptor is the persisted JSON record for one collection directory.
type Descriptor struct {
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	Created     time.Time         `json:"created"`
	Modified    *time.Time        `json:"modified,omitempty"`
	Tracks      map[string]*Track `json:"tracks"`
}

// Collection pairs a descriptor with its directory name.
type Collection struct {
	ID string
	*Descriptor
}

// Stats summarizes a collection for display purposes.
type Stats struct {
	TrackCount int
	TotalBytes int64
	Formats    []string
	Created    time.Time
	Modified   *time.Time
}

// PlaybackStatus is the engine's position in its state machine.
type PlaybackStatus int

const (
	StatusIdle PlaybackStatus = iota
	StatusLoaded
	StatusPlaying
	StatusPaused
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoaded:
		return "loaded"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the engine's playback state. Position and
// Duration are in seconds.
type Session struct {
	Track    string
	Status   PlaybackStatus
	Position float64
	Duration float64
	Volume   float64
	Speed    float64
}

// EventType tags a playback event.
type EventType int

const (
	EventPositionUpdate EventType = iota
	EventTrackEnd
	EventError
)

// Event is the tagged union delivered to the registered controller.
// Position and Duration are set for EventPositionUpdate, Message for
// EventError.
type Event struct {
	Type     EventType
	Position float64
	Duration float64
	Message  string
}

// ExportFormat selects a playlist export syntax.
type ExportFormat string

const (
	FormatM3U ExportFormat = "m3u"
	FormatPLS ExportFormat = "pls"
)
