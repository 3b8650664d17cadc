package media

import "os"

// Rough bitrate assumption for the size-based duration estimate.
const (
	estimateBitsPerSecond = 128 * 1024
	maxEstimatedSeconds   = 3600.0
	defaultSeconds        = 180.0
)

// DurationProvider attempts to determine a track's duration in seconds.
// Providers are ranked; the first success wins.
type DurationProvider interface {
	Name() string
	Duration(path string) (float64, error)
}

var durationProviders = []DurationProvider{
	decodeProbe{},
	sizeEstimate{},
}

// ProbeDuration walks the ranked provider list and returns the first
// successful result. When every provider fails it falls back to a fixed
// default, so the returned duration is always usable.
func ProbeDuration(path string) float64 {
	for _, p := range durationProviders {
		if d, err := p.Duration(path); err == nil && d > 0 {
			return d
		}
	}
	return defaultSeconds
}

// decodeProbe decodes the stream header and computes duration from sample
// count and rate. Only formats beep can decode are covered.
type decodeProbe struct{}

func (decodeProbe) Name() string { return "decode" }

func (decodeProbe) Duration(path string) (float64, error) {
	streamer, format, err := Decode(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	if format.SampleRate <= 0 {
		return 0, os.ErrInvalid
	}
	return float64(streamer.Len()) / float64(format.SampleRate), nil
}

// sizeEstimate assumes a nominal 128 kbit/s stream and caps the result at an
// hour. It is deliberately rough; it only runs when decoding fails.
type sizeEstimate struct{}

func (sizeEstimate) Name() string { return "size" }

func (sizeEstimate) Duration(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	seconds := float64(info.Size()) / (estimateBitsPerSecond / 8)
	if seconds > maxEstimatedSeconds {
		seconds = maxEstimatedSeconds
	}
	return seconds, nil
}
