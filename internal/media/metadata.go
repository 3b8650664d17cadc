package media

import (
	"os"

	"github.com/dhowden/tag"
)

// Info holds display metadata for a track. Every field is best-effort; the
// filename-derived title is the final fallback.
type Info struct {
	Title  string
	Artist string
	Album  string
}

// ReadInfo extracts embedded tags from an audio file. Files without readable
// tags yield filename-derived info rather than an error.
func ReadInfo(path string) Info {
	info := Info{
		Title:  DisplayName(path),
		Artist: "Unknown",
		Album:  "Unknown",
	}

	f, err := os.Open(path)
	if err != nil {
		return info
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return info
	}

	if t := meta.Title(); t != "" {
		info.Title = t
	}
	if a := meta.Artist(); a != "" {
		info.Artist = a
	}
	if a := meta.Album(); a != "" {
		info.Album = a
	}
	return info
}
