package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pcranner/soundshelf/api"
	storeerrors "github.com/pcranner/soundshelf/pkg/errors"
)

// Export writes a collection as a literal m3u or pls playlist file inside the
// collection directory and returns the written file's path. It fails if the
// collection has zero tracks or the format is unrecognized.
func (c *Catalog) Export(id string, format api.ExportFormat) (string, error) {
	if format != api.FormatM3U && format != api.FormatPLS {
		return "", storeerrors.NewStoreError("export", id, storeerrors.ErrUnknownFormat)
	}

	tracks, err := c.Tracks(id)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", storeerrors.NewStoreError("export", id, storeerrors.ErrEmptyCollection)
	}

	var body string
	switch format {
	case api.FormatM3U:
		body = c.renderM3U(id, tracks)
	case api.FormatPLS:
		body = c.renderPLS(id, tracks)
	}

	path := filepath.Join(c.dir(id), fmt.Sprintf("%s.%s", id, format))
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", storeerrors.NewStoreError("export", id,
			fmt.Errorf("%w: %v", storeerrors.ErrPersistence, err))
	}

	c.log.Info().Str("collection", id).Str("format", string(format)).Str("path", path).Msg("playlist exported")
	return path, nil
}

func (c *Catalog) renderM3U(id string, tracks []*api.Track) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, track := range tracks {
		fmt.Fprintf(&b, "#EXTINF:-1,%s\n", track.DisplayName)
		fmt.Fprintf(&b, "%s\n", c.TrackPath(id, track.Path))
	}
	return b.String()
}

func (c *Catalog) renderPLS(id string, tracks []*api.Track) string {
	var b strings.Builder
	b.WriteString("[playlist]\n")
	for i, track := range tracks {
		fmt.Fprintf(&b, "File%d=%s\n", i+1, c.TrackPath(id, track.Path))
		fmt.Fprintf(&b, "Title%d=%s\n", i+1, track.DisplayName)
		fmt.Fprintf(&b, "Length%d=-1\n", i+1)
	}
	fmt.Fprintf(&b, "NumberOfEntries=%d\n", len(tracks))
	b.WriteString("Version=2\n")
	return b.String()
}
