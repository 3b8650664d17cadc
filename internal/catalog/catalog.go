package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
	"github.com/pcranner/soundshelf/internal/media"
	storeerrors "github.com/pcranner/soundshelf/pkg/errors"
)

// Catalog is the in-memory view over all collection directories under a
// single root. Each collection is a subdirectory holding audio files plus one
// descriptor; the catalog reconciles descriptor state against the file system
// and exposes ordered track listings.
type Catalog struct {
	root  string
	store *DescriptorStore
	log   zerolog.Logger
	mu    sync.Mutex
}

// New creates a catalog rooted at dir, creating the directory if needed and
// lazily materializing a descriptor for every collection that lacks one.
func New(root string, log zerolog.Logger) (*Catalog, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, storeerrors.NewStoreError("create catalog root", "", err)
	}

	c := &Catalog{
		root:  root,
		store: NewDescriptorStore(log),
		log:   log,
	}

	if _, err := c.ListCollections(); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the catalog's playlists directory.
func (c *Catalog) Root() string {
	return c.root
}

// ListCollections enumerates collection directories sorted by id,
// materializing a descriptor for any directory lacking one.
func (c *Catalog) ListCollections() ([]api.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, storeerrors.NewStoreError("list collections", "", err)
	}

	collections := make([]api.Collection, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		desc, err := c.ensureDescriptor(entry.Name())
		if err != nil {
			c.log.Warn().Str("collection", entry.Name()).Err(err).Msg("skipping collection")
			continue
		}
		collections = append(collections, api.Collection{ID: entry.Name(), Descriptor: desc})
	}

	sort.Slice(collections, func(i, j int) bool { return collections[i].ID < collections[j].ID })
	return collections, nil
}

// Get returns one collection's descriptor view.
func (c *Catalog) Get(id string) (api.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return api.Collection{}, err
	}
	return api.Collection{ID: id, Descriptor: desc}, nil
}

// Tracks returns a collection's tracks sorted ascending by order, ties broken
// by path. Descriptor entries whose file no longer exists are excluded from
// the result without mutating the descriptor; only Refresh prunes them.
func (c *Catalog) Tracks(id string) ([]*api.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return nil, err
	}

	dir := c.dir(id)
	tracks := make([]*api.Track, 0, len(desc.Tracks))
	for rel, track := range desc.Tracks {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			continue
		}
		tracks = append(tracks, track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Order != tracks[j].Order {
			return tracks[i].Order < tracks[j].Order
		}
		return tracks[i].Path < tracks[j].Path
	})
	return tracks, nil
}

// TrackPath resolves a descriptor-relative path to an absolute file path.
func (c *Catalog) TrackPath(id, rel string) string {
	abs, err := filepath.Abs(filepath.Join(c.dir(id), filepath.FromSlash(rel)))
	if err != nil {
		return filepath.Join(c.dir(id), filepath.FromSlash(rel))
	}
	return abs
}

// Refresh reconciles a collection's descriptor against the files on disk:
// on-disk files missing from the descriptor are added at the next free order,
// entries whose file is gone are removed, and the result is written
// atomically. Running twice with no filesystem change is a no-op mutation.
func (c *Catalog) Refresh(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return err
	}

	dir := c.dir(id)
	onDisk, err := scanAudioFiles(dir)
	if err != nil {
		return storeerrors.NewStoreError("refresh", id, err)
	}

	nextOrder := 0
	for _, track := range desc.Tracks {
		if track.Order > nextOrder {
			nextOrder = track.Order
		}
	}

	now := time.Now()
	changed := false
	present := make(map[string]bool, len(onDisk))
	for _, rel := range onDisk {
		present[rel] = true
		if _, ok := desc.Tracks[rel]; ok {
			continue
		}
		nextOrder++
		desc.Tracks[rel] = &api.Track{
			Path:        rel,
			DisplayName: media.DisplayName(rel),
			Order:       nextOrder,
			Added:       now,
		}
		changed = true
		c.log.Info().Str("collection", id).Str("track", rel).Msg("descriptor entry added")
	}

	for rel := range desc.Tracks {
		if !present[rel] {
			delete(desc.Tracks, rel)
			changed = true
			c.log.Info().Str("collection", id).Str("track", rel).Msg("stale descriptor entry removed")
		}
	}

	// A refresh that finds nothing to reconcile leaves the descriptor
	// untouched, so back-to-back refreshes are byte-identical on disk.
	if !changed {
		return nil
	}

	desc.Modified = &now
	return c.store.Save(dir, desc)
}

// Reorder assigns order = index+1 to each listed path. Paths not mentioned
// keep their previous order value, so callers should normally supply the
// complete track set.
func (c *Catalog) Reorder(id string, paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, rel := range paths {
		track, ok := desc.Tracks[rel]
		if !ok {
			continue
		}
		track.Order = i + 1
		track.Modified = &now
	}

	desc.Modified = &now
	return c.store.Save(c.dir(id), desc)
}

// CreateCollection creates a new collection directory with an empty
// descriptor. It fails if the directory already exists.
func (c *Catalog) CreateCollection(id, displayName, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.dir(id)
	if _, err := os.Stat(dir); err == nil {
		return storeerrors.NewStoreError("create", id, storeerrors.ErrCollectionExists)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		return storeerrors.NewStoreError("create", id, err)
	}

	if displayName == "" {
		displayName = id
	}
	desc := &api.Descriptor{
		DisplayName: displayName,
		Description: description,
		Created:     time.Now(),
		Tracks:      make(map[string]*api.Track),
	}
	return c.store.Save(dir, desc)
}

// RemoveCollection deletes a collection directory, its descriptor included.
// This is the only operation that ever deletes a descriptor.
func (c *Catalog) RemoveCollection(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.dir(id)
	if _, err := os.Stat(dir); err != nil {
		return storeerrors.NewStoreError("remove", id, storeerrors.ErrCollectionNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return storeerrors.NewStoreError("remove", id, err)
	}
	return nil
}

// UpdateMetadata merges recognized fields (display_name, description) into a
// collection's descriptor and stamps modified. Unrecognized fields are
// ignored.
func (c *Catalog) UpdateMetadata(id string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return err
	}

	for key, value := range fields {
		switch key {
		case "display_name":
			desc.DisplayName = value
		case "description":
			desc.Description = value
		}
	}

	now := time.Now()
	desc.Modified = &now
	return c.store.Save(c.dir(id), desc)
}

// RenameTrack sets a track's display name, creating the descriptor entry at
// the next free order if the track is not yet recorded.
func (c *Catalog) RenameTrack(id, rel, displayName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return err
	}

	now := time.Now()
	track, ok := desc.Tracks[rel]
	if !ok {
		nextOrder := 0
		for _, t := range desc.Tracks {
			if t.Order > nextOrder {
				nextOrder = t.Order
			}
		}
		track = &api.Track{
			Path:        rel,
			DisplayName: media.DisplayName(rel),
			Order:       nextOrder + 1,
			Added:       now,
		}
		desc.Tracks[rel] = track
	}

	track.DisplayName = displayName
	track.Modified = &now
	desc.Modified = &now
	return c.store.Save(c.dir(id), desc)
}

// Stats summarizes a collection: track count, total size, distinct formats.
func (c *Catalog) Stats(id string) (api.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, err := c.ensureDescriptor(id)
	if err != nil {
		return api.Stats{}, err
	}

	stats := api.Stats{
		Created:  desc.Created,
		Modified: desc.Modified,
	}

	dir := c.dir(id)
	formats := make(map[string]bool)
	for rel := range desc.Tracks {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		stats.TrackCount++
		stats.TotalBytes += info.Size()
		formats[strings.ToLower(filepath.Ext(rel))] = true
	}

	for ext := range formats {
		stats.Formats = append(stats.Formats, ext)
	}
	sort.Strings(stats.Formats)
	return stats, nil
}

// dir returns the directory for a collection id.
func (c *Catalog) dir(id string) string {
	return filepath.Join(c.root, id)
}

// ensureDescriptor loads a collection's descriptor, materializing one from
// the files on disk if it is missing (or was corrupt and moved aside).
// Callers must hold the catalog mutex.
func (c *Catalog) ensureDescriptor(id string) (*api.Descriptor, error) {
	dir := c.dir(id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, storeerrors.NewStoreError("open", id, storeerrors.ErrCollectionNotFound)
	}

	desc, err := c.store.Load(dir)
	if err != nil {
		return nil, err
	}
	if desc != nil {
		return desc, nil
	}

	// No descriptor: build one from the audio files found on disk, ordered
	// by case-insensitive filename.
	files, err := scanAudioFiles(dir)
	if err != nil {
		return nil, storeerrors.NewStoreError("scan", id, err)
	}

	now := time.Now()
	desc = &api.Descriptor{
		DisplayName: id,
		Description: fmt.Sprintf("Auto-generated playlist for %s", id),
		Created:     now,
		Tracks:      make(map[string]*api.Track, len(files)),
	}
	for i, rel := range files {
		desc.Tracks[rel] = &api.Track{
			Path:        rel,
			DisplayName: media.DisplayName(rel),
			Order:       i + 1,
			Added:       now,
		}
	}

	if err := c.store.Save(dir, desc); err != nil {
		return nil, err
	}
	c.log.Info().Str("collection", id).Int("tracks", len(files)).Msg("descriptor materialized")
	return desc, nil
}

// scanAudioFiles walks a collection directory recursively and returns
// supported audio files as slash-separated relative paths, sorted by
// lowercase filename.
func scanAudioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !media.IsSupported(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
	})
	return files, nil
}
