package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
	storeerrors "github.com/pcranner/soundshelf/pkg/errors"
)

// DescriptorFilename is the fixed name of the per-collection metadata file.
const DescriptorFilename = "playlist.json"

// DescriptorStore reads and writes one descriptor file per collection
// directory. Writes are atomic: the descriptor is written to a temporary file
// in the same directory and renamed over the original, so a crash mid-write
// cannot leave a truncated descriptor behind.
type DescriptorStore struct {
	log zerolog.Logger
}

// NewDescriptorStore creates a descriptor store.
func NewDescriptorStore(log zerolog.Logger) *DescriptorStore {
	return &DescriptorStore{log: log}
}

// Load reads the descriptor for a collection directory. A missing descriptor
// returns (nil, nil) so the caller can regenerate lazily. A corrupt
// descriptor is renamed aside with a .backup suffix and also reported as
// absent; corruption never propagates as a failure.
func (s *DescriptorStore) Load(dir string) (*api.Descriptor, error) {
	path := filepath.Join(dir, DescriptorFilename)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerrors.NewStoreError("load descriptor", filepath.Base(dir), err)
	}

	var desc api.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		s.log.Warn().Str("path", path).
			Err(fmt.Errorf("%w: %v", storeerrors.ErrDescriptorCorrupt, err)).
			Msg("corrupt descriptor, moving aside")
		s.backup(path)
		return nil, nil
	}

	if desc.Tracks == nil {
		desc.Tracks = make(map[string]*api.Track)
	}
	// The map key is authoritative for the relative path.
	for rel, track := range desc.Tracks {
		track.Path = rel
	}
	return &desc, nil
}

// Save persists a descriptor atomically.
func (s *DescriptorStore) Save(dir string, desc *api.Descriptor) error {
	id := filepath.Base(dir)

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return storeerrors.NewStoreError("marshal descriptor", id, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, DescriptorFilename+".tmp-*")
	if err != nil {
		return storeerrors.NewStoreError("save descriptor", id,
			fmt.Errorf("%w: %v", storeerrors.ErrPersistence, err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storeerrors.NewStoreError("save descriptor", id,
			fmt.Errorf("%w: %v", storeerrors.ErrPersistence, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storeerrors.NewStoreError("save descriptor", id,
			fmt.Errorf("%w: %v", storeerrors.ErrPersistence, err))
	}

	if err := os.Rename(tmpName, filepath.Join(dir, DescriptorFilename)); err != nil {
		os.Remove(tmpName)
		return storeerrors.NewStoreError("save descriptor", id,
			fmt.Errorf("%w: %v", storeerrors.ErrPersistence, err))
	}
	return nil
}

// backup moves a corrupt descriptor aside, never overwriting an earlier
// backup.
func (s *DescriptorStore) backup(path string) {
	target := path + ".backup"
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = fmt.Sprintf("%s.backup.%d", path, i)
	}

	if err := os.Rename(path, target); err != nil {
		s.log.Error().Str("path", path).Err(err).Msg("failed to back up corrupt descriptor")
	}
}
