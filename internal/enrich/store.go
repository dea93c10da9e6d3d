package enrich

import (
	"encoding/gob"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/AdguardTeam/WebStats/internal/aghrenameio"
	"github.com/AdguardTeam/golibs/errors"
)

// DefaultPermFile is the permission mode of the cache files.
const DefaultPermFile fs.FileMode = 0o644

// Store persists cache snapshots.
type Store interface {
	// Load returns the stored snapshot.  If nothing has been stored yet, s is
	// empty and err is nil.
	Load() (s *Snapshot, err error)

	// Save replaces the stored snapshot with s.
	Save(s *Snapshot) (err error)
}

// FileStore keeps a gob-encoded snapshot in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a store keeping the snapshot in the file at path.
func NewFileStore(path string) (s *FileStore) {
	return &FileStore{
		path: path,
	}
}

// type check
var _ Store = (*FileStore)(nil)

// Load implements the [Store] interface for *FileStore.
func (s *FileStore) Load() (snap *Snapshot, err error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{Entries: map[string]*Entry{}}, nil
	} else if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	snap = &Snapshot{}
	err = gob.NewDecoder(f).Decode(snap)
	if err != nil {
		return nil, fmt.Errorf("decoding cache file %q: %w", s.path, err)
	}

	if snap.Entries == nil {
		snap.Entries = map[string]*Entry{}
	}

	return snap, nil
}

// Save implements the [Store] interface for *FileStore.  The file is replaced
// atomically where the platform supports it.
func (s *FileStore) Save(snap *Snapshot) (err error) {
	err = aghrenameio.WriteFile(s.path, DefaultPermFile, func(w io.Writer) (encErr error) {
		return gob.NewEncoder(w).Encode(snap)
	})
	if err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}
