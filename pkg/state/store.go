package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/knob"
	"github.com/odvcencio/bcp/pkg/paths"
	"github.com/odvcencio/bcp/pkg/plan"
)

// FileName is the state file's name inside the data directory.
const FileName = paths.StateFile

// Store loads and checkpoints a State at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the state file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted state. When the file does not exist it returns a
// fresh state planned from catalog, with found == false; that is the only
// case where a missing file is not an error.
func (s *Store) Load(catalog knob.Catalog, meta Meta) (st *State, found bool, err error) {
	st, err = s.Read()
	if err == nil {
		return st, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return New(plan.Build(catalog), meta), false, nil
	}
	return nil, false, err
}

// Read decodes the persisted state, failing when it is missing. The error
// wraps fs.ErrNotExist in that case.
func (s *Store) Read() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, bcperrors.Wrap(err, bcperrors.ErrCodeStateRead, "load state").
			WithContext("path", s.path)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, bcperrors.Wrap(err, bcperrors.ErrCodeStateCorrupt, "decode state").
			WithContext("path", s.path).
			WithUserMessage("the sweep state file is damaged and cannot be resumed").
			WithRemediation("move " + s.path + " aside to start a new sweep")
	}
	if st.Results == nil {
		st.Results = []Result{}
	}
	if err := st.Check(); err != nil {
		return nil, fmt.Errorf("loaded state %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes st to a temporary file next to the target, syncs it and renames
// it over the target. Readers see either the old or the new snapshot.
func (s *Store) Save(st *State) error {
	if err := st.Check(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return bcperrors.Wrap(err, bcperrors.ErrCodeStateWrite, "encode state")
	}
	data = append(data, '\n')

	if err := writeAtomic(s.path, data); err != nil {
		return bcperrors.Wrap(err, bcperrors.ErrCodeStateWrite, "save state").
			WithContext("path", s.path)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return err
	}

	// Persist the rename itself. Not every platform can sync a directory.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
