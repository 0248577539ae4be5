package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/symbols"
)

const (
	Dir                 = ".codescape"
	StateFile           = "state.json"
	CurrentStateVersion = "2"
)

var ErrUnsupportedVersion = errors.New("unsupported state version")

// FileState tracks the state of a single file
type FileState struct {
	Hash      string               `json:"hash"`
	Annotated bool                 `json:"annotated"`
	Symbols   []symbols.CodeSymbol `json:"symbols,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// State is the persisted snapshot of the last ingested codebase.
type State struct {
	Version   string               `json:"version"`
	Root      string               `json:"root,omitempty"`
	Language  string               `json:"language,omitempty"`
	Suffixes  []string             `json:"suffixes,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
	Files     map[string]FileState `json:"files"`
}

// NewState creates a new empty state
func NewState() *State {
	return &State{
		Version: CurrentStateVersion,
		Files:   make(map[string]FileState),
	}
}

// Path returns the snapshot location for a codebase root.
func Path(root string) string {
	return filepath.Join(root, Dir, StateFile)
}

// FromFolder snapshots an ingested folder, hashing every file.
func FromFolder(loc codebase.Location, folder *codebase.Folder) (*State, error) {
	s := NewState()
	s.Root = loc.Root()
	s.Language = loc.Language()
	s.Suffixes = loc.Suffixes()

	now := time.Now()
	for _, file := range folder.AllFiles() {
		hash, err := fileutil.HashFile(filepath.Join(loc.Root(), filepath.FromSlash(file.Path)))
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", file.Path, err)
		}
		s.Files[file.Path] = FileState{
			Hash:      hash,
			Annotated: file.Symbols != nil,
			Symbols:   file.Symbols,
			UpdatedAt: now,
		}
	}
	return s, nil
}

// Load reads the snapshot for root. A missing snapshot yields an empty state.
func Load(root string) (*State, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Path(root), err)
	}

	if err := migrateState(&state); err != nil {
		return nil, err
	}

	return &state, nil
}

// Save writes the snapshot for root, creating the state directory.
func (s *State) Save(root string) error {
	if s.Version == "" {
		s.Version = CurrentStateVersion
	}
	if s.Files == nil {
		s.Files = make(map[string]FileState)
	}

	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		return err
	}
	return fileutil.WriteIfChanged(Path(root), append(data, '\n'))
}

// GetFileHash returns the stored hash for a file
func (s *State) GetFileHash(file string) (string, bool) {
	fs, ok := s.Files[file]
	if !ok {
		return "", false
	}
	return fs.Hash, true
}

// HasChanged returns true if the file hash differs from stored
func (s *State) HasChanged(file, currentHash string) bool {
	storedHash, ok := s.GetFileHash(file)
	if !ok {
		return true // New file
	}
	return storedHash != currentHash
}

// ChangedFiles returns files that have changed based on provided hashes
func (s *State) ChangedFiles(currentHashes map[string]string) []string {
	changed := make([]string, 0)
	for file, hash := range currentHashes {
		if s.HasChanged(file, hash) {
			changed = append(changed, file)
		}
	}
	sort.Strings(changed)
	return changed
}

// DeletedFiles returns files that no longer exist
func (s *State) DeletedFiles(currentFiles map[string]bool) []string {
	deleted := make([]string, 0)
	for file := range s.Files {
		if !currentFiles[file] {
			deleted = append(deleted, file)
		}
	}
	sort.Strings(deleted)
	return deleted
}

// SymbolCount returns the number of stored symbols, children included.
func (s *State) SymbolCount() int {
	n := 0
	for _, fs := range s.Files {
		n += symbols.Count(fs.Symbols)
	}
	return n
}

// Folder rebuilds the folder tree recorded in the snapshot. Annotated files
// get a non-nil symbol slice.
func (s *State) Folder() *codebase.Folder {
	root := &codebase.Folder{Name: filepath.Base(s.Root), Path: "."}
	folders := map[string]*codebase.Folder{".": root}

	var ensure func(dir string) *codebase.Folder
	ensure = func(dir string) *codebase.Folder {
		if f, ok := folders[dir]; ok {
			return f
		}
		parent := ensure(path.Dir(dir))
		f := &codebase.Folder{Name: path.Base(dir), Path: dir}
		parent.Folders = append(parent.Folders, f)
		folders[dir] = f
		return f
	}

	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fs := s.Files[p]
		file := &codebase.File{Name: path.Base(p), Path: p, Symbols: fs.Symbols}
		if fs.Annotated && file.Symbols == nil {
			file.Symbols = []symbols.CodeSymbol{}
		}
		parent := ensure(path.Dir(p))
		parent.Files = append(parent.Files, file)
	}

	root.Walk(func(f *codebase.Folder) {
		sort.Slice(f.Folders, func(i, j int) bool { return f.Folders[i].Path < f.Folders[j].Path })
	})
	return root
}

// migrateState upgrades older snapshots in place. Version 1 wrote
// backslash-separated keys on Windows and had no annotated flag.
func migrateState(s *State) error {
	if s.Files == nil {
		s.Files = make(map[string]FileState)
	}

	switch s.Version {
	case "", "1":
		migrated := make(map[string]FileState, len(s.Files))
		for file, fs := range s.Files {
			if len(fs.Symbols) > 0 {
				fs.Annotated = true
			}
			migrated[strings.ReplaceAll(file, `\`, "/")] = fs
		}
		s.Files = migrated
		s.Version = CurrentStateVersion
	case CurrentStateVersion:
		// no-op
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, s.Version)
	}
	return nil
}
