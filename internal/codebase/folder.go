package codebase

import (
	"encoding/json"
	"path"

	"github.com/morozRed/codescape/internal/symbols"
)

// File is one source file of a codebase. Symbols stays nil until the file
// has been annotated by the symbol service.
type File struct {
	Name    string               `json:"name"`
	Path    string               `json:"path"`
	Symbols []symbols.CodeSymbol `json:"symbols,omitempty"`
}

// fileJSON spells out the annotation state, which an empty symbol list
// cannot carry on its own.
type fileJSON struct {
	Name      string               `json:"name"`
	Path      string               `json:"path"`
	Annotated bool                 `json:"annotated"`
	Symbols   []symbols.CodeSymbol `json:"symbols,omitempty"`
}

func (f File) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileJSON{Name: f.Name, Path: f.Path, Annotated: f.Symbols != nil, Symbols: f.Symbols})
}

func (f *File) UnmarshalJSON(data []byte) error {
	var wire fileJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.Name, f.Path, f.Symbols = wire.Name, wire.Path, wire.Symbols
	if wire.Annotated && f.Symbols == nil {
		f.Symbols = []symbols.CodeSymbol{}
	}
	if !wire.Annotated {
		f.Symbols = nil
	}
	return nil
}

// Folder is a directory node. Path is relative to the codebase root with
// forward slashes; the root folder has Path ".".
type Folder struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Folders []*Folder `json:"folders,omitempty"`
	Files   []*File   `json:"files,omitempty"`
}

// Walk visits every folder depth-first, parents before children, in the
// order they were read.
func (f *Folder) Walk(fn func(*Folder)) {
	if f == nil {
		return
	}
	fn(f)
	for _, child := range f.Folders {
		child.Walk(fn)
	}
}

// AllFiles returns every file below f in walk order.
func (f *Folder) AllFiles() []*File {
	var out []*File
	f.Walk(func(folder *Folder) {
		out = append(out, folder.Files...)
	})
	return out
}

// AllFolders returns f and every folder below it in walk order.
func (f *Folder) AllFolders() []*Folder {
	var out []*Folder
	f.Walk(func(folder *Folder) {
		out = append(out, folder)
	})
	return out
}

func (f *Folder) FileCount() int {
	n := 0
	f.Walk(func(folder *Folder) { n += len(folder.Files) })
	return n
}

// Annotated reports whether any file carries symbol data.
func (f *Folder) Annotated() bool {
	for _, file := range f.AllFiles() {
		if file.Symbols != nil {
			return true
		}
	}
	return false
}

// File returns the file at the root-relative path rel.
func (f *Folder) File(rel string) (*File, bool) {
	rel = path.Clean(rel)
	for _, file := range f.AllFiles() {
		if file.Path == rel {
			return file, true
		}
	}
	return nil, false
}
