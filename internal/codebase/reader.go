package codebase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Matcher decides which root-relative paths are skipped while reading.
type Matcher interface {
	ShouldIgnore(relPath string, isDir bool) bool
}

// Read builds the folder tree under loc's root. Only files whose name
// matches one of loc's suffixes are kept; folders left without files are
// dropped. Symlinks are not followed. Any I/O error aborts the read with no
// partial result, and ctx is checked before each directory.
func Read(ctx context.Context, loc Location, matcher Matcher) (*Folder, error) {
	if loc.IsZero() {
		return nil, fmt.Errorf("%w: zero location", ErrInvalidLocation)
	}
	info, err := os.Stat(loc.Root())
	if err != nil {
		return nil, fmt.Errorf("read codebase: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("read codebase: %s is not a directory", loc.Root())
	}

	r := reader{loc: loc, matcher: matcher}
	root, err := r.readDir(ctx, ".")
	if err != nil {
		return nil, err
	}
	if root == nil {
		root = &Folder{}
	}
	root.Name = filepath.Base(loc.Root())
	root.Path = "."
	return root, nil
}

type reader struct {
	loc     Location
	matcher Matcher
}

func (r reader) ignored(rel string, isDir bool) bool {
	return r.matcher != nil && r.matcher.ShouldIgnore(rel, isDir)
}

// readDir returns nil when the directory holds no matching files at any depth.
func (r reader) readDir(ctx context.Context, rel string) (*Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs := filepath.Join(r.loc.Root(), filepath.FromSlash(rel))
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", abs, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	folder := &Folder{Name: path.Base(rel), Path: rel}
	for _, entry := range entries {
		childRel := path.Join(rel, entry.Name())
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if entry.IsDir() {
			if r.ignored(childRel, true) {
				continue
			}
			child, err := r.readDir(ctx, childRel)
			if err != nil {
				return nil, err
			}
			if child != nil {
				folder.Folders = append(folder.Folders, child)
			}
			continue
		}
		if !entry.Type().IsRegular() || !r.loc.Matches(entry.Name()) || r.ignored(childRel, false) {
			continue
		}
		folder.Files = append(folder.Files, &File{Name: entry.Name(), Path: childRel})
	}

	if len(folder.Files) == 0 && len(folder.Folders) == 0 {
		return nil, nil
	}
	return folder, nil
}
