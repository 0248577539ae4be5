package config

import (
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/ignore"
	"github.com/morozRed/codescape/internal/languages"
	"github.com/morozRed/codescape/internal/lsp"
)

// DetectLanguage returns the language owning the most paths. Ties go to
// the alphabetically first language.
func DetectLanguage(registry *languages.Registry, paths []string) (string, bool) {
	counts := make(map[string]int)
	for _, path := range paths {
		if lang, ok := registry.ForPath(path); ok {
			counts[lang.ID]++
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] > counts[best] {
			best = id
		}
	}
	return best, true
}

// ScanPaths lists the root-relative paths of every regular file under root
// that the matcher keeps.
func ScanPaths(ctx context.Context, root string, matcher *ignore.Matcher) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.ShouldIgnore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	return paths, err
}

// Resolved is a configuration with every codebase-dependent field settled.
type Resolved struct {
	Config
	Location codebase.Location
	Matcher  *ignore.Matcher
	// ServerInstalled is false when no candidate server was found on PATH.
	ServerInstalled bool
}

// Resolve settles language, suffixes, server command and ignore rules for
// root. lookPath may be nil to use exec.LookPath.
func Resolve(ctx context.Context, root string, cfg Config, registry *languages.Registry, lookPath func(string) (string, error)) (Resolved, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	matcher, err := ignore.Load(root, cfg.Ignore)
	if err != nil {
		return Resolved{}, err
	}

	if cfg.Language == "" {
		paths, err := ScanPaths(ctx, root, matcher)
		if err != nil {
			return Resolved{}, fmt.Errorf("scan %s: %w", root, err)
		}
		lang, ok := DetectLanguage(registry, paths)
		if !ok {
			return Resolved{}, fmt.Errorf("no supported source files under %s", root)
		}
		cfg.Language = lang
	}
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = registry.Extensions(cfg.Language)
	}

	installed := true
	if cfg.Server.Command == "" {
		cfg.Server, installed = lsp.ResolveServer(cfg.Language, lookPath)
	} else if _, err := lookPath(cfg.Server.Command); err != nil {
		installed = false
	}

	loc, err := codebase.NewLocation(root, cfg.Language, cfg.Suffixes)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Config: cfg, Location: loc, Matcher: matcher, ServerInstalled: installed}, nil
}
