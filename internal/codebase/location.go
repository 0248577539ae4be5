package codebase

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

var ErrInvalidLocation = errors.New("invalid codebase location")

// Location identifies a codebase: its root folder, the language its symbol
// service speaks and the file suffixes that belong to it. It is immutable.
type Location struct {
	root     string
	language string
	suffixes []string
}

// NewLocation validates and normalizes a location. Suffixes gain a leading
// dot, are lower-cased, deduplicated and sorted.
func NewLocation(root, language string, suffixes []string) (Location, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Location{}, fmt.Errorf("%w: empty root", ErrInvalidLocation)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Location{}, fmt.Errorf("%w: resolve %s: %v", ErrInvalidLocation, root, err)
	}

	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return Location{}, fmt.Errorf("%w: empty language", ErrInvalidLocation)
	}

	seen := make(map[string]bool, len(suffixes))
	normalized := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" || suffix == "." {
			continue
		}
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		if seen[suffix] {
			continue
		}
		seen[suffix] = true
		normalized = append(normalized, suffix)
	}
	if len(normalized) == 0 {
		return Location{}, fmt.Errorf("%w: no file suffixes", ErrInvalidLocation)
	}
	sort.Strings(normalized)

	return Location{root: filepath.Clean(abs), language: language, suffixes: normalized}, nil
}

func (l Location) Root() string     { return l.root }
func (l Location) Language() string { return l.language }
func (l Location) IsZero() bool     { return l.root == "" }

// Suffixes returns a copy of the normalized suffixes.
func (l Location) Suffixes() []string {
	return append([]string(nil), l.suffixes...)
}

// Matches reports whether name carries one of the location's suffixes.
func (l Location) Matches(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range l.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func (l Location) String() string {
	return fmt.Sprintf("%s (%s: %s)", l.root, l.language, strings.Join(l.suffixes, ", "))
}
