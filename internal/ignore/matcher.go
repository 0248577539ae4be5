package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const FileName = ".codescapeignore"

// defaultRules use a "**/" prefix because go-gitignore anchors any pattern
// containing a slash to the root.
var defaultRules = []string{
	"**/.git/",
	".codescape/",
	"**/node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"**/__pycache__/",
}

// Matcher applies gitignore rules with "last rule wins" behavior.
type Matcher struct {
	rules []string
	gi    *gitignore.GitIgnore
}

// NewMatcher builds a matcher from user-provided rule lines. Default excludes
// are prepended and can be overridden by user negation rules.
func NewMatcher(userRules []string) *Matcher {
	all := make([]string, 0, len(defaultRules)+len(userRules))
	all = append(all, defaultRules...)
	all = append(all, userRules...)
	return &Matcher{rules: all, gi: gitignore.CompileIgnoreLines(all...)}
}

// Load builds a matcher for root from the defaults, the root .gitignore,
// the root .codescapeignore and extra, in that order. Missing files are
// skipped.
func Load(root string, extra []string) (*Matcher, error) {
	var rules []string
	for _, name := range []string{".gitignore", FileName} {
		lines, err := ReadRules(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		rules = append(rules, lines...)
	}
	rules = append(rules, extra...)
	return NewMatcher(rules), nil
}

// ReadRules returns the non-empty, non-comment lines of an ignore file. A
// missing file yields no rules.
func ReadRules(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rules []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rules, nil
}

// Rules returns every rule in evaluation order.
func (m *Matcher) Rules() []string {
	return append([]string(nil), m.rules...)
}

// ShouldIgnore returns true when relPath should be excluded.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = normalizePath(relPath)
	if relPath == "" || relPath == "." {
		return false
	}
	if isDir {
		relPath += "/"
	}
	return m.gi.MatchesPath(relPath)
}

func normalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return path
}
