package languages

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language describes one source language: its identifier (as sent to
// language servers), the file extensions it owns and its grammar.
type Language struct {
	ID         string
	Extensions []string
	grammar    *sitter.Language
}

// Registry holds all known languages
type Registry struct {
	languages map[string]*Language // language id -> language
	extToLang map[string]string    // extension -> language id
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		languages: make(map[string]*Language),
		extToLang: make(map[string]string),
	}
}

// NewDefaultRegistry creates a registry with every bundled grammar
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&Language{ID: "go", Extensions: []string{".go"}, grammar: golang.GetLanguage()})
	r.Register(&Language{ID: "python", Extensions: []string{".py"}, grammar: python.GetLanguage()})
	r.Register(&Language{ID: "ruby", Extensions: []string{".rb"}, grammar: ruby.GetLanguage()})
	r.Register(&Language{ID: "typescript", Extensions: []string{".ts", ".tsx"}, grammar: typescript.GetLanguage()})
	r.Register(&Language{ID: "javascript", Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, grammar: javascript.GetLanguage()})

	return r
}

// Register adds a language, replacing any previous one with the same ID.
func (r *Registry) Register(lang *Language) {
	r.languages[lang.ID] = lang
	for _, ext := range lang.Extensions {
		r.extToLang[strings.ToLower(ext)] = lang.ID
	}
}

// Lookup returns the language with the given ID.
func (r *Registry) Lookup(id string) (*Language, bool) {
	lang, ok := r.languages[strings.ToLower(strings.TrimSpace(id))]
	return lang, ok
}

// ForPath returns the language owning the file's extension.
func (r *Registry) ForPath(path string) (*Language, bool) {
	id, ok := r.extToLang[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}
	return r.Lookup(id)
}

// IDs returns every registered language ID, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.languages))
	for id := range r.languages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Extensions returns the extensions registered for a language ID.
func (r *Registry) Extensions(id string) []string {
	lang, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	return append([]string(nil), lang.Extensions...)
}
