// Package entity caches render-ready entities by source path.
package entity

import (
	"sync"

	"github.com/google/uuid"

	"github.com/morozRed/codescape/internal/languages"
)

// SourceKind tags what an entity was built from.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceDirectory
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Content is the token layout an entity renders.
type Content struct {
	Tokens []languages.Token
}

// Entity is an opaque renderable unit. Its content is computed on first use.
type Entity struct {
	ID   uuid.UUID
	Path string
	Kind SourceKind

	content func() (Content, error)
}

// New returns an entity with a fresh identity. load may be nil for entities
// without content.
func New(path string, kind SourceKind, load func() (Content, error)) *Entity {
	e := &Entity{
		ID:   uuid.New(),
		Path: path,
		Kind: kind,
	}
	if load == nil {
		load = func() (Content, error) { return Content{}, nil }
	}
	e.content = sync.OnceValues(load)
	return e
}

// Content returns the entity's content, computing it at most once.
func (e *Entity) Content() (Content, error) {
	if e.content == nil {
		return Content{}, nil
	}
	return e.content()
}
