package entity

import (
	"context"
	"errors"

	"github.com/morozRed/codescape/internal/languages"
)

// ErrNoBuilder is returned when the table has no builder for a source kind.
var ErrNoBuilder = errors.New("entity: no builder for source kind")

// Builders is the function table used to create entities on a cache miss.
type Builders struct {
	File      func(path string, data []byte) (*Entity, error)
	Directory func(path string) (*Entity, error)
}

// DefaultBuilders builds directories as empty placeholders and files as
// entities whose content is the token layout of their bytes.
func DefaultBuilders(registry *languages.Registry) Builders {
	return Builders{
		File: func(path string, data []byte) (*Entity, error) {
			return New(path, SourceFile, func() (Content, error) {
				tokens, err := registry.Tokenize(context.Background(), path, data)
				if err != nil {
					return Content{}, err
				}
				return Content{Tokens: tokens}, nil
			}), nil
		},
		Directory: func(path string) (*Entity, error) {
			return New(path, SourceDirectory, nil), nil
		},
	}
}

func (b Builders) build(kind SourceKind, path string, read func() ([]byte, error)) (*Entity, error) {
	switch kind {
	case SourceDirectory:
		if b.Directory == nil {
			return nil, ErrNoBuilder
		}
		return b.Directory(path)
	case SourceFile:
		if b.File == nil {
			return nil, ErrNoBuilder
		}
		data, err := read()
		if err != nil {
			return nil, err
		}
		return b.File(path, data)
	default:
		return nil, ErrNoBuilder
	}
}
