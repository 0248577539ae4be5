package tokens

import (
	"fmt"

	"github.com/morozRed/codescape/internal/entity"
)

// GlyphID names the node displaying the token at line:column of an entity.
func GlyphID(e *entity.Entity, line, column int) NodeID {
	return NodeID(fmt.Sprintf("%s:%d:%d", e.ID, line, column))
}

// Register adds every token occurrence of e to the index and returns how many
// node references were added.
func Register(x *Index, e *entity.Entity) (int, error) {
	content, err := e.Content()
	if err != nil {
		return 0, fmt.Errorf("load content for %s: %w", e.Path, err)
	}
	added := 0
	for _, token := range content.Tokens {
		if x.Get(token.Text).Add(GlyphID(e, token.Line, token.Column)) {
			added++
		}
	}
	return added, nil
}

// Unregister removes every token occurrence of e from the index.
func Unregister(x *Index, e *entity.Entity) error {
	content, err := e.Content()
	if err != nil {
		return fmt.Errorf("load content for %s: %w", e.Path, err)
	}
	for _, token := range content.Tokens {
		if set, ok := x.Peek(token.Text); ok {
			set.Remove(GlyphID(e, token.Line, token.Column))
		}
	}
	return nil
}
