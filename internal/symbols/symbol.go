// Package symbols holds the persisted declaration schema and the retrieval
// of declarations and references from a language server.
package symbols

import (
	"encoding/json"
)

// Position is a 0-based line/column pair.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether p lies within r, end exclusive.
func (r Range) Contains(p Position) bool {
	if p.Line < r.Start.Line || p.Line > r.End.Line {
		return false
	}
	if p.Line == r.Start.Line && p.Col < r.Start.Col {
		return false
	}
	if p.Line == r.End.Line && p.Col >= r.End.Col {
		return false
	}
	return true
}

type ReferenceLocation struct {
	FilePathRelativeToRoot string `json:"filePathRelativeToRoot"`
	Range                  Range  `json:"range"`
}

// CodeSymbol is one declaration with its use sites and nested declarations.
// References and Children are nil when there are none; they are never
// encoded as empty arrays.
type CodeSymbol struct {
	Name           string              `json:"name"`
	Kind           Kind                `json:"kind"`
	Range          Range               `json:"range"`
	SelectionRange Range               `json:"selectionRange"`
	References     []ReferenceLocation `json:"references,omitempty"`
	Children       []CodeSymbol        `json:"children,omitempty"`
}

// UnmarshalJSON decodes a symbol and normalizes empty references and
// children to nil.
func (s *CodeSymbol) UnmarshalJSON(data []byte) error {
	type wireSymbol CodeSymbol
	var wire wireSymbol
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.References) == 0 {
		wire.References = nil
	}
	if len(wire.Children) == 0 {
		wire.Children = nil
	}
	*s = CodeSymbol(wire)
	return nil
}

// Count returns the number of symbols in the trees, children included.
func Count(syms []CodeSymbol) int {
	n := 0
	Walk(syms, func(*CodeSymbol, int) { n++ })
	return n
}

// Walk visits every symbol depth-first with its nesting depth.
func Walk(syms []CodeSymbol, fn func(s *CodeSymbol, depth int)) {
	var visit func([]CodeSymbol, int)
	visit = func(list []CodeSymbol, depth int) {
		for i := range list {
			fn(&list[i], depth)
			visit(list[i].Children, depth+1)
		}
	}
	visit(syms, 0)
}
