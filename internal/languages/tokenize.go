package languages

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var fallbackTokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9][0-9A-Za-z_.]*|\S`)

// Token is one lexical unit of a source file, positioned 0-based.
type Token struct {
	Text   string `json:"text"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Tokenize splits content into lexical tokens using the grammar registered
// for path, or a plain word splitter when no grammar matches.
func (r *Registry) Tokenize(ctx context.Context, path string, content []byte) ([]Token, error) {
	lang, ok := r.ForPath(path)
	if !ok || lang.grammar == nil {
		return fallbackTokens(content), nil
	}

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(lang.grammar)

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	tokens := make([]Token, 0, len(content)/4)
	collectLeaves(tree.RootNode(), content, &tokens)
	return tokens, nil
}

func collectLeaves(node *sitter.Node, content []byte, out *[]Token) {
	if node == nil {
		return
	}
	if node.ChildCount() == 0 || isAtomic(node.Type()) {
		text := node.Content(content)
		if strings.TrimSpace(text) == "" {
			return
		}
		start := node.StartPoint()
		*out = append(*out, Token{
			Text:   text,
			Kind:   node.Type(),
			Line:   int(start.Row),
			Column: int(start.Column),
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectLeaves(node.Child(i), content, out)
	}
}

// Strings and comments render as one glyph run even when the grammar
// splits them into fragments.
func isAtomic(nodeType string) bool {
	return strings.Contains(nodeType, "string") || strings.Contains(nodeType, "comment")
}

func fallbackTokens(content []byte) []Token {
	lines := strings.Split(string(content), "\n")
	tokens := make([]Token, 0, len(content)/4)
	for row, line := range lines {
		for _, loc := range fallbackTokenPattern.FindAllStringIndex(line, -1) {
			tokens = append(tokens, Token{
				Text:   line[loc[0]:loc[1]],
				Kind:   "text",
				Line:   row,
				Column: loc[0],
			})
		}
	}
	return tokens
}
