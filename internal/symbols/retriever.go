package symbols

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/morozRed/codescape/internal/lsp"
)

// Service is the part of a language server session the retriever needs.
type Service interface {
	DocumentSymbols(ctx context.Context, path string) ([]lsp.DocumentSymbol, error)
	References(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
	CloseDocument(ctx context.Context, path string) error
}

// Retriever turns language server replies into CodeSymbol trees for the
// files of one root folder.
type Retriever struct {
	service     Service
	root        string
	concurrency int
	logger      *slog.Logger
}

func NewRetriever(service Service, root string, concurrency int, logger *slog.Logger) *Retriever {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{service: service, root: root, concurrency: concurrency, logger: logger}
}

// Retrieve returns the symbols of every root-relative path, in input order.
// Any failure fails the whole batch and no results are returned.
func (r *Retriever) Retrieve(ctx context.Context, relPaths []string) ([][]CodeSymbol, error) {
	results := make([][]CodeSymbol, len(relPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, rel := range relPaths {
		g.Go(func() error {
			syms, err := r.File(gctx, rel)
			if err != nil {
				return err
			}
			results[i] = syms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// File returns the symbols of one root-relative path. The result is non-nil
// even when the file declares nothing, which marks it as annotated.
func (r *Retriever) File(ctx context.Context, rel string) ([]CodeSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	defer func() {
		if err := r.service.CloseDocument(context.WithoutCancel(ctx), abs); err != nil {
			r.logger.Debug("close document", "path", rel, "error", err)
		}
	}()

	docSymbols, err := r.service.DocumentSymbols(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("document symbols for %s: %w", rel, err)
	}

	out := make([]CodeSymbol, 0, len(docSymbols))
	for _, ds := range docSymbols {
		sym, err := r.convert(ctx, abs, rel, ds)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	r.logger.Debug("retrieved symbols", "path", rel, "symbols", Count(out))
	return out, nil
}

func (r *Retriever) convert(ctx context.Context, abs, rel string, ds lsp.DocumentSymbol) (CodeSymbol, error) {
	kind, err := KindFromLSP(int(ds.Kind))
	if err != nil {
		return CodeSymbol{}, fmt.Errorf("symbol %s in %s: %w", ds.Name, rel, err)
	}
	if err := ctx.Err(); err != nil {
		return CodeSymbol{}, err
	}

	sym := CodeSymbol{
		Name:           ds.Name,
		Kind:           kind,
		Range:          fromLSPRange(ds.Range),
		SelectionRange: fromLSPRange(ds.SelectionRange),
	}

	locations, err := r.service.References(ctx, abs, ds.SelectionRange.Start)
	if err != nil {
		return CodeSymbol{}, fmt.Errorf("references of %s in %s: %w", ds.Name, rel, err)
	}
	for _, loc := range locations {
		ref := ReferenceLocation{
			FilePathRelativeToRoot: lsp.RelativePath(r.root, lsp.URIToPath(loc.URI)),
			Range:                  fromLSPRange(loc.Range),
		}
		// Some servers report the declaration despite includeDeclaration=false.
		if ref.FilePathRelativeToRoot == rel && sym.SelectionRange.Contains(ref.Range.Start) {
			continue
		}
		sym.References = append(sym.References, ref)
	}

	for _, child := range ds.Children {
		converted, err := r.convert(ctx, abs, rel, child)
		if err != nil {
			return CodeSymbol{}, err
		}
		sym.Children = append(sym.Children, converted)
	}
	return sym, nil
}

func fromLSPRange(r lsp.Range) Range {
	return Range{
		Start: Position{Line: r.Start.Line, Col: r.Start.Character},
		End:   Position{Line: r.End.Line, Col: r.End.Character},
	}
}
