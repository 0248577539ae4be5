// Package scene runs the processing stages that turn a retrieved codebase
// into render entities and token index entries.
package scene

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/entity"
	"github.com/morozRed/codescape/internal/ingest"
	"github.com/morozRed/codescape/internal/tokens"
)

type Scene struct {
	root        string
	entities    *entity.Cache
	index       *tokens.Index
	concurrency int
	logger      *slog.Logger

	glyphs atomic.Int64
}

func New(root string, entities *entity.Cache, index *tokens.Index, concurrency int, logger *slog.Logger) *Scene {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scene{
		root:        root,
		entities:    entities,
		index:       index,
		concurrency: concurrency,
		logger:      logger.With("component", "scene"),
	}
}

func (s *Scene) Entities() *entity.Cache { return s.entities }
func (s *Scene) Tokens() *tokens.Index   { return s.index }

// Glyphs returns how many token occurrences have been registered.
func (s *Scene) Glyphs() int64 { return s.glyphs.Load() }

func (s *Scene) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// PopulateFiles builds one entity per file and registers its tokens. It is
// the processingCodebase stage.
func (s *Scene) PopulateFiles(ctx context.Context, folder *codebase.Folder, report func(completed, total int)) error {
	files := folder.AllFiles()
	total := len(files)
	report(0, total)

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, file := range files {
		g.Go(func() error {
			e, err := s.entities.GetOrCreate(gctx, s.abs(file.Path))
			if err != nil {
				return fmt.Errorf("file entity %s: %w", file.Path, err)
			}
			added, err := tokens.Register(s.index, e)
			if err != nil {
				return err
			}
			s.glyphs.Add(int64(added))
			report(int(completed.Add(1)), total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Debug("files populated", "files", total, "tokens", s.index.Len())
	return nil
}

// PopulateDirectories builds a placeholder entity for every folder. It is
// the processingArchitecture stage.
func (s *Scene) PopulateDirectories(ctx context.Context, folder *codebase.Folder, report func(completed, total int)) error {
	folders := folder.AllFolders()
	total := len(folders)
	report(0, total)
	for i, f := range folders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.entities.GetOrCreate(ctx, s.abs(f.Path)); err != nil {
			return fmt.Errorf("directory entity %s: %w", f.Path, err)
		}
		report(i+1, total)
	}
	s.logger.Debug("directories populated", "folders", total)
	return nil
}

// Run executes both stages on p in order.
func (s *Scene) Run(ctx context.Context, p *ingest.Processor) error {
	if err := p.Process(ctx, ingest.PhaseProcessingCodebase, s.PopulateFiles); err != nil {
		return err
	}
	return p.Process(ctx, ingest.PhaseProcessingArchitecture, s.PopulateDirectories)
}
