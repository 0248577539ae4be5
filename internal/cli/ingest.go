package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/entity"
	"github.com/morozRed/codescape/internal/ingest"
	"github.com/morozRed/codescape/internal/languages"
	"github.com/morozRed/codescape/internal/lsp"
	"github.com/morozRed/codescape/internal/scene"
	"github.com/morozRed/codescape/internal/state"
	"github.com/morozRed/codescape/internal/symbols"
	"github.com/morozRed/codescape/internal/telemetry"
	"github.com/morozRed/codescape/internal/tokens"
)

const sessionShutdownTimeout = 5 * time.Second

func RunIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := commandContext(cmd)

	rootPath, err := resolveRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	noLSP, err := OptionalBoolFlag(cmd, "no-lsp", false)
	if err != nil {
		return err
	}
	withTelemetry, err := OptionalBoolFlag(cmd, "telemetry", false)
	if err != nil {
		return err
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	if err := applyConfigFlags(cmd, &cfg); err != nil {
		return err
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if withTelemetry {
		shutdown, err := telemetry.Setup(os.Stderr, cmd.Root().Version)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("telemetry flush failed", "error", err)
			}
		}()
	}

	registry := languages.NewDefaultRegistry()
	resolved, err := config.Resolve(ctx, rootPath, cfg, registry, lookPath)
	if err != nil {
		return err
	}

	var session ingest.SymbolSession
	serverLine := ""
	switch {
	case noLSP:
		logger.Info("language server disabled")
	case !resolved.ServerInstalled:
		logger.Warn("language server not found, ingesting without symbols",
			"language", resolved.Language, "server", resolved.Server.Command)
	default:
		s := lsp.NewSession(rootPath, lsp.Options{
			Language:        resolved.Language,
			Server:          resolved.Server,
			RequestTimeout:  resolved.RequestTimeout,
			SymbolCacheSize: resolved.SymbolCacheSize,
			Logger:          logger,
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionShutdownTimeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Warn("language server shutdown failed", "error", err)
			}
		}()
		session = s
		serverLine = strings.Join(append([]string{resolved.Server.Command}, resolved.Server.Args...), " ")
	}

	processor := ingest.NewProcessor(session, ingest.Options{
		Matcher:     resolved.Matcher,
		Concurrency: resolved.Concurrency,
		Logger:      logger,
	})
	updates, unsubscribe := processor.Subscribe(16)
	progressDone := newProgressReporter(asJSON).Follow(updates)
	finishProgress := func() {
		unsubscribe()
		<-progressDone
	}

	if err := processor.Locate(resolved.Location); err != nil {
		finishProgress()
		return err
	}
	folder, err := processor.Retrieve(ctx)
	if err != nil {
		finishProgress()
		return err
	}

	sc := scene.New(rootPath, entity.NewCache(entity.DefaultBuilders(registry)), tokens.NewIndex(), resolved.Concurrency, logger)
	if err := sc.Run(ctx, processor); err != nil {
		finishProgress()
		return err
	}
	finishProgress()

	snapshot, err := state.FromFolder(resolved.Location, folder)
	if err != nil {
		return err
	}
	if err := snapshot.Save(rootPath); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	symbolCount := 0
	for _, file := range folder.AllFiles() {
		symbolCount += symbols.Count(file.Symbols)
	}
	annotated := folder.Annotated()
	if !annotated {
		serverLine = ""
	}
	return PrintRunSummary(RunSummary{
		Mode:       "ingest",
		RootPath:   rootPath,
		Language:   resolved.Language,
		Server:     serverLine,
		Phase:      processor.State().Phase.String(),
		Annotated:  annotated,
		Files:      folder.FileCount(),
		Folders:    len(folder.AllFolders()),
		Symbols:    symbolCount,
		Entities:   sc.Entities().Len(),
		Tokens:     sc.Tokens().Len(),
		Glyphs:     sc.Glyphs(),
		StateFile:  state.Path(rootPath),
		DurationMS: time.Since(start).Milliseconds(),
	}, asJSON)
}
