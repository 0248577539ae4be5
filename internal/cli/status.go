package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/ignore"
	"github.com/morozRed/codescape/internal/state"
)

func RunStatus(cmd *cobra.Command, args []string) error {
	start := time.Now()
	rootPath, err := resolveRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}

	summary := StatusSummary{Mode: "status", RootPath: rootPath}
	if !hasSnapshot(rootPath) {
		return PrintStatusSummary(summary, asJSON)
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	if _, err := setupLogger(cmd, cfg); err != nil {
		return err
	}
	matcher, err := ignore.Load(rootPath, cfg.Ignore)
	if err != nil {
		return err
	}
	st, err := state.Load(rootPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	diff, err := diffSnapshot(commandContext(cmd), rootPath, st, matcher)
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}

	summary.Snapshot = true
	summary.Language = st.Language
	summary.Scanned = len(diff.Current)
	summary.Changed = len(diff.Changed)
	summary.Deleted = len(diff.Deleted)
	summary.Clean = summary.Changed == 0 && summary.Deleted == 0
	summary.ChangedFiles = diff.Changed
	summary.DeletedFiles = diff.Deleted
	summary.DurationMS = time.Since(start).Milliseconds()
	return PrintStatusSummary(summary, asJSON)
}
