package cli

import (
	"fmt"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/ignore"
	"github.com/morozRed/codescape/internal/languages"
	"github.com/morozRed/codescape/internal/lsp"
	"github.com/morozRed/codescape/internal/state"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func RunDoctor(cmd *cobra.Command, args []string) error {
	rootPath, err := resolveRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	summary := DoctorSummary{Mode: "doctor", RootPath: rootPath}

	cfg, err := config.Load(rootPath)
	if err != nil {
		summary.Missing = append(summary.Missing, "valid "+config.FileName)
		summary.Suggestions = append(summary.Suggestions, fmt.Sprintf("fix %s: %v", config.FileName, err))
		cfg = config.Default()
	}
	if _, err := setupLogger(cmd, cfg); err != nil {
		return err
	}
	matcher, err := ignore.Load(rootPath, cfg.Ignore)
	if err != nil {
		return err
	}

	registry := languages.NewDefaultRegistry()
	paths, err := config.ScanPaths(ctx, rootPath, matcher)
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}
	summary.LSP = lsp.ProbeCapabilitiesWithLookPath(lsp.DetectLanguagePresence(registry, paths), lookPath)

	summary.Language = cfg.Language
	if summary.Language == "" {
		summary.Language, _ = config.DetectLanguage(registry, paths)
	}

	if !hasSnapshot(rootPath) {
		summary.Missing = append(summary.Missing, state.StateFile)
		summary.Suggestions = append(summary.Suggestions, "run codescape ingest")
	} else if st, err := state.Load(rootPath); err != nil {
		summary.Missing = append(summary.Missing, "valid "+state.StateFile)
		summary.Suggestions = append(summary.Suggestions, "run codescape ingest")
	} else {
		summary.IndexedFiles = len(st.Files)
		if st.Language != "" {
			summary.Language = st.Language
		}
		diff, err := diffSnapshot(ctx, rootPath, st, matcher)
		if err != nil {
			return fmt.Errorf("failed to scan files: %w", err)
		}
		summary.Changed = len(diff.Changed)
		summary.Deleted = len(diff.Deleted)
		summary.Clean = summary.Changed == 0 && summary.Deleted == 0
		if !summary.Clean {
			summary.Suggestions = append(summary.Suggestions, "run codescape ingest")
		}
	}

	switch {
	case summary.Language == "":
		summary.Missing = append(summary.Missing, "supported source files")
	case cfg.Server.Command != "":
		if _, err := lookPath(cfg.Server.Command); err != nil {
			summary.Missing = append(summary.Missing, "configured language server "+cfg.Server.Command)
			summary.Suggestions = append(summary.Suggestions, "install "+cfg.Server.Command+" or fix server in "+config.FileName)
		}
	default:
		if capability, ok := summary.LSP[summary.Language]; !ok || !capability.Available {
			summary.Missing = append(summary.Missing, "language server for "+summary.Language)
			if ok && capability.Server.Command != "" {
				summary.Suggestions = append(summary.Suggestions, "install "+capability.Server.Command)
			}
		}
	}

	summary.Missing = fileutil.DedupeStrings(summary.Missing)
	sort.Strings(summary.Missing)
	summary.Suggestions = fileutil.DedupeStrings(summary.Suggestions)
	sort.Strings(summary.Suggestions)
	summary.Healthy = summary.Clean && len(summary.Missing) == 0

	return PrintDoctorSummary(summary, asJSON)
}
