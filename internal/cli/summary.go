package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/lsp"
)

type RunSummary struct {
	Mode       string `json:"mode"`
	RootPath   string `json:"root_path"`
	Language   string `json:"language"`
	Server     string `json:"server,omitempty"`
	Phase      string `json:"phase"`
	Annotated  bool   `json:"annotated"`
	Files      int    `json:"files"`
	Folders    int    `json:"folders"`
	Symbols    int    `json:"symbols"`
	Entities   int    `json:"entities"`
	Tokens     int    `json:"tokens"`
	Glyphs     int64  `json:"glyphs"`
	StateFile  string `json:"state_file,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type StatusSummary struct {
	Mode         string   `json:"mode"`
	RootPath     string   `json:"root_path"`
	Language     string   `json:"language,omitempty"`
	Snapshot     bool     `json:"snapshot"`
	Clean        bool     `json:"clean"`
	Scanned      int      `json:"scanned"`
	Changed      int      `json:"changed"`
	Deleted      int      `json:"deleted"`
	DurationMS   int64    `json:"duration_ms"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	DeletedFiles []string `json:"deleted_files,omitempty"`
}

type DoctorSummary struct {
	Mode         string                    `json:"mode"`
	RootPath     string                    `json:"root_path"`
	Language     string                    `json:"language,omitempty"`
	Healthy      bool                      `json:"healthy"`
	Clean        bool                      `json:"clean"`
	Changed      int                       `json:"changed"`
	Deleted      int                       `json:"deleted"`
	IndexedFiles int                       `json:"indexed_files"`
	LSP          map[string]lsp.Capability `json:"lsp"`
	Missing      []string                  `json:"missing,omitempty"`
	Suggestions  []string                  `json:"suggestions,omitempty"`
}

func PrintRunSummary(summary RunSummary, asJSON bool) error {
	if asJSON {
		return fileutil.WriteJSON(os.Stdout, summary)
	}

	fmt.Printf("%s complete in %dms (%s)\n", summary.Mode, summary.DurationMS, summary.Phase)
	fmt.Printf("codebase: %s language=%s\n", summary.RootPath, summary.Language)
	if summary.Annotated {
		fmt.Printf("symbols: %d via %s\n", summary.Symbols, summary.Server)
	} else {
		fmt.Println("symbols: none (language server unavailable)")
	}
	fmt.Printf("files: %d folders=%d entities=%d tokens=%d glyphs=%d\n",
		summary.Files, summary.Folders, summary.Entities, summary.Tokens, summary.Glyphs)
	if summary.StateFile != "" {
		fmt.Printf("snapshot: %s\n", summary.StateFile)
	}
	return nil
}

func PrintStatusSummary(summary StatusSummary, asJSON bool) error {
	if asJSON {
		return fileutil.WriteJSON(os.Stdout, summary)
	}

	if !summary.Snapshot {
		fmt.Println("status: no snapshot (run codescape ingest)")
		return nil
	}
	fmt.Printf(
		"status: scanned=%d changed=%d deleted=%d clean=%t duration=%dms\n",
		summary.Scanned,
		summary.Changed,
		summary.Deleted,
		summary.Clean,
		summary.DurationMS,
	)
	if len(summary.ChangedFiles) > 0 {
		fmt.Printf("changed files (%d): %s\n", len(summary.ChangedFiles), SummarizePaths(summary.ChangedFiles, 8))
	}
	if len(summary.DeletedFiles) > 0 {
		fmt.Printf("deleted files (%d): %s\n", len(summary.DeletedFiles), SummarizePaths(summary.DeletedFiles, 8))
	}
	return nil
}

func PrintDoctorSummary(summary DoctorSummary, asJSON bool) error {
	if asJSON {
		return fileutil.WriteJSON(os.Stdout, summary)
	}

	status := "issues"
	if summary.Healthy {
		status = "ok"
	}
	fmt.Printf("doctor: %s\n", status)
	fmt.Printf("snapshot: indexed_files=%d clean=%t changed=%d deleted=%d\n",
		summary.IndexedFiles, summary.Clean, summary.Changed, summary.Deleted)

	languages := make([]string, 0, len(summary.LSP))
	available := 0
	for language, capability := range summary.LSP {
		if !capability.Present {
			continue
		}
		languages = append(languages, language)
		if capability.Available {
			available++
		}
	}
	sort.Strings(languages)
	fmt.Printf("lsp: available=%d/%d present languages\n", available, len(languages))
	for _, language := range languages {
		capability := summary.LSP[language]
		state := "found"
		if !capability.Available {
			state = capability.Reason
		}
		fmt.Printf("  %s: %s (%s)\n", language, capability.Server.Command, state)
	}
	if len(summary.Missing) > 0 {
		fmt.Printf("missing (%d): %s\n", len(summary.Missing), strings.Join(summary.Missing, ", "))
	}
	for _, suggestion := range summary.Suggestions {
		fmt.Printf("next: %s\n", suggestion)
	}
	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
