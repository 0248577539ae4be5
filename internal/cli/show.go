package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/state"
	"github.com/morozRed/codescape/internal/symbols"
)

type fileRecord struct {
	Path      string               `json:"path"`
	Hash      string               `json:"hash"`
	Annotated bool                 `json:"annotated"`
	Symbols   []symbols.CodeSymbol `json:"symbols,omitempty"`
}

func RunShow(cmd *cobra.Command, args []string) error {
	rootPath, err := resolveRoot(args)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	asJSONL, err := OptionalBoolFlag(cmd, "jsonl", false)
	if err != nil {
		return err
	}
	withSymbols, err := OptionalBoolFlag(cmd, "symbols", false)
	if err != nil {
		return err
	}
	if asJSON && asJSONL {
		return fmt.Errorf("--json and --jsonl are mutually exclusive")
	}

	if !hasSnapshot(rootPath) {
		return fmt.Errorf("no snapshot at %s (run codescape ingest)", state.Path(rootPath))
	}
	st, err := state.Load(rootPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	switch {
	case asJSON:
		return fileutil.WriteJSON(os.Stdout, st)
	case asJSONL:
		paths := make([]string, 0, len(st.Files))
		for path := range st.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		records := make([]fileRecord, 0, len(paths))
		for _, path := range paths {
			fs := st.Files[path]
			records = append(records, fileRecord{Path: path, Hash: fs.Hash, Annotated: fs.Annotated, Symbols: fs.Symbols})
		}
		return fileutil.WriteJSONL(os.Stdout, records)
	}

	fmt.Printf("%s (%s, %d files, %d symbols)\n", st.Root, st.Language, len(st.Files), st.SymbolCount())
	printFolder(st.Folder(), 1, withSymbols)
	return nil
}

func printFolder(folder *codebase.Folder, depth int, withSymbols bool) {
	indent := strings.Repeat("  ", depth)
	for _, child := range folder.Folders {
		fmt.Printf("%s%s/\n", indent, child.Name)
		printFolder(child, depth+1, withSymbols)
	}
	for _, file := range folder.Files {
		fmt.Printf("%s%s\n", indent, file.Name)
		if withSymbols {
			printSymbols(file.Symbols, depth+1)
		}
	}
}

func printSymbols(syms []symbols.CodeSymbol, depth int) {
	symbols.Walk(syms, func(sym *symbols.CodeSymbol, nested int) {
		r := sym.Range
		fmt.Printf("%s%s %s [%d:%d-%d:%d]", strings.Repeat("  ", depth+nested), sym.Kind, sym.Name,
			r.Start.Line, r.Start.Col, r.End.Line, r.End.Col)
		if n := len(sym.References); n > 0 {
			fmt.Printf(" refs=%d", n)
		}
		fmt.Println()
	})
}
