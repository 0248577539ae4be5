package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/ignore"
	"github.com/morozRed/codescape/internal/languages"
	"github.com/morozRed/codescape/internal/lsp"
)

// RunInit writes a starter config naming the detected language and the
// first installed server for it. An existing config is left alone.
func RunInit(cmd *cobra.Command, args []string) error {
	rootPath, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	matcher, err := ignore.Load(rootPath, nil)
	if err != nil {
		return err
	}
	paths, err := config.ScanPaths(commandContext(cmd), rootPath, matcher)
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}
	if lang, ok := config.DetectLanguage(languages.NewDefaultRegistry(), paths); ok {
		cfg.Language = lang
		if server, found := lsp.ResolveServer(lang, lookPath); found {
			cfg.Server = server
		}
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	configPath := filepath.Join(rootPath, config.FileName)
	wrote, err := fileutil.WriteIfMissing(configPath, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", config.FileName, err)
	}
	if !wrote {
		fmt.Printf("%s already exists, leaving it unchanged\n", configPath)
		return nil
	}
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}
