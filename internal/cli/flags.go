package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/lsp"
)

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flag(name) == nil {
		return "", nil
	}
	return strings.TrimSpace(cmd.Flag(name).Value.String()), nil
}

func OptionalBoolFlag(cmd *cobra.Command, name string, fallback bool) (bool, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return fallback, nil
	}
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return fallback, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return value, nil
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("lang", "l", "", "Language to ingest (default: config, then auto-detect)")
	cmd.Flags().String("server", "", "Language server command line, e.g. \"pylsp\" or \"pyright-langserver --stdio\"")
	cmd.Flags().Int("concurrency", 0, "Concurrent symbol requests (default from config)")
	cmd.Flags().Duration("timeout", 0, "Per-request language server timeout (default from config)")
}

// applyConfigFlags overrides cfg with every flag set on the command line.
func applyConfigFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("lang"); f != nil && f.Changed {
		lang := strings.ToLower(strings.TrimSpace(f.Value.String()))
		if lang == "" {
			return fmt.Errorf("--lang must not be empty")
		}
		cfg.Language = lang
		cfg.Suffixes = nil
	}
	if f := flags.Lookup("server"); f != nil && f.Changed {
		fields := strings.Fields(f.Value.String())
		if len(fields) == 0 {
			return fmt.Errorf("--server must not be empty")
		}
		cfg.Server = lsp.ServerCommand{Command: fields[0], Args: fields[1:]}
	}
	if f := flags.Lookup("concurrency"); f != nil && f.Changed {
		n, err := flags.GetInt("concurrency")
		if err != nil {
			return fmt.Errorf("failed to read --concurrency flag: %w", err)
		}
		cfg.Concurrency = n
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		d, err := flags.GetDuration("timeout")
		if err != nil {
			return fmt.Errorf("failed to read --timeout flag: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return cfg.Validate()
}

// setupLogger installs a text handler on stderr as the default logger. The
// --log-level flag wins over the configured level.
func setupLogger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	name := cfg.LogLevel
	if flagLevel, err := OptionalStringFlag(cmd, "log-level"); err != nil {
		return nil, err
	} else if flagLevel != "" {
		name = flagLevel
	}
	level, err := config.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
