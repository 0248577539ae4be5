package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/codebase"
	"github.com/morozRed/codescape/internal/fileutil"
	"github.com/morozRed/codescape/internal/state"
)

// resolveRoot returns the absolute codebase root named by args, or the
// working directory.
func resolveRoot(args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		rootPath, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		return rootPath, nil
	}

	rootPath, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", rootPath)
	}
	return rootPath, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

type snapshotDiff struct {
	Current map[string]string
	Changed []string
	Deleted []string
}

// diffSnapshot rereads the codebase the snapshot describes and compares
// file hashes against it.
func diffSnapshot(ctx context.Context, rootPath string, st *state.State, matcher codebase.Matcher) (snapshotDiff, error) {
	loc, err := codebase.NewLocation(rootPath, st.Language, st.Suffixes)
	if err != nil {
		return snapshotDiff{}, fmt.Errorf("snapshot location: %w", err)
	}
	folder, err := codebase.Read(ctx, loc, matcher)
	if err != nil {
		return snapshotDiff{}, err
	}

	current := make(map[string]string)
	for _, file := range folder.AllFiles() {
		hash, err := fileutil.HashFile(filepath.Join(rootPath, filepath.FromSlash(file.Path)))
		if err != nil {
			return snapshotDiff{}, fmt.Errorf("hash %s: %w", file.Path, err)
		}
		current[file.Path] = hash
	}

	paths := make([]string, 0, len(current))
	for file := range current {
		paths = append(paths, file)
	}
	return snapshotDiff{
		Current: current,
		Changed: st.ChangedFiles(current),
		Deleted: st.DeletedFiles(fileutil.ToSet(paths)),
	}, nil
}

func hasSnapshot(rootPath string) bool {
	_, err := os.Stat(state.Path(rootPath))
	return err == nil
}
