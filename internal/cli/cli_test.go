package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/morozRed/codescape/internal/config"
	"github.com/morozRed/codescape/internal/state"
)

const demoMain = `package demo

func A() {
	B()
}
`

const demoUtil = `package pkg

func B() {}
`

func TestIngestWithoutLanguageServerSavesSnapshot(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)
	mustWriteFile(t, filepath.Join(root, "pkg", "util.go"), demoUtil)
	mustWriteFile(t, filepath.Join(root, "notes.txt"), "not source\n")
	mustWriteFile(t, filepath.Join(root, "docs", "README.md"), "# docs\n")

	summary := runIngestJSON(t, root)
	if summary.Phase != "retrievedCodebase" {
		t.Fatalf("expected run to end retrieved, got %q", summary.Phase)
	}
	if summary.Language != "go" {
		t.Fatalf("expected detected language go, got %q", summary.Language)
	}
	if summary.Annotated || summary.Symbols != 0 || summary.Server != "" {
		t.Fatalf("expected no annotation without a language server, got %+v", summary)
	}
	if summary.Files != 2 || summary.Folders != 2 {
		t.Fatalf("expected 2 files in 2 folders, got %+v", summary)
	}
	if summary.Entities != 4 {
		t.Fatalf("expected one entity per file and folder, got %d", summary.Entities)
	}
	if summary.Tokens == 0 || summary.Glyphs == 0 {
		t.Fatalf("expected tokens to be indexed, got %+v", summary)
	}

	assertExists(t, state.Path(root))
	st, err := state.Load(root)
	if err != nil {
		t.Fatalf("state.Load failed: %v", err)
	}
	var paths []string
	for _, f := range st.Folder().AllFiles() {
		paths = append(paths, f.Path)
	}
	if !reflect.DeepEqual(paths, []string{"main.go", "pkg/util.go"}) {
		t.Fatalf("unexpected snapshot files %v", paths)
	}
	for path, fs := range st.Files {
		if fs.Annotated {
			t.Fatalf("expected %s to be unannotated", path)
		}
	}
}

func TestIngestHonorsIgnoreRulesAndLangFlag(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)
	mustWriteFile(t, filepath.Join(root, "gen", "gen.go"), demoUtil)
	mustWriteFile(t, filepath.Join(root, "a.py"), "x = 1\n")
	mustWriteFile(t, filepath.Join(root, "b.py"), "y = 2\n")
	mustWriteFile(t, filepath.Join(root, ".codescapeignore"), "gen/\n")

	cmd := newIngestCommand()
	mustSetFlag(t, cmd, "lang", "go")
	summary := runIngestJSONWith(t, cmd, root)
	if summary.Language != "go" {
		t.Fatalf("expected --lang to win over detection, got %q", summary.Language)
	}
	if summary.Files != 1 {
		t.Fatalf("expected ignored gen/ to be skipped, got %d files", summary.Files)
	}
}

func TestIngestFailsWithoutSources(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "notes.txt"), "nothing here\n")

	cmd := newIngestCommand()
	mustSetFlag(t, cmd, "no-lsp", "true")
	err := RunIngest(cmd, []string{root})
	if err == nil || !strings.Contains(err.Error(), "no supported source files") {
		t.Fatalf("expected missing sources error, got %v", err)
	}
}

func TestShowPrintsTreeAndJSONL(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)
	mustWriteFile(t, filepath.Join(root, "pkg", "util.go"), demoUtil)
	runIngestJSON(t, root)

	stdout := captureStdout(t, func() {
		if err := RunShow(newShowCommand(), []string{root}); err != nil {
			t.Fatalf("RunShow failed: %v", err)
		}
	})
	for _, expected := range []string{"(go, 2 files, 0 symbols)", "  pkg/\n", "    util.go\n", "  main.go\n"} {
		if !strings.Contains(stdout, expected) {
			t.Fatalf("expected tree output to contain %q, got:\n%s", expected, stdout)
		}
	}

	showCmd := newShowCommand()
	mustSetFlag(t, showCmd, "jsonl", "true")
	stdout = captureStdout(t, func() {
		if err := RunShow(showCmd, []string{root}); err != nil {
			t.Fatalf("RunShow --jsonl failed: %v", err)
		}
	})
	var records []fileRecord
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		var record fileRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("failed to decode jsonl line %q: %v", scanner.Text(), err)
		}
		records = append(records, record)
	}
	if len(records) != 2 || records[0].Path != "main.go" || records[1].Path != "pkg/util.go" {
		t.Fatalf("expected sorted per-file records, got %+v", records)
	}
	if records[0].Hash == "" {
		t.Fatalf("expected records to carry file hashes")
	}
}

func TestShowWithoutSnapshotFails(t *testing.T) {
	err := RunShow(newShowCommand(), []string{t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "run codescape ingest") {
		t.Fatalf("expected missing snapshot error, got %v", err)
	}
}

func TestStatusTracksChangedAndDeletedFiles(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)
	mustWriteFile(t, filepath.Join(root, "pkg", "util.go"), demoUtil)
	runIngestJSON(t, root)

	clean := runStatusJSON(t, root)
	if !clean.Snapshot || !clean.Clean || clean.Scanned != 2 {
		t.Fatalf("expected clean status right after ingest, got %+v", clean)
	}

	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain+"\nfunc C() {}\n")
	if err := os.Remove(filepath.Join(root, "pkg", "util.go")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	stale := runStatusJSON(t, root)
	if stale.Clean {
		t.Fatalf("expected dirty status, got %+v", stale)
	}
	if !reflect.DeepEqual(stale.ChangedFiles, []string{"main.go"}) {
		t.Fatalf("unexpected changed files %v", stale.ChangedFiles)
	}
	if !reflect.DeepEqual(stale.DeletedFiles, []string{"pkg/util.go"}) {
		t.Fatalf("unexpected deleted files %v", stale.DeletedFiles)
	}
}

func TestStatusWithoutSnapshot(t *testing.T) {
	summary := runStatusJSON(t, t.TempDir())
	if summary.Snapshot || summary.Clean {
		t.Fatalf("expected no snapshot, got %+v", summary)
	}
}

func TestDoctorReportsHealthyAndStaleStates(t *testing.T) {
	stubLookPath(t, "gopls")
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)
	runIngestJSON(t, root)

	healthy := runDoctorJSON(t, root)
	if !healthy.Healthy || !healthy.Clean {
		t.Fatalf("expected healthy doctor status, got %+v", healthy)
	}
	if healthy.IndexedFiles != 1 || healthy.Language != "go" {
		t.Fatalf("unexpected doctor snapshot fields %+v", healthy)
	}
	if capability := healthy.LSP["go"]; !capability.Present || !capability.Available || capability.Server.Command != "gopls" {
		t.Fatalf("expected gopls to be available, got %+v", capability)
	}

	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain+"\nfunc C() {}\n")
	stale := runDoctorJSON(t, root)
	if stale.Clean || stale.Changed != 1 {
		t.Fatalf("expected stale doctor summary, got %+v", stale)
	}
	if !containsString(stale.Suggestions, "run codescape ingest") {
		t.Fatalf("expected suggestion to re-ingest, got %#v", stale.Suggestions)
	}
}

func TestDoctorReportsMissingServerAndSnapshot(t *testing.T) {
	stubLookPath(t)
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)

	summary := runDoctorJSON(t, root)
	if summary.Healthy {
		t.Fatalf("expected unhealthy summary, got %+v", summary)
	}
	for _, missing := range []string{state.StateFile, "language server for go"} {
		if !containsString(summary.Missing, missing) {
			t.Fatalf("expected missing %q, got %#v", missing, summary.Missing)
		}
	}
	if !containsString(summary.Suggestions, "install gopls") {
		t.Fatalf("expected install suggestion, got %#v", summary.Suggestions)
	}
}

func TestInitWritesConfigOnce(t *testing.T) {
	stubLookPath(t, "gopls")
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), demoMain)

	withWorkingDir(t, root, func() {
		captureStdout(t, func() {
			if err := RunInit(newInitCommand(), nil); err != nil {
				t.Fatalf("RunInit failed: %v", err)
			}
		})
	})

	configPath := filepath.Join(root, config.FileName)
	first, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	for _, expected := range []string{"language: go", "command: gopls", "concurrency: 4"} {
		if !strings.Contains(string(first), expected) {
			t.Fatalf("expected config to contain %q, got:\n%s", expected, first)
		}
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Server.Command != "gopls" {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}

	stdout := captureStdout(t, func() {
		if err := RunInit(newInitCommand(), []string{root}); err != nil {
			t.Fatalf("second RunInit failed: %v", err)
		}
	})
	if !strings.Contains(stdout, "already exists") {
		t.Fatalf("expected second init to leave config alone, got %q", stdout)
	}
}

func TestApplyConfigFlags(t *testing.T) {
	cmd := newIngestCommand()
	mustSetFlag(t, cmd, "lang", "Python")
	mustSetFlag(t, cmd, "server", "pyright-langserver --stdio")
	mustSetFlag(t, cmd, "timeout", "2s")

	cfg := config.Default()
	cfg.Suffixes = []string{".go"}
	if err := applyConfigFlags(cmd, &cfg); err != nil {
		t.Fatalf("applyConfigFlags failed: %v", err)
	}
	if cfg.Language != "python" || cfg.Suffixes != nil {
		t.Fatalf("expected --lang to reset suffixes, got %+v", cfg)
	}
	if cfg.Server.Command != "pyright-langserver" || !reflect.DeepEqual(cfg.Server.Args, []string{"--stdio"}) {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}

	mustSetFlag(t, cmd, "concurrency", "0")
	if err := applyConfigFlags(cmd, &cfg); err == nil {
		t.Fatalf("expected zero concurrency to be rejected")
	}
}

func TestSummarizePaths(t *testing.T) {
	if got := SummarizePaths([]string{"a", "b"}, 3); got != "a, b" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := SummarizePaths([]string{"a", "b", "c"}, 2); got != "a, b ... (+1 more)" {
		t.Fatalf("unexpected truncated summary %q", got)
	}
}

func runIngestJSON(t *testing.T, root string) RunSummary {
	t.Helper()
	return runIngestJSONWith(t, newIngestCommand(), root)
}

func runIngestJSONWith(t *testing.T, cmd *cobra.Command, root string) RunSummary {
	t.Helper()
	mustSetFlag(t, cmd, "no-lsp", "true")
	mustSetFlag(t, cmd, "json", "true")
	var summary RunSummary
	stdout := captureStdout(t, func() {
		if err := RunIngest(cmd, []string{root}); err != nil {
			t.Fatalf("RunIngest failed: %v", err)
		}
	})
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("failed to decode ingest output: %v\noutput=%s", err, stdout)
	}
	return summary
}

func runStatusJSON(t *testing.T, root string) StatusSummary {
	t.Helper()
	cmd := newStatusCommand()
	mustSetFlag(t, cmd, "json", "true")
	var summary StatusSummary
	stdout := captureStdout(t, func() {
		if err := RunStatus(cmd, []string{root}); err != nil {
			t.Fatalf("RunStatus failed: %v", err)
		}
	})
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("failed to decode status output: %v\noutput=%s", err, stdout)
	}
	return summary
}

func runDoctorJSON(t *testing.T, root string) DoctorSummary {
	t.Helper()
	cmd := newDoctorCommand()
	mustSetFlag(t, cmd, "json", "true")
	var summary DoctorSummary
	stdout := captureStdout(t, func() {
		if err := RunDoctor(cmd, []string{root}); err != nil {
			t.Fatalf("RunDoctor failed: %v", err)
		}
	})
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("failed to decode doctor output: %v\noutput=%s", err, stdout)
	}
	return summary
}

// stubLookPath makes only the named commands resolvable.
func stubLookPath(t *testing.T, installed ...string) {
	t.Helper()
	original := lookPath
	lookPath = func(file string) (string, error) {
		if containsString(installed, file) {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
	t.Cleanup(func() { lookPath = original })
}

func withWorkingDir(t *testing.T, dir string, fn func()) {
	t.Helper()

	originalWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		_ = os.Chdir(originalWD)
	}()

	fn()
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func mustSetFlag(t *testing.T, cmd *cobra.Command, key, value string) {
	t.Helper()
	if err := cmd.Flags().Set(key, value); err != nil {
		t.Fatalf("failed to set --%s=%s: %v", key, value, err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stdout pipe: %v", err)
	}
	os.Stdout = writer
	defer func() {
		os.Stdout = original
		_ = writer.Close()
		_ = reader.Close()
	}()

	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(reader)
		done <- data
	}()

	fn()

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close stdout writer: %v", err)
	}
	return string(<-done)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}
