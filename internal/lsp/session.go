package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/morozRed/codescape/internal/fileutil"
)

type ServerState int32

const (
	StateUninitialized ServerState = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
)

func (s ServerState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultSymbolCacheSize = 2048
)

type Options struct {
	// Language is the languageId sent with didOpen.
	Language        string
	Server          ServerCommand
	RequestTimeout  time.Duration
	SymbolCacheSize int
	Launcher        Launcher
	Logger          *slog.Logger
}

// Session is one owned connection to a language server for a root folder.
// It is started lazily by Initialize and lives until Shutdown. Once marked
// unavailable it refuses work until Reset.
type Session struct {
	rootPath string
	opts     Options
	logger   *slog.Logger

	unavailable atomic.Bool

	mu       sync.Mutex
	state    ServerState
	conn     io.ReadWriteCloser
	proto    *Protocol
	readDone chan struct{}
	caps     ServerCapabilities

	docMu sync.Mutex
	open  map[string]int

	symbols *lru.Cache[string, []DocumentSymbol]
}

func NewSession(rootPath string, opts Options) *Session {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.SymbolCacheSize <= 0 {
		opts.SymbolCacheSize = defaultSymbolCacheSize
	}
	if opts.Launcher == nil {
		opts.Launcher = ExecLauncher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	symbols, err := lru.New[string, []DocumentSymbol](opts.SymbolCacheSize)
	if err != nil {
		// Only returned for a non-positive size, which is ruled out above.
		panic(err)
	}
	return &Session{
		rootPath: rootPath,
		opts:     opts,
		logger:   logger.With("component", "lsp", "language", opts.Language),
		open:     make(map[string]int),
		symbols:  symbols,
	}
}

func (s *Session) Available() bool { return !s.unavailable.Load() }

// MarkUnavailable makes later runs skip this session until Reset.
func (s *Session) MarkUnavailable() {
	if !s.unavailable.Swap(true) {
		s.logger.Warn("language server marked unavailable")
	}
}

func (s *Session) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Capabilities() ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Initialize starts the server and performs the initialize handshake. It is
// a no-op when the session is already ready.
func (s *Session) Initialize(ctx context.Context) (err error) {
	if !s.Available() {
		return ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady {
		return nil
	}

	ctx, span := startSpan(ctx, "initialize", s.opts.Language, s.rootPath)
	defer span.End()
	started := time.Now()
	defer func() {
		recordServerStart(ctx, s.opts.Language, err)
		recordRequest(ctx, "initialize", s.opts.Language, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := s.start(ctx); err != nil {
		s.teardownLocked(ctx)
		s.state = StateStopped
		return fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}
	s.logger.Info("language server ready", "server", s.opts.Server.Command, "elapsed", time.Since(started))
	return nil
}

func (s *Session) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = StateStarting

	conn, err := s.opts.Launcher.Launch(ctx, s.opts.Server, s.rootPath)
	if err != nil {
		return err
	}
	proto := NewProtocol(conn, conn)
	readDone := make(chan struct{})
	s.conn, s.proto, s.readDone = conn, proto, readDone

	go func() {
		err := proto.ReadLoop()
		close(readDone)
		if err != nil {
			s.logger.Warn("language server stream ended", "error", err)
		}
		s.mu.Lock()
		if s.proto == proto && s.state == StateReady {
			s.state = StateStopped
		}
		s.mu.Unlock()
	}()

	rootURI := PathToURI(s.rootPath)
	params := initializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		WorkspaceFolders: []workspaceFolder{
			{URI: rootURI, Name: filepath.Base(s.rootPath)},
		},
	}
	params.Capabilities.TextDocument.DocumentSymbol.HierarchicalDocumentSymbolSupport = true

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	raw, err := proto.Call(callCtx, "initialize", params)
	if err != nil {
		return err
	}
	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: initialize result: %v", ErrInvalidResponse, err)
	}
	if !result.Capabilities.HasDocumentSymbolProvider() {
		return fmt.Errorf("server %s does not provide document symbols", s.opts.Server.Command)
	}
	if err := proto.Notify("initialized", struct{}{}); err != nil {
		return err
	}

	s.caps = result.Capabilities
	s.state = StateReady
	return nil
}

func (s *Session) ready() (*Protocol, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.proto == nil {
		return nil, ErrServerNotRunning
	}
	return s.proto, nil
}

// DocumentSymbols returns the declaration tree of the file at path. The
// document is opened on the server and stays open until CloseDocument.
// Replies are cached by path and content hash.
func (s *Session) DocumentSymbols(ctx context.Context, path string) (symbols []DocumentSymbol, err error) {
	proto, err := s.ready()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := s.openDocument(proto, path, data); err != nil {
		return nil, err
	}

	key := path + "@" + fileutil.HashBytes(data)
	if cached, ok := s.symbols.Get(key); ok {
		recordSymbolCacheHit(ctx, s.opts.Language)
		return cached, nil
	}

	ctx, span := startSpan(ctx, "documentSymbol", s.opts.Language, path)
	defer span.End()
	started := time.Now()
	defer func() {
		recordRequest(ctx, "textDocument/documentSymbol", s.opts.Language, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	raw, err := proto.Call(callCtx, "textDocument/documentSymbol", documentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
	})
	if err != nil {
		return nil, err
	}
	symbols, err = ParseDocumentSymbols(raw)
	if err != nil {
		return nil, fmt.Errorf("documentSymbol %s: %w", path, err)
	}
	s.symbols.Add(key, symbols)
	return symbols, nil
}

// References returns the use sites of the symbol at pos, excluding its
// declaration. A server without a references provider is not asked and
// yields no locations.
func (s *Session) References(ctx context.Context, path string, pos Position) (locations []Location, err error) {
	proto, err := s.ready()
	if err != nil {
		return nil, err
	}
	if !s.Capabilities().HasReferencesProvider() {
		return nil, nil
	}
	if !s.isOpen(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := s.openDocument(proto, path, data); err != nil {
			return nil, err
		}
	}

	ctx, span := startSpan(ctx, "references", s.opts.Language, path)
	defer span.End()
	started := time.Now()
	defer func() {
		recordRequest(ctx, "textDocument/references", s.opts.Language, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	params := referenceParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
		Position:     pos,
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	raw, err := proto.Call(callCtx, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	locations, err = ParseLocations(raw)
	if err != nil {
		return nil, fmt.Errorf("references %s:%d:%d: %w", path, pos.Line, pos.Character, err)
	}
	return locations, nil
}

// CloseDocument tells the server the file at path is no longer open.
func (s *Session) CloseDocument(_ context.Context, path string) error {
	uri := PathToURI(path)
	s.docMu.Lock()
	_, ok := s.open[uri]
	delete(s.open, uri)
	s.docMu.Unlock()
	if !ok {
		return nil
	}
	proto, err := s.ready()
	if err != nil {
		return err
	}
	return proto.Notify("textDocument/didClose", didCloseParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

func (s *Session) isOpen(path string) bool {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	_, ok := s.open[PathToURI(path)]
	return ok
}

func (s *Session) openDocument(proto *Protocol, path string, data []byte) error {
	uri := PathToURI(path)
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if _, ok := s.open[uri]; ok {
		return nil
	}
	if err := proto.Notify("textDocument/didOpen", didOpenParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: s.opts.Language,
			Version:    1,
			Text:       string(data),
		},
	}); err != nil {
		return fmt.Errorf("didOpen %s: %w", path, err)
	}
	s.open[uri] = 1
	return nil
}

// Shutdown performs the shutdown/exit handshake and stops the server. It is
// safe to call on a session that never started.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proto == nil {
		s.state = StateStopped
		return nil
	}

	var err error
	if s.state == StateReady {
		s.state = StateStopping
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if _, callErr := s.proto.Call(callCtx, "shutdown", nil); callErr != nil {
			err = fmt.Errorf("shutdown: %w", callErr)
		} else {
			_ = s.proto.Notify("exit", nil)
		}
		cancel()
	}
	s.teardownLocked(ctx)
	s.state = StateStopped
	return err
}

// Reset stops any running server and clears the unavailable flag so the
// next Initialize dials again.
func (s *Session) Reset(ctx context.Context) error {
	err := s.Shutdown(ctx)
	s.unavailable.Store(false)
	s.mu.Lock()
	s.state = StateUninitialized
	s.mu.Unlock()
	return err
}

func (s *Session) teardownLocked(ctx context.Context) {
	if s.proto != nil {
		s.proto.Close()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close language server stream", "error", err)
		}
	}
	if s.readDone != nil {
		select {
		case <-s.readDone:
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
	s.conn, s.proto, s.readDone = nil, nil, nil
	s.caps = ServerCapabilities{}

	s.docMu.Lock()
	clear(s.open)
	s.docMu.Unlock()
}
