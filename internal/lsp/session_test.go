package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler func(params json.RawMessage) (interface{}, *responseError)

// fakeServer answers JSON-RPC requests on one end of an in-memory pipe.
type fakeServer struct {
	proto    *Protocol
	handlers map[string]handler

	mu    sync.Mutex
	calls map[string]int
	// pushRequest, when set, is sent to the client before answering the
	// named method.
	pushBefore string
}

func newFakeServer(handlers map[string]handler) (*fakeServer, io.ReadWriteCloser) {
	serverSide, clientSide := net.Pipe()
	s := &fakeServer{
		proto:    NewProtocol(serverSide, serverSide),
		handlers: handlers,
		calls:    make(map[string]int),
	}
	go s.serve(serverSide)
	return s, clientSide
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := s.proto.readFrame()
		if err != nil {
			return
		}
		var in struct {
			ID     *json.RawMessage `json:"id"`
			Method string           `json:"method"`
			Params json.RawMessage  `json:"params"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return
		}
		if in.Method == "" {
			// Reply to a request pushed by this server.
			continue
		}
		s.mu.Lock()
		s.calls[in.Method]++
		push := s.pushBefore == in.Method
		s.mu.Unlock()
		if in.ID == nil {
			continue
		}

		if push {
			pushID := json.RawMessage("9001")
			_ = s.proto.write(message{JSONRPC: jsonrpcVersion, ID: &pushID, Method: "window/workDoneProgress/create", Params: map[string]string{"token": "x"}})
		}

		var result interface{}
		var rpcErr *responseError
		if h, ok := s.handlers[in.Method]; ok {
			result, rpcErr = h(in.Params)
		}
		out := message{JSONRPC: jsonrpcVersion, ID: in.ID, Error: rpcErr}
		if rpcErr == nil {
			raw, _ := json.Marshal(result)
			out.Result = raw
		}
		if err := s.proto.write(out); err != nil {
			return
		}
	}
}

func (s *fakeServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func initializeOK(json.RawMessage) (interface{}, *responseError) {
	return map[string]interface{}{
		"capabilities": map[string]interface{}{
			"documentSymbolProvider": true,
			"referencesProvider":     true,
		},
	}, nil
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sessionFor(root string, conn io.ReadWriteCloser) *Session {
	return NewSession(root, Options{
		Language:       "x",
		Server:         ServerCommand{Command: "fake-ls"},
		RequestTimeout: 2 * time.Second,
		Launcher: LauncherFunc(func(context.Context, ServerCommand, string) (io.ReadWriteCloser, error) {
			return conn, nil
		}),
	})
}

func TestSessionLifecycle(t *testing.T) {
	root := t.TempDir()
	source := writeSource(t, root, "a.x", "fn foo() {\n  1\n}\n")
	caller := writeSource(t, root, "b.x", "foo()\n")

	server, conn := newFakeServer(map[string]handler{
		"initialize": initializeOK,
		"textDocument/documentSymbol": func(json.RawMessage) (interface{}, *responseError) {
			return []DocumentSymbol{{
				Name:           "foo",
				Kind:           12,
				Range:          Range{Start: Position{0, 0}, End: Position{2, 1}},
				SelectionRange: Range{Start: Position{0, 3}, End: Position{0, 6}},
			}}, nil
		},
		"textDocument/references": func(params json.RawMessage) (interface{}, *responseError) {
			var p referenceParams
			if err := json.Unmarshal(params, &p); err != nil || p.Context.IncludeDeclaration {
				return nil, &responseError{Code: -32602, Message: "bad params"}
			}
			return []Location{{URI: PathToURI(caller), Range: Range{Start: Position{0, 0}, End: Position{0, 3}}}}, nil
		},
	})
	server.pushBefore = "textDocument/documentSymbol"
	session := sessionFor(root, conn)
	ctx := context.Background()

	require.NoError(t, session.Initialize(ctx))
	assert.Equal(t, StateReady, session.State())
	assert.True(t, session.Capabilities().HasReferencesProvider())

	symbols, err := session.DocumentSymbols(ctx, source)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "foo", symbols[0].Name)
	assert.Equal(t, SymbolKind(12), symbols[0].Kind)

	again, err := session.DocumentSymbols(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, symbols, again)
	assert.Equal(t, 1, server.count("textDocument/documentSymbol"))
	assert.Equal(t, 1, server.count("textDocument/didOpen"))

	locations, err := session.References(ctx, source, symbols[0].SelectionRange.Start)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "b.x", RelativePath(root, URIToPath(locations[0].URI)))

	require.NoError(t, session.CloseDocument(ctx, source))
	require.Eventually(t, func() bool { return server.count("textDocument/didClose") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, session.Shutdown(ctx))
	assert.Equal(t, StateStopped, session.State())
	assert.Equal(t, 1, server.count("shutdown"))

	_, err = session.DocumentSymbols(ctx, source)
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestSessionSkipsReferencesWithoutProvider(t *testing.T) {
	root := t.TempDir()
	source := writeSource(t, root, "a.x", "fn foo() {}\n")

	server, conn := newFakeServer(map[string]handler{
		"initialize": func(json.RawMessage) (interface{}, *responseError) {
			return map[string]interface{}{
				"capabilities": map[string]interface{}{"documentSymbolProvider": true},
			}, nil
		},
		"textDocument/references": func(json.RawMessage) (interface{}, *responseError) {
			return nil, &responseError{Code: -32601, Message: "method not found"}
		},
	})
	session := sessionFor(root, conn)
	ctx := context.Background()
	require.NoError(t, session.Initialize(ctx))
	defer session.Shutdown(ctx)

	locations, err := session.References(ctx, source, Position{Line: 0, Character: 3})
	require.NoError(t, err)
	assert.Nil(t, locations)
	assert.Equal(t, 0, server.count("textDocument/references"))
}

func TestSessionInitializeFailure(t *testing.T) {
	session := NewSession(t.TempDir(), Options{
		Language: "x",
		Server:   ServerCommand{Command: "missing-ls"},
		Launcher: ExecLauncher{LookPath: func(string) (string, error) { return "", errors.New("not found") }},
	})

	err := session.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitializeFailed)
	assert.ErrorIs(t, err, ErrServerNotInstalled)
	assert.Equal(t, StateStopped, session.State())
	assert.True(t, session.Available(), "marking unavailable is the caller's decision")
}

func TestSessionInitializeRejectsServerError(t *testing.T) {
	_, conn := newFakeServer(map[string]handler{
		"initialize": func(json.RawMessage) (interface{}, *responseError) {
			return nil, &responseError{Code: -32603, Message: "boom"}
		},
	})
	session := sessionFor(t.TempDir(), conn)

	err := session.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitializeFailed)
	var lspErr *LSPError
	require.ErrorAs(t, err, &lspErr)
	assert.Equal(t, "boom", lspErr.Message)
}

func TestSessionUnavailableIsStickyUntilReset(t *testing.T) {
	_, conn := newFakeServer(map[string]handler{"initialize": initializeOK})
	session := sessionFor(t.TempDir(), conn)
	ctx := context.Background()

	session.MarkUnavailable()
	assert.False(t, session.Available())
	assert.ErrorIs(t, session.Initialize(ctx), ErrUnavailable)

	require.NoError(t, session.Reset(ctx))
	assert.True(t, session.Available())
	assert.Equal(t, StateUninitialized, session.State())
	require.NoError(t, session.Initialize(ctx))
	require.NoError(t, session.Shutdown(ctx))
}

func TestSessionShutdownWithoutStart(t *testing.T) {
	session := NewSession(t.TempDir(), Options{Language: "x"})
	require.NoError(t, session.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, session.State())
}
