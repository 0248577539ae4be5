package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolFramesRequests(t *testing.T) {
	var out bytes.Buffer
	p := NewProtocol(strings.NewReader(""), &out)
	require.NoError(t, p.Notify("initialized", struct{}{}))

	body := `{"jsonrpc":"2.0","method":"initialized","params":{}}`
	assert.Equal(t, "Content-Length: 52\r\n\r\n"+body, out.String())
	assert.Len(t, body, 52)
}

func TestProtocolReadFrame(t *testing.T) {
	input := "Content-Length: 2\r\nContent-Type: application/vscode-jsonrpc\r\n\r\n{}" +
		"Content-Type: x\r\n\r\n"
	p := NewProtocol(strings.NewReader(input), io.Discard)

	body, err := p.readFrame()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	_, err = p.readFrame()
	assert.ErrorContains(t, err, "missing Content-Length")
}

func TestProtocolCallAfterCloseFails(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), io.Discard)
	p.Close()
	p.Close()

	_, err := p.Call(context.Background(), "shutdown", nil)
	assert.ErrorIs(t, err, ErrServerNotRunning)
	assert.ErrorIs(t, p.Notify("exit", nil), ErrServerNotRunning)
}

func TestProtocolReadLoopReportsCrash(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, p.ReadLoop(), ErrServerCrashed)
}

func TestProtocolCallHonorsContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewProtocol(r, io.Discard)
	go func() { _ = p.ReadLoop() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Call(ctx, "textDocument/documentSymbol", nil)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseDocumentSymbolsFlatShape(t *testing.T) {
	raw := json.RawMessage(`[{"name":"foo","kind":12,"location":{"uri":"file:///p/a.x","range":{"start":{"line":0,"character":0},"end":{"line":2,"character":1}}}}]`)
	symbols, err := ParseDocumentSymbols(raw)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "foo", symbols[0].Name)
	assert.Equal(t, symbols[0].Range, symbols[0].SelectionRange)
	assert.Nil(t, symbols[0].Children)
}

func TestParseDocumentSymbolsEmptyAndInvalid(t *testing.T) {
	symbols, err := ParseDocumentSymbols(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, symbols)

	_, err = ParseDocumentSymbols(json.RawMessage(`{"name":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseLocationsSingle(t *testing.T) {
	locations, err := ParseLocations(json.RawMessage(`{"uri":"file:///p/b.x","range":{"start":{"line":3,"character":1},"end":{"line":3,"character":4}}}`))
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, 3, locations[0].Range.Start.Line)
}

func TestURIRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "dir with space", "a.x")
	uri := PathToURI(path)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.Equal(t, path, URIToPath(uri))
	assert.Equal(t, "dir with space/a.x", RelativePath(root, URIToPath(uri)))
	assert.Equal(t, "/elsewhere/c.x", RelativePath(root, "/elsewhere/c.x"))
}

func TestLSPErrorString(t *testing.T) {
	err := &LSPError{Code: codeMethodNotFound, Message: "nope"}
	assert.True(t, err.IsMethodNotFound())
	assert.False(t, err.IsRequestCancelled())
	assert.Equal(t, "LSP error -32601: nope", err.Error())
}
