package lsp

import (
	"errors"
	"fmt"
)

var (
	ErrServerNotRunning   = errors.New("lsp server not running")
	ErrServerNotInstalled = errors.New("lsp server not installed")
	ErrInitializeFailed   = errors.New("lsp initialize failed")
	ErrRequestTimeout     = errors.New("lsp request timeout")
	ErrServerCrashed      = errors.New("lsp server crashed")
	ErrInvalidResponse    = errors.New("invalid lsp response")

	// ErrUnavailable is returned once a session has been marked unavailable;
	// it stays that way until Reset.
	ErrUnavailable = errors.New("lsp session marked unavailable")
)

// JSON-RPC and LSP error codes used by this client.
const (
	codeMethodNotFound   = -32601
	codeRequestCancelled = -32800
	codeConnectionClosed = -32099
)

// LSPError is an error object returned by the server.
type LSPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

func (e *LSPError) IsMethodNotFound() bool {
	return e.Code == codeMethodNotFound
}

func (e *LSPError) IsRequestCancelled() bool {
	return e.Code == codeRequestCancelled
}

// IsServiceError reports whether err comes from the server connection or
// the server's reply: a crash, a timeout, a stopped or unavailable session,
// a malformed response or an error object.
func IsServiceError(err error) bool {
	var lspErr *LSPError
	return errors.Is(err, ErrServerNotRunning) ||
		errors.Is(err, ErrServerCrashed) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrInitializeFailed) ||
		errors.Is(err, ErrUnavailable) ||
		errors.As(err, &lspErr)
}
