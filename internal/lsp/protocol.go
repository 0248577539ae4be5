package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const jsonrpcVersion = "2.0"

// message covers every JSON-RPC 2.0 shape exchanged with a server. Requests
// carry ID and Method, notifications only Method, responses ID plus Result
// or Error.
type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  interface{}      `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *responseError   `json:"error,omitempty"`
}

type responseError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type inbound struct {
	ID     *json.RawMessage `json:"id,omitempty"`
	Method string           `json:"method,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *responseError   `json:"error,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    *responseError
}

// Protocol frames JSON-RPC messages with Content-Length headers over a byte
// stream and matches responses to outstanding requests.
type Protocol struct {
	reader *bufio.Reader
	writer io.Writer

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan reply
	closed    atomic.Bool
}

func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		reader:  bufio.NewReader(r),
		writer:  w,
		pending: make(map[int64]chan reply),
	}
}

// Call sends a request and waits for its result or for ctx to end.
func (p *Protocol) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, ErrServerNotRunning
	}

	id := p.nextID.Add(1)
	ch := make(chan reply, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	rawID := json.RawMessage(strconv.FormatInt(id, 10))
	if err := p.write(message{JSONRPC: jsonrpcVersion, ID: &rawID, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", method, ErrRequestTimeout, ctx.Err())
	case r, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", method, ErrServerNotRunning)
		}
		if r.err != nil {
			return nil, &LSPError{Code: r.err.Code, Message: r.err.Message, Data: r.err.Data}
		}
		return r.result, nil
	}
}

// Notify sends a notification; no response is expected.
func (p *Protocol) Notify(method string, params interface{}) error {
	if p.closed.Load() {
		return ErrServerNotRunning
	}
	return p.write(message{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (p *Protocol) write(m message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := fmt.Fprintf(p.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadLoop dispatches inbound messages until the stream ends. It returns nil
// after Close, ErrServerCrashed when the stream ends unexpectedly.
func (p *Protocol) ReadLoop() error {
	defer p.Close()
	for {
		body, err := p.readFrame()
		if err != nil {
			if p.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
		p.dispatch(body)
	}
}

func (p *Protocol) readFrame() ([]byte, error) {
	length := -1
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid Content-Length %q", value)
		}
		length = n
	}
	if length <= 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (p *Protocol) dispatch(body []byte) {
	var in inbound
	if err := json.Unmarshal(body, &in); err != nil || in.ID == nil {
		// Notifications from the server (diagnostics, logs) are dropped.
		return
	}

	if in.Method != "" {
		// Server-to-client request: answer with an empty result so servers
		// that block on workDoneProgress/create or configuration keep going.
		// The write must not block the read loop.
		go func(id *json.RawMessage) {
			_ = p.write(message{JSONRPC: jsonrpcVersion, ID: id, Result: json.RawMessage("null")})
		}(in.ID)
		return
	}

	id, err := strconv.ParseInt(string(*in.ID), 10, 64)
	if err != nil {
		return
	}
	p.pendingMu.Lock()
	ch, ok := p.pending[id]
	p.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- reply{result: in.Result, err: in.Error}:
	default:
	}
}

// Close fails every outstanding request. It is safe to call more than once.
func (p *Protocol) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- reply{err: &responseError{Code: codeConnectionClosed, Message: "server connection closed"}}:
		default:
		}
		delete(p.pending, id)
	}
}
