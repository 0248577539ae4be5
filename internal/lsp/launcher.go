package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Launcher starts a language server rooted at rootPath and returns a
// bidirectional stream to it. Closing the stream stops the server.
type Launcher interface {
	Launch(ctx context.Context, server ServerCommand, rootPath string) (io.ReadWriteCloser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, server ServerCommand, rootPath string) (io.ReadWriteCloser, error)

func (f LauncherFunc) Launch(ctx context.Context, server ServerCommand, rootPath string) (io.ReadWriteCloser, error) {
	return f(ctx, server, rootPath)
}

// ExecLauncher runs the server as a child process speaking over stdio.
type ExecLauncher struct {
	LookPath func(file string) (string, error)
	// Stderr receives the server's stderr; nil discards it.
	Stderr io.Writer
}

func (l ExecLauncher) Launch(_ context.Context, server ServerCommand, rootPath string) (io.ReadWriteCloser, error) {
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(server.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServerNotInstalled, server.Command)
	}

	// The process outlives the launch context; it is stopped through Close.
	cmd := exec.Command(bin, server.Args...)
	cmd.Dir = rootPath
	cmd.Stderr = l.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// os.Pipe instead of StdoutPipe: Wait runs concurrently with reads and
	// must not close the read end under them.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("start %s: %w", server.Command, err)
	}
	stdoutW.Close()

	p := &processConn{cmd: cmd, stdin: stdin, stdout: stdout, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type processConn struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	done    chan struct{}
	waitErr error
}

func (p *processConn) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *processConn) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin and gives the process a grace period to exit before
// killing it.
func (p *processConn) Close() error {
	_ = p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(3 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	_ = p.stdout.Close()
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		return p.waitErr
	}
	return nil
}
