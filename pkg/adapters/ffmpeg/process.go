package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// process is a running ffmpeg command wired to OS pipes. Pipes are used
// instead of exec's pipe helpers so Wait can run while stdout is read.
type process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *syncBuffer
	done   chan struct{}
	err    error
	grace  time.Duration

	closeOnce sync.Once
}

// inputPipe is created before the process so frames can be queued early.
type inputPipe struct {
	r, w *os.File
}

func newInputPipe() (*inputPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create input pipe: %w", err)
	}
	return &inputPipe{r: r, w: w}, nil
}

func (p *inputPipe) Close() {
	p.r.Close()
	p.w.Close()
}

// startProcess runs ffmpeg with args. When in is nil stdin is empty. When
// captureStdout is set the process stdout is exposed through stdout.
func startProcess(ctx context.Context, path string, args []string, in *inputPipe, captureStdout bool, grace time.Duration) (*process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	p := &process{
		cmd:    cmd,
		stderr: &syncBuffer{},
		done:   make(chan struct{}),
		grace:  grace,
	}
	cmd.Stderr = p.stderr

	if in != nil {
		cmd.Stdin = in.r
		p.stdin = in.w
	}

	var stdoutW *os.File
	if captureStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("create output pipe: %w", err)
		}
		cmd.Stdout = w
		p.stdout, stdoutW = r, w
	}

	if err := cmd.Start(); err != nil {
		if stdoutW != nil {
			stdoutW.Close()
			p.stdout.Close()
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	// The child holds its own copies of these ends.
	if in != nil {
		in.r.Close()
	}
	if stdoutW != nil {
		stdoutW.Close()
	}

	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Done is closed when the process has exited.
func (p *process) Done() <-chan struct{} { return p.done }

// Stop closes stdin so ffmpeg can finalise its output, then kills the
// process if it has not exited within the grace period. Processes without
// stdin are killed at once. An exit caused by Stop is not an error.
func (p *process) Stop() error {
	if p.stdin != nil {
		p.closeInput()
		select {
		case <-p.done:
			return nil
		case <-time.After(p.grace):
		}
	}
	if err := p.cmd.Process.Kill(); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}
		return fmt.Errorf("kill ffmpeg: %w", err)
	}
	<-p.done
	return nil
}

func (p *process) closeInput() {
	p.closeOnce.Do(func() {
		if p.stdin != nil {
			p.stdin.Close()
		}
	})
}

// ExitError returns the process failure with its stderr output once the
// process has exited.
func (p *process) ExitError() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	if p.err == nil {
		return nil
	}
	return fmt.Errorf("ffmpeg failed: %w\nstderr: %s", p.err, strings.TrimSpace(p.stderr.String()))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
